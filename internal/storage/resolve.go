// Copyright 2025 AgentStore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/uptrace/bun"

	"agentstore/internal/common"
)

// lookupChild finds the dentry for name under parentIno and returns the
// child's inode number and mode in a single round-trip.
func lookupChild(ctx context.Context, idb bun.IDB, parentIno int64, name string) (ino int64, mode int64, err error) {
	err = idb.NewSelect().
		ColumnExpr("d.ino").
		ColumnExpr("i.mode").
		TableExpr("dentry AS d").
		Join("JOIN inode AS i ON i.ino = d.ino").
		Where("d.parent_ino = ?", parentIno).
		Where("d.name = ?", name).
		Scan(ctx, &ino, &mode)
	if err == sql.ErrNoRows {
		return 0, 0, common.ErrNotFound
	}
	if err != nil {
		return 0, 0, storageErr(err)
	}
	return ino, mode, nil
}

// readTarget reads the stored symlink target for an inode.
func readTarget(ctx context.Context, idb bun.IDB, ino int64) (string, error) {
	var link SymlinkModel
	err := idb.NewSelect().Model(&link).Where("ino = ?", ino).Scan(ctx)
	if err == sql.ErrNoRows {
		return "", common.ErrInvalidArgument
	}
	if err != nil {
		return "", storageErr(err)
	}
	return link.Target, nil
}

// resolve walks a slash-separated path to an inode number starting at the
// root. When followLast is true the final component is followed if it is a
// symlink. Absolute symlink targets restart from the root; relative ones
// are interpreted against the directory holding the link. Total symlink
// expansions are bounded at MaxSymlinkDepth; past that the walk fails with
// ErrSymlinkLoop.
func resolve(ctx context.Context, idb bun.IDB, p string, followLast bool) (int64, error) {
	p = common.NormalizePath(p)
	if p == "/" {
		return RootIno, nil
	}

	expansions := 0

	for {
		components := common.SplitPath(p)
		currentIno := int64(RootIno)
		resolvedDir := "/"

		restarted := false
		for i, component := range components {
			isLast := i == len(components)-1

			childIno, childMode, err := lookupChild(ctx, idb, currentIno, component)
			if err != nil {
				return 0, err
			}

			isSymlink := childMode&ModeMask == ModeSymlink
			if isSymlink && (!isLast || followLast) {
				expansions++
				if expansions > MaxSymlinkDepth {
					return 0, common.ErrSymlinkLoop
				}

				target, err := readTarget(ctx, idb, childIno)
				if err != nil {
					return 0, err
				}

				remaining := strings.Join(components[i+1:], "/")
				if strings.HasPrefix(target, "/") {
					p = target
				} else {
					p = resolvedDir + "/" + target
				}
				if remaining != "" {
					p = p + "/" + remaining
				}
				p = common.NormalizePath(p)
				restarted = true
				break
			}

			if !isLast && childMode&ModeMask != ModeDir {
				return 0, common.ErrNotDir
			}

			currentIno = childIno
			if resolvedDir == "/" {
				resolvedDir = "/" + component
			} else {
				resolvedDir = resolvedDir + "/" + component
			}
		}

		if !restarted {
			return currentIno, nil
		}
	}
}

// statInode loads the metadata record for an inode. Nlink is computed from
// the dentry count; the root, which has no dentry, reports 1.
func statInode(ctx context.Context, idb bun.IDB, ino int64) (*Stat, error) {
	var inode InodeModel
	var nlink int64
	err := idb.NewRaw(`
		SELECT i.ino, i.mode, i.uid, i.gid, i.size, i.atime, i.mtime, i.ctime,
		       (SELECT COUNT(*) FROM dentry d WHERE d.ino = i.ino) AS nlink
		FROM inode i WHERE i.ino = ?`, ino).
		Scan(ctx, &inode.Ino, &inode.Mode, &inode.UID, &inode.GID, &inode.Size,
			&inode.Atime, &inode.Mtime, &inode.Ctime, &nlink)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, storageErr(err)
	}
	if inode.Ino == RootIno && nlink == 0 {
		nlink = 1
	}
	return rowToStat(&inode, nlink), nil
}
