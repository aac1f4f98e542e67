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
	"time"

	"github.com/uptrace/bun"

	"agentstore/internal/common"
	"agentstore/internal/util"
)

// FS exposes the inode filesystem over a Store. FS itself is stateless;
// all state lives in the store, and multiple FS handles may be constructed
// over the same store.
type FS struct {
	db *bun.DB
}

// NewFS returns a filesystem view over the store.
func NewFS(s *Store) *FS {
	return &FS{db: s.db}
}

func nowUnix() int64 {
	return time.Now().Unix()
}

func rowToStat(m *InodeModel, nlink int64) *Stat {
	return &Stat{
		Ino:   m.Ino,
		Mode:  uint32(m.Mode),
		Nlink: nlink,
		Uid:   uint32(m.UID),
		Gid:   uint32(m.GID),
		Size:  m.Size,
		Atime: time.Unix(m.Atime, 0),
		Mtime: time.Unix(m.Mtime, 0),
		Ctime: time.Unix(m.Ctime, 0),
	}
}

// runInTx executes fn inside a single transaction, retrying on transient
// lock errors. Any error rolls the transaction back, leaving the
// filesystem in its pre-operation state.
func (fs *FS) runInTx(ctx context.Context, fn func(tx bun.Tx) error) error {
	return util.Retry(ctx, func() error {
		return fs.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			return fn(tx)
		})
	}, util.DatabaseRetryOptions(ctx)...)
}

// Stat returns metadata for the object at path, following terminal
// symlinks.
func (fs *FS) Stat(ctx context.Context, p string) (*Stat, error) {
	ino, err := resolve(ctx, fs.db, p, true)
	if err != nil {
		return nil, err
	}
	return statInode(ctx, fs.db, ino)
}

// Lstat returns metadata for the object at path without following a
// terminal symlink.
func (fs *FS) Lstat(ctx context.Context, p string) (*Stat, error) {
	ino, err := resolve(ctx, fs.db, p, false)
	if err != nil {
		return nil, err
	}
	return statInode(ctx, fs.db, ino)
}

// Mkdir creates a directory. The parent must already exist; see MkdirAll
// for the variant that creates missing intermediates.
func (fs *FS) Mkdir(ctx context.Context, p string, mode uint32) error {
	p = common.NormalizePath(p)
	if p == "/" {
		return common.ErrExists
	}
	parentPath, name := common.SplitParent(p)

	return fs.runInTx(ctx, func(tx bun.Tx) error {
		parentIno, err := resolve(ctx, tx, parentPath, true)
		if err != nil {
			return err
		}
		parentStat, err := statInode(ctx, tx, parentIno)
		if err != nil {
			return err
		}
		if !parentStat.IsDir() {
			return common.ErrNotDir
		}
		if _, _, err := lookupChild(ctx, tx, parentIno, name); err == nil {
			return common.ErrExists
		} else if err != common.ErrNotFound {
			return err
		}
		_, err = createInode(ctx, tx, parentIno, name, ModeDir|int64(mode&0o777), 0)
		return err
	})
}

// MkdirAll creates a directory along with any missing intermediates.
// Applying it twice is a no-op.
func (fs *FS) MkdirAll(ctx context.Context, p string, mode uint32) error {
	p = common.NormalizePath(p)
	if p == "/" {
		return nil
	}

	current := ""
	for _, component := range common.SplitPath(p) {
		current = current + "/" + component
		stat, err := fs.Stat(ctx, current)
		if err == common.ErrNotFound {
			if err := fs.Mkdir(ctx, current, mode); err != nil && err != common.ErrExists {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if !stat.IsDir() {
			return common.ErrNotDir
		}
	}
	return nil
}

// WriteFile writes data to a file, creating it (and missing parents) if
// absent. The full content is replaced atomically: all prior chunks for
// the inode are deleted and replaced within one transaction.
func (fs *FS) WriteFile(ctx context.Context, p string, data []byte) error {
	p = common.NormalizePath(p)
	if p == "/" {
		return common.ErrIsDir
	}
	parentPath, name := common.SplitParent(p)

	return fs.runInTx(ctx, func(tx bun.Tx) error {
		parentIno, err := ensureDirs(ctx, tx, parentPath)
		if err != nil {
			return err
		}

		now := nowUnix()
		ino, _, err := lookupChild(ctx, tx, parentIno, name)
		switch err {
		case nil:
			// Follow a terminal symlink to the real file.
			ino, err = resolve(ctx, tx, p, true)
			if err != nil {
				return err
			}
			stat, err := statInode(ctx, tx, ino)
			if err != nil {
				return err
			}
			if stat.IsDir() {
				return common.ErrIsDir
			}
			if err := deleteChunks(ctx, tx, ino); err != nil {
				return err
			}
			_, err = tx.NewUpdate().
				Model((*InodeModel)(nil)).
				Set("size = ?", len(data)).
				Set("mtime = ?", now).
				Set("ctime = ?", now).
				Where("ino = ?", ino).
				Exec(ctx)
			if err != nil {
				return storageErr(err)
			}
		case common.ErrNotFound:
			ino, err = createInode(ctx, tx, parentIno, name, DefaultFileMode, int64(len(data)))
			if err != nil {
				return err
			}
		default:
			return err
		}

		return writeChunks(ctx, tx, ino, data)
	})
}

// ReadFile reads the entire contents of a file, following symlinks.
func (fs *FS) ReadFile(ctx context.Context, p string) ([]byte, error) {
	ino, err := resolve(ctx, fs.db, p, true)
	if err != nil {
		return nil, err
	}
	stat, err := statInode(ctx, fs.db, ino)
	if err != nil {
		return nil, err
	}
	if stat.IsDir() {
		return nil, common.ErrIsDir
	}

	data, err := readChunks(ctx, fs.db, ino)
	if err != nil {
		return nil, err
	}

	// atime bump is best-effort; a failed update does not fail the read.
	_, _ = fs.db.NewUpdate().
		Model((*InodeModel)(nil)).
		Set("atime = ?", nowUnix()).
		Where("ino = ?", ino).
		Exec(ctx)

	return data, nil
}

// Readdir returns the names of entries in a directory in lexicographic
// order. "." and ".." are not included.
func (fs *FS) Readdir(ctx context.Context, p string) ([]string, error) {
	ino, err := resolve(ctx, fs.db, p, true)
	if err != nil {
		return nil, err
	}
	stat, err := statInode(ctx, fs.db, ino)
	if err != nil {
		return nil, err
	}
	if !stat.IsDir() {
		return nil, common.ErrNotDir
	}

	var names []string
	err = fs.db.NewSelect().
		Model((*DentryModel)(nil)).
		Column("name").
		Where("parent_ino = ?", ino).
		Order("name ASC").
		Scan(ctx, &names)
	if err != nil {
		return nil, storageErr(err)
	}
	return names, nil
}

// ReaddirPlus returns directory entries together with their attributes in
// lexicographic order, in a single query.
func (fs *FS) ReaddirPlus(ctx context.Context, p string) ([]DirEntry, error) {
	ino, err := resolve(ctx, fs.db, p, true)
	if err != nil {
		return nil, err
	}
	stat, err := statInode(ctx, fs.db, ino)
	if err != nil {
		return nil, err
	}
	if !stat.IsDir() {
		return nil, common.ErrNotDir
	}

	rows, err := fs.db.QueryContext(ctx, `
		SELECT d.name, i.ino, i.mode, i.uid, i.gid, i.size, i.atime, i.mtime, i.ctime,
		       (SELECT COUNT(*) FROM dentry l WHERE l.ino = i.ino) AS nlink
		FROM dentry d JOIN inode i ON i.ino = d.ino
		WHERE d.parent_ino = ? ORDER BY d.name ASC`, ino)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var entries []DirEntry
	for rows.Next() {
		var name string
		var m InodeModel
		var nlink int64
		if err := rows.Scan(&name, &m.Ino, &m.Mode, &m.UID, &m.GID, &m.Size,
			&m.Atime, &m.Mtime, &m.Ctime, &nlink); err != nil {
			return nil, storageErr(err)
		}
		entries = append(entries, DirEntry{Name: name, Stat: *rowToStat(&m, nlink)})
	}
	return entries, storageErr(rows.Err())
}

// Symlink creates a symbolic link at linkPath whose target is stored
// verbatim; resolution is lazy.
func (fs *FS) Symlink(ctx context.Context, target, linkPath string) error {
	linkPath = common.NormalizePath(linkPath)
	if linkPath == "/" {
		return common.ErrExists
	}
	parentPath, name := common.SplitParent(linkPath)

	return fs.runInTx(ctx, func(tx bun.Tx) error {
		parentIno, err := resolve(ctx, tx, parentPath, true)
		if err != nil {
			return err
		}
		parentStat, err := statInode(ctx, tx, parentIno)
		if err != nil {
			return err
		}
		if !parentStat.IsDir() {
			return common.ErrNotDir
		}
		if _, _, err := lookupChild(ctx, tx, parentIno, name); err == nil {
			return common.ErrExists
		} else if err != common.ErrNotFound {
			return err
		}

		ino, err := createInode(ctx, tx, parentIno, name, ModeSymlink|0o777, int64(len(target)))
		if err != nil {
			return err
		}
		_, err = tx.NewInsert().Model(&SymlinkModel{Ino: ino, Target: target}).Exec(ctx)
		return storageErr(err)
	})
}

// Readlink returns the stored target of a symbolic link without resolving
// it. Intermediate symlinks in the path are still followed.
func (fs *FS) Readlink(ctx context.Context, p string) (string, error) {
	ino, err := resolve(ctx, fs.db, p, false)
	if err != nil {
		return "", err
	}
	stat, err := statInode(ctx, fs.db, ino)
	if err != nil {
		return "", err
	}
	if !stat.IsSymlink() {
		return "", common.ErrInvalidArgument
	}
	return readTarget(ctx, fs.db, ino)
}

// Link creates a hard link at newPath referencing the same inode as
// oldPath. Directories cannot be hard-linked.
func (fs *FS) Link(ctx context.Context, oldPath, newPath string) error {
	newPath = common.NormalizePath(newPath)
	parentPath, name := common.SplitParent(newPath)
	if name == "" {
		return common.ErrExists
	}

	return fs.runInTx(ctx, func(tx bun.Tx) error {
		ino, err := resolve(ctx, tx, oldPath, true)
		if err != nil {
			return err
		}
		stat, err := statInode(ctx, tx, ino)
		if err != nil {
			return err
		}
		if stat.IsDir() {
			return common.ErrIsDir
		}

		parentIno, err := resolve(ctx, tx, parentPath, true)
		if err != nil {
			return err
		}
		parentStat, err := statInode(ctx, tx, parentIno)
		if err != nil {
			return err
		}
		if !parentStat.IsDir() {
			return common.ErrNotDir
		}
		if _, _, err := lookupChild(ctx, tx, parentIno, name); err == nil {
			return common.ErrExists
		} else if err != common.ErrNotFound {
			return err
		}

		_, err = tx.NewInsert().
			Model(&DentryModel{ParentIno: parentIno, Name: name, Ino: ino}).
			Exec(ctx)
		if err != nil {
			return storageErr(err)
		}
		_, err = tx.NewUpdate().
			Model((*InodeModel)(nil)).
			Set("ctime = ?", nowUnix()).
			Where("ino = ?", ino).
			Exec(ctx)
		return storageErr(err)
	})
}

// Unlink removes the dentry at path. When the last dentry referencing the
// inode goes away, the inode and its data and symlink rows are deleted.
func (fs *FS) Unlink(ctx context.Context, p string) error {
	p = common.NormalizePath(p)
	if p == "/" {
		return common.ErrIsDir
	}
	parentPath, name := common.SplitParent(p)

	return fs.runInTx(ctx, func(tx bun.Tx) error {
		parentIno, err := resolve(ctx, tx, parentPath, true)
		if err != nil {
			return err
		}
		ino, mode, err := lookupChild(ctx, tx, parentIno, name)
		if err != nil {
			return err
		}
		if mode&ModeMask == ModeDir {
			return common.ErrIsDir
		}
		return removeDentry(ctx, tx, parentIno, name, ino)
	})
}

// Rmdir removes an empty directory.
func (fs *FS) Rmdir(ctx context.Context, p string) error {
	p = common.NormalizePath(p)
	if p == "/" {
		return common.ErrInvalidArgument
	}
	parentPath, name := common.SplitParent(p)

	return fs.runInTx(ctx, func(tx bun.Tx) error {
		parentIno, err := resolve(ctx, tx, parentPath, true)
		if err != nil {
			return err
		}
		ino, mode, err := lookupChild(ctx, tx, parentIno, name)
		if err != nil {
			return err
		}
		if mode&ModeMask != ModeDir {
			return common.ErrNotDir
		}

		count, err := tx.NewSelect().
			Model((*DentryModel)(nil)).
			Where("parent_ino = ?", ino).
			Count(ctx)
		if err != nil {
			return storageErr(err)
		}
		if count > 0 {
			return common.ErrNotEmpty
		}
		return removeDentry(ctx, tx, parentIno, name, ino)
	})
}

// Rename moves old to new within one transaction. If new exists and is
// compatible it is replaced; cross-directory moves are supported. The
// inode number and data are preserved.
func (fs *FS) Rename(ctx context.Context, oldPath, newPath string) error {
	oldPath = common.NormalizePath(oldPath)
	newPath = common.NormalizePath(newPath)
	if oldPath == "/" || newPath == "/" {
		return common.ErrInvalidArgument
	}
	if newPath == oldPath {
		return nil
	}
	if strings.HasPrefix(newPath, oldPath+"/") {
		return common.ErrInvalidArgument
	}

	oldParentPath, oldName := common.SplitParent(oldPath)
	newParentPath, newName := common.SplitParent(newPath)

	return fs.runInTx(ctx, func(tx bun.Tx) error {
		oldParentIno, err := resolve(ctx, tx, oldParentPath, true)
		if err != nil {
			return err
		}
		ino, mode, err := lookupChild(ctx, tx, oldParentIno, oldName)
		if err != nil {
			return err
		}

		newParentIno, err := resolve(ctx, tx, newParentPath, true)
		if err != nil {
			return err
		}
		newParentStat, err := statInode(ctx, tx, newParentIno)
		if err != nil {
			return err
		}
		if !newParentStat.IsDir() {
			return common.ErrNotDir
		}

		// Replace a compatible target: file over file, dir over empty dir.
		existingIno, existingMode, err := lookupChild(ctx, tx, newParentIno, newName)
		switch err {
		case nil:
			srcIsDir := mode&ModeMask == ModeDir
			dstIsDir := existingMode&ModeMask == ModeDir
			if dstIsDir && !srcIsDir {
				return common.ErrIsDir
			}
			if !dstIsDir && srcIsDir {
				return common.ErrNotDir
			}
			if dstIsDir {
				count, err := tx.NewSelect().
					Model((*DentryModel)(nil)).
					Where("parent_ino = ?", existingIno).
					Count(ctx)
				if err != nil {
					return storageErr(err)
				}
				if count > 0 {
					return common.ErrNotEmpty
				}
			}
			if err := removeDentry(ctx, tx, newParentIno, newName, existingIno); err != nil {
				return err
			}
		case common.ErrNotFound:
		default:
			return err
		}

		_, err = tx.NewUpdate().
			Model((*DentryModel)(nil)).
			Set("parent_ino = ?", newParentIno).
			Set("name = ?", newName).
			Where("parent_ino = ?", oldParentIno).
			Where("name = ?", oldName).
			Exec(ctx)
		if err != nil {
			return storageErr(err)
		}
		_, err = tx.NewUpdate().
			Model((*InodeModel)(nil)).
			Set("ctime = ?", nowUnix()).
			Where("ino = ?", ino).
			Exec(ctx)
		return storageErr(err)
	})
}

// Truncate discards the contents of a regular file, leaving an empty file.
func (fs *FS) Truncate(ctx context.Context, p string) error {
	return fs.runInTx(ctx, func(tx bun.Tx) error {
		ino, err := resolve(ctx, tx, p, true)
		if err != nil {
			return err
		}
		stat, err := statInode(ctx, tx, ino)
		if err != nil {
			return err
		}
		if stat.IsDir() {
			return common.ErrIsDir
		}
		if err := deleteChunks(ctx, tx, ino); err != nil {
			return err
		}
		now := nowUnix()
		_, err = tx.NewUpdate().
			Model((*InodeModel)(nil)).
			Set("size = 0").
			Set("mtime = ?", now).
			Set("ctime = ?", now).
			Where("ino = ?", ino).
			Exec(ctx)
		return storageErr(err)
	})
}

// --- helpers ---

// createInode inserts an inode row plus the dentry naming it, atomically
// with respect to the surrounding transaction.
func createInode(ctx context.Context, tx bun.Tx, parentIno int64, name string, mode int64, size int64) (int64, error) {
	now := nowUnix()
	inode := &InodeModel{
		Mode:  mode,
		Size:  size,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
	// RETURNING: libsql does not support LastInsertId.
	_, err := tx.NewInsert().Model(inode).Returning("ino").Exec(ctx)
	if err != nil {
		return 0, storageErr(err)
	}
	_, err = tx.NewInsert().
		Model(&DentryModel{ParentIno: parentIno, Name: name, Ino: inode.Ino}).
		Exec(ctx)
	if err != nil {
		return 0, storageErr(err)
	}
	return inode.Ino, nil
}

// ensureDirs resolves a directory path inside a transaction, creating
// missing intermediates with the default directory mode.
func ensureDirs(ctx context.Context, tx bun.Tx, p string) (int64, error) {
	p = common.NormalizePath(p)
	currentIno := int64(RootIno)
	for _, component := range common.SplitPath(p) {
		ino, mode, err := lookupChild(ctx, tx, currentIno, component)
		switch err {
		case nil:
			if mode&ModeMask == ModeSymlink {
				// Intermediate symlinks in create paths resolve through the
				// full resolver from this point.
				return resolve(ctx, tx, p, true)
			}
			if mode&ModeMask != ModeDir {
				return 0, common.ErrNotDir
			}
			currentIno = ino
		case common.ErrNotFound:
			ino, err = createInode(ctx, tx, currentIno, component, DefaultDirMode, 0)
			if err != nil {
				return 0, err
			}
			currentIno = ino
		default:
			return 0, err
		}
	}
	return currentIno, nil
}

// removeDentry deletes one dentry and, when it was the last reference,
// the inode with its data and symlink rows.
func removeDentry(ctx context.Context, tx bun.Tx, parentIno int64, name string, ino int64) error {
	_, err := tx.NewDelete().
		Model((*DentryModel)(nil)).
		Where("parent_ino = ?", parentIno).
		Where("name = ?", name).
		Exec(ctx)
	if err != nil {
		return storageErr(err)
	}

	remaining, err := tx.NewSelect().
		Model((*DentryModel)(nil)).
		Where("ino = ?", ino).
		Count(ctx)
	if err != nil {
		return storageErr(err)
	}
	if remaining > 0 {
		_, err = tx.NewUpdate().
			Model((*InodeModel)(nil)).
			Set("ctime = ?", nowUnix()).
			Where("ino = ?", ino).
			Exec(ctx)
		return storageErr(err)
	}

	if err := deleteChunks(ctx, tx, ino); err != nil {
		return err
	}
	if _, err := tx.NewDelete().Model((*SymlinkModel)(nil)).Where("ino = ?", ino).Exec(ctx); err != nil {
		return storageErr(err)
	}
	_, err = tx.NewDelete().Model((*InodeModel)(nil)).Where("ino = ?", ino).Exec(ctx)
	return storageErr(err)
}

// writeChunks stores data as chunks keyed by byte offset.
func writeChunks(ctx context.Context, tx bun.Tx, ino int64, data []byte) error {
	for offset := 0; offset < len(data); offset += ChunkSize {
		end := offset + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		_, err := tx.NewInsert().
			Model(&DataModel{Ino: ino, Offset: int64(offset), Size: int64(len(chunk)), Data: chunk}).
			Exec(ctx)
		if err != nil {
			return storageErr(err)
		}
	}
	return nil
}

// readChunks concatenates all chunks for an inode in offset order.
func readChunks(ctx context.Context, idb bun.IDB, ino int64) ([]byte, error) {
	var chunks []DataModel
	err := idb.NewSelect().
		Model(&chunks).
		Where("ino = ?", ino).
		Order("offset ASC").
		Scan(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	var data []byte
	for _, c := range chunks {
		data = append(data, c.Data...)
	}
	return data, nil
}

// deleteChunks removes every data row for an inode.
func deleteChunks(ctx context.Context, tx bun.Tx, ino int64) error {
	_, err := tx.NewDelete().Model((*DataModel)(nil)).Where("ino = ?", ino).Exec(ctx)
	return storageErr(err)
}
