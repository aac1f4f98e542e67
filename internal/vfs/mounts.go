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

package vfs

import (
	"fmt"
	"strings"

	"agentstore/internal/common"
)

// Mount binds a FileSystem at a guest path prefix.
type Mount struct {
	Prefix string
	FS     FileSystem
}

// MountTable composes several filesystems at different prefixes. Lookup
// returns the longest-prefix match. The table is immutable after
// construction and may be shared freely.
type MountTable struct {
	mounts []Mount
}

// NewMountTable builds a table from the given mounts. Prefixes that
// overlap by parent/child (e.g. /a and /a/b) are rejected.
func NewMountTable(mounts []Mount) (*MountTable, error) {
	normalized := make([]Mount, 0, len(mounts))
	for _, m := range mounts {
		prefix := common.NormalizePath(m.Prefix)
		for _, seen := range normalized {
			if prefix == seen.Prefix {
				return nil, fmt.Errorf("%w: duplicate mount prefix %s", common.ErrInvalidArgument, prefix)
			}
			if isPathPrefix(seen.Prefix, prefix) || isPathPrefix(prefix, seen.Prefix) {
				return nil, fmt.Errorf("%w: mount prefixes %s and %s overlap", common.ErrInvalidArgument, seen.Prefix, prefix)
			}
		}
		normalized = append(normalized, Mount{Prefix: prefix, FS: m.FS})
	}
	return &MountTable{mounts: normalized}, nil
}

// isPathPrefix reports whether outer is a path-component prefix of inner.
func isPathPrefix(outer, inner string) bool {
	if outer == "/" {
		return true
	}
	return strings.HasPrefix(inner, outer+"/")
}

// Mounts returns the table's entries in construction order.
func (t *MountTable) Mounts() []Mount {
	return t.mounts
}

// Contains reports whether path falls under some mount prefix.
func (t *MountTable) Contains(path string) bool {
	_, _, err := t.Lookup(path)
	return err == nil
}

// Lookup returns the filesystem whose prefix is the longest match for
// path, together with the path remainder after the prefix. Paths outside
// every mount fail with ErrNotFound.
func (t *MountTable) Lookup(path string) (FileSystem, string, error) {
	path = common.NormalizePath(path)

	var best *Mount
	for i := range t.mounts {
		m := &t.mounts[i]
		if path != m.Prefix && !isPathPrefix(m.Prefix, path) {
			continue
		}
		if best == nil || len(m.Prefix) > len(best.Prefix) {
			best = m
		}
	}
	if best == nil {
		return nil, "", common.ErrNotFound
	}

	remainder := strings.TrimPrefix(path, best.Prefix)
	return best.FS, common.NormalizePath(remainder), nil
}
