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
	"context"
	"errors"
	"io"
	"sync"

	"agentstore/internal/common"
	"agentstore/internal/storage"
)

// StoreFS is the FileSystem backend over the inode filesystem in the
// embedded database.
type StoreFS struct {
	fs *storage.FS
}

// NewStoreFS returns a store-backed filesystem.
func NewStoreFS(store *storage.Store) *StoreFS {
	return &StoreFS{fs: storage.NewFS(store)}
}

func statToAttr(s *storage.Stat) *Attr {
	return &Attr{
		Ino:   uint64(s.Ino),
		Mode:  s.Mode,
		Nlink: uint64(s.Nlink),
		Uid:   s.Uid,
		Gid:   s.Gid,
		Size:  s.Size,
		Atime: s.Atime,
		Mtime: s.Mtime,
		Ctime: s.Ctime,
	}
}

// Open opens path. Regular-file handles copy the content at open time and
// flush the whole buffer back on close, matching the whole-file-replace
// write contract of the store.
func (s *StoreFS) Open(ctx context.Context, path string, flags int, mode uint32) (Handle, error) {
	stat, err := s.fs.Stat(ctx, path)
	switch {
	case err == nil:
		if flags&O_CREATE != 0 && flags&O_EXCL != 0 {
			return nil, common.ErrExists
		}
	case errors.Is(err, common.ErrNotFound) && flags&O_CREATE != 0:
		if err := s.fs.WriteFile(ctx, path, nil); err != nil {
			return nil, err
		}
		stat, err = s.fs.Stat(ctx, path)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if stat.IsDir() {
		if flags&AccessModeMask != O_RDONLY {
			return nil, common.ErrIsDir
		}
		entries, err := s.Readdir(ctx, path)
		if err != nil {
			return nil, err
		}
		return &storeDirHandle{attr: statToAttr(stat), entries: entries}, nil
	}

	var buf []byte
	if flags&O_TRUNC != 0 {
		if err := s.fs.Truncate(ctx, path); err != nil {
			return nil, err
		}
	} else {
		buf, err = s.fs.ReadFile(ctx, path)
		if err != nil {
			return nil, err
		}
	}

	h := &storeFileHandle{
		ctx:   ctx,
		fs:    s.fs,
		path:  path,
		flags: flags,
		attr:  statToAttr(stat),
		buf:   buf,
	}
	if flags&O_APPEND != 0 {
		h.pos = int64(len(buf))
	}
	return h, nil
}

// Stat follows terminal symlinks.
func (s *StoreFS) Stat(ctx context.Context, path string) (*Attr, error) {
	st, err := s.fs.Stat(ctx, path)
	if err != nil {
		return nil, err
	}
	return statToAttr(st), nil
}

// Lstat does not follow a terminal symlink.
func (s *StoreFS) Lstat(ctx context.Context, path string) (*Attr, error) {
	st, err := s.fs.Lstat(ctx, path)
	if err != nil {
		return nil, err
	}
	return statToAttr(st), nil
}

// Readdir lists a directory in lexicographic order.
func (s *StoreFS) Readdir(ctx context.Context, path string) ([]Entry, error) {
	plus, err := s.fs.ReaddirPlus(ctx, path)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(plus))
	for _, e := range plus {
		entries = append(entries, Entry{
			Name: e.Name,
			Ino:  uint64(e.Stat.Ino),
			Mode: e.Stat.Mode,
			Size: e.Stat.Size,
		})
	}
	return entries, nil
}

func (s *StoreFS) Mkdir(ctx context.Context, path string, mode uint32) error {
	return s.fs.Mkdir(ctx, path, mode)
}

func (s *StoreFS) Rmdir(ctx context.Context, path string) error {
	return s.fs.Rmdir(ctx, path)
}

func (s *StoreFS) Unlink(ctx context.Context, path string) error {
	return s.fs.Unlink(ctx, path)
}

func (s *StoreFS) Rename(ctx context.Context, oldPath, newPath string) error {
	return s.fs.Rename(ctx, oldPath, newPath)
}

func (s *StoreFS) Link(ctx context.Context, oldPath, newPath string) error {
	return s.fs.Link(ctx, oldPath, newPath)
}

func (s *StoreFS) Symlink(ctx context.Context, target, linkPath string) error {
	return s.fs.Symlink(ctx, target, linkPath)
}

func (s *StoreFS) Readlink(ctx context.Context, path string) (string, error) {
	return s.fs.Readlink(ctx, path)
}

// storeFileHandle buffers a regular file's content. The handle owns its
// buffer; a dirty buffer is written back as a whole-file replace on close.
type storeFileHandle struct {
	ctx   context.Context
	fs    *storage.FS
	path  string
	flags int
	attr  *Attr

	mu     sync.Mutex
	buf    []byte
	pos    int64
	dirty  bool
	closed bool
}

func (h *storeFileHandle) readable() bool {
	return h.flags&AccessModeMask != O_WRONLY
}

func (h *storeFileHandle) writable() bool {
	return h.flags&AccessModeMask != O_RDONLY
}

func (h *storeFileHandle) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, common.ErrBadHandle
	}
	if !h.readable() {
		return 0, common.ErrBadHandle
	}
	if h.pos >= int64(len(h.buf)) {
		return 0, io.EOF
	}
	n := copy(p, h.buf[h.pos:])
	h.pos += int64(n)
	return n, nil
}

func (h *storeFileHandle) ReadAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, common.ErrBadHandle
	}
	if !h.readable() {
		return 0, common.ErrBadHandle
	}
	if off < 0 {
		return 0, common.ErrInvalidArgument
	}
	if off >= int64(len(h.buf)) {
		return 0, io.EOF
	}
	return copy(p, h.buf[off:]), nil
}

func (h *storeFileHandle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, common.ErrBadHandle
	}
	if !h.writable() {
		return 0, common.ErrBadHandle
	}
	if h.flags&O_APPEND != 0 {
		h.pos = int64(len(h.buf))
	}
	n := h.writeAtLocked(p, h.pos)
	h.pos += int64(n)
	return n, nil
}

func (h *storeFileHandle) WriteAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, common.ErrBadHandle
	}
	if !h.writable() {
		return 0, common.ErrBadHandle
	}
	if off < 0 {
		return 0, common.ErrInvalidArgument
	}
	return h.writeAtLocked(p, off), nil
}

func (h *storeFileHandle) writeAtLocked(p []byte, off int64) int {
	end := off + int64(len(p))
	if end > int64(len(h.buf)) {
		grown := make([]byte, end)
		copy(grown, h.buf)
		h.buf = grown
	}
	copy(h.buf[off:], p)
	h.dirty = true
	return len(p)
}

func (h *storeFileHandle) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, common.ErrBadHandle
	}
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = h.pos + offset
	case io.SeekEnd:
		next = int64(len(h.buf)) + offset
	default:
		return 0, common.ErrInvalidArgument
	}
	if next < 0 {
		return 0, common.ErrInvalidArgument
	}
	h.pos = next
	return next, nil
}

func (h *storeFileHandle) Attr() (*Attr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, common.ErrBadHandle
	}
	attr := *h.attr
	attr.Size = int64(len(h.buf))
	return &attr, nil
}

func (h *storeFileHandle) Entries() ([]Entry, error) {
	return nil, common.ErrNotDir
}

func (h *storeFileHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return common.ErrBadHandle
	}
	h.closed = true
	if h.dirty {
		return h.fs.WriteFile(h.ctx, h.path, h.buf)
	}
	return nil
}

// storeDirHandle is an open directory: a snapshot of its entries taken at
// open time.
type storeDirHandle struct {
	mu      sync.Mutex
	attr    *Attr
	entries []Entry
	closed  bool
}

func (h *storeDirHandle) Read(p []byte) (int, error)               { return 0, common.ErrIsDir }
func (h *storeDirHandle) Write(p []byte) (int, error)              { return 0, common.ErrIsDir }
func (h *storeDirHandle) ReadAt(p []byte, off int64) (int, error)  { return 0, common.ErrIsDir }
func (h *storeDirHandle) WriteAt(p []byte, off int64) (int, error) { return 0, common.ErrIsDir }

func (h *storeDirHandle) Seek(offset int64, whence int) (int64, error) {
	if offset == 0 && whence == io.SeekStart {
		return 0, nil
	}
	return 0, common.ErrInvalidArgument
}

func (h *storeDirHandle) Attr() (*Attr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, common.ErrBadHandle
	}
	return h.attr, nil
}

func (h *storeDirHandle) Entries() ([]Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, common.ErrBadHandle
	}
	return h.entries, nil
}

func (h *storeDirHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return common.ErrBadHandle
	}
	h.closed = true
	return nil
}
