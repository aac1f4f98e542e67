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
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"

	"agentstore/internal/common"
)

// Passthrough is the FileSystem backend that forwards every operation to
// the host filesystem under a fixed root directory.
type Passthrough struct {
	root string
}

// NewPassthrough returns a passthrough filesystem rooted at root.
func NewPassthrough(root string) *Passthrough {
	return &Passthrough{root: filepath.Clean(root)}
}

// hostPath joins the guest-visible path onto the root. The path is
// normalized first so ".." cannot escape the root.
func (p *Passthrough) hostPath(guestPath string) string {
	return filepath.Join(p.root, filepath.FromSlash(common.NormalizePath(guestPath)))
}

// mapHostErr translates host filesystem errors to the common error kinds.
// Unknown host errors fold to ErrIO.
func mapHostErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case os.IsNotExist(err):
		return common.ErrNotFound
	case errors.Is(err, syscall.ENOTEMPTY):
		// Checked before IsExist, which also matches ENOTEMPTY.
		return common.ErrNotEmpty
	case os.IsExist(err):
		return common.ErrExists
	}
	var errno syscall.Errno
	if pe, ok := err.(*os.PathError); ok {
		if e, ok := pe.Err.(syscall.Errno); ok {
			errno = e
		}
	} else if le, ok := err.(*os.LinkError); ok {
		if e, ok := le.Err.(syscall.Errno); ok {
			errno = e
		}
	}
	switch errno {
	case syscall.ENOTDIR:
		return common.ErrNotDir
	case syscall.EISDIR:
		return common.ErrIsDir
	case syscall.ENOTEMPTY:
		return common.ErrNotEmpty
	case syscall.ELOOP:
		return common.ErrSymlinkLoop
	case syscall.EINVAL:
		return common.ErrInvalidArgument
	case syscall.EXDEV:
		return common.ErrCrossDevice
	case syscall.EBADF:
		return common.ErrBadHandle
	}
	return common.ErrIO
}

func infoToAttr(info fs.FileInfo) *Attr {
	attr := &Attr{
		Mode: uint32(info.Mode().Perm()),
		Size: info.Size(),
	}
	switch {
	case info.IsDir():
		attr.Mode |= 0o040000
	case info.Mode()&fs.ModeSymlink != 0:
		attr.Mode |= 0o120000
	default:
		attr.Mode |= 0o100000
	}
	attr.Mtime = info.ModTime()
	fillAttrFromInfo(attr, info)
	return attr
}

func (p *Passthrough) Open(ctx context.Context, path string, flags int, mode uint32) (Handle, error) {
	f, err := os.OpenFile(p.hostPath(path), flags, fs.FileMode(mode&0o777))
	if err != nil {
		return nil, mapHostErr(err)
	}
	return &hostHandle{file: f}, nil
}

func (p *Passthrough) Stat(ctx context.Context, path string) (*Attr, error) {
	info, err := os.Stat(p.hostPath(path))
	if err != nil {
		return nil, mapHostErr(err)
	}
	return infoToAttr(info), nil
}

func (p *Passthrough) Lstat(ctx context.Context, path string) (*Attr, error) {
	info, err := os.Lstat(p.hostPath(path))
	if err != nil {
		return nil, mapHostErr(err)
	}
	return infoToAttr(info), nil
}

func (p *Passthrough) Readdir(ctx context.Context, path string) ([]Entry, error) {
	dirents, err := os.ReadDir(p.hostPath(path))
	if err != nil {
		return nil, mapHostErr(err)
	}
	entries := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		info, err := de.Info()
		if err != nil {
			continue
		}
		attr := infoToAttr(info)
		entries = append(entries, Entry{
			Name: de.Name(),
			Ino:  attr.Ino,
			Mode: attr.Mode,
			Size: attr.Size,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (p *Passthrough) Mkdir(ctx context.Context, path string, mode uint32) error {
	return mapHostErr(os.Mkdir(p.hostPath(path), fs.FileMode(mode&0o777)))
}

func (p *Passthrough) Rmdir(ctx context.Context, path string) error {
	host := p.hostPath(path)
	info, err := os.Lstat(host)
	if err != nil {
		return mapHostErr(err)
	}
	if !info.IsDir() {
		return common.ErrNotDir
	}
	return mapHostErr(os.Remove(host))
}

func (p *Passthrough) Unlink(ctx context.Context, path string) error {
	host := p.hostPath(path)
	info, err := os.Lstat(host)
	if err != nil {
		return mapHostErr(err)
	}
	if info.IsDir() {
		return common.ErrIsDir
	}
	return mapHostErr(os.Remove(host))
}

func (p *Passthrough) Rename(ctx context.Context, oldPath, newPath string) error {
	return mapHostErr(os.Rename(p.hostPath(oldPath), p.hostPath(newPath)))
}

func (p *Passthrough) Link(ctx context.Context, oldPath, newPath string) error {
	return mapHostErr(os.Link(p.hostPath(oldPath), p.hostPath(newPath)))
}

func (p *Passthrough) Symlink(ctx context.Context, target, linkPath string) error {
	// The target is stored verbatim, matching the store backend.
	return mapHostErr(os.Symlink(target, p.hostPath(linkPath)))
}

func (p *Passthrough) Readlink(ctx context.Context, path string) (string, error) {
	target, err := os.Readlink(p.hostPath(path))
	if err != nil {
		return "", mapHostErr(err)
	}
	return target, nil
}

// hostHandle wraps an open host file.
type hostHandle struct {
	mu     sync.Mutex
	file   *os.File
	closed bool
}

func (h *hostHandle) guard() error {
	if h.closed {
		return common.ErrBadHandle
	}
	return nil
}

func (h *hostHandle) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.guard(); err != nil {
		return 0, err
	}
	n, err := h.file.Read(p)
	if err != nil && err != io.EOF {
		return n, mapHostErr(err)
	}
	return n, err
}

func (h *hostHandle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.guard(); err != nil {
		return 0, err
	}
	n, err := h.file.Write(p)
	return n, mapHostErr(err)
}

func (h *hostHandle) ReadAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.guard(); err != nil {
		return 0, err
	}
	n, err := h.file.ReadAt(p, off)
	if err != nil && err != io.EOF {
		return n, mapHostErr(err)
	}
	return n, err
}

func (h *hostHandle) WriteAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.guard(); err != nil {
		return 0, err
	}
	n, err := h.file.WriteAt(p, off)
	return n, mapHostErr(err)
}

func (h *hostHandle) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.guard(); err != nil {
		return 0, err
	}
	pos, err := h.file.Seek(offset, whence)
	return pos, mapHostErr(err)
}

func (h *hostHandle) Attr() (*Attr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.guard(); err != nil {
		return nil, err
	}
	info, err := h.file.Stat()
	if err != nil {
		return nil, mapHostErr(err)
	}
	return infoToAttr(info), nil
}

func (h *hostHandle) Entries() ([]Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.guard(); err != nil {
		return nil, err
	}
	dirents, err := h.file.ReadDir(-1)
	if err != nil {
		return nil, mapHostErr(err)
	}
	// Rewind so a later Entries call sees the full listing again.
	if _, err := h.file.Seek(0, io.SeekStart); err != nil {
		return nil, mapHostErr(err)
	}
	entries := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		info, err := de.Info()
		if err != nil {
			continue
		}
		attr := infoToAttr(info)
		entries = append(entries, Entry{
			Name: de.Name(),
			Ino:  attr.Ino,
			Mode: attr.Mode,
			Size: attr.Size,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (h *hostHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return common.ErrBadHandle
	}
	h.closed = true
	return mapHostErr(h.file.Close())
}
