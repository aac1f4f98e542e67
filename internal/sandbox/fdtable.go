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

package sandbox

import (
	"sync"

	"agentstore/internal/common"
	"agentstore/internal/vfs"
)

// FdBase is the first virtual file descriptor number. The range is chosen
// to stay clear of kernel-issued fds in normal programs.
const FdBase = 1000

// OpenFile is one open file description. dup'd descriptors share it, so
// position and directory cursor behave like a kernel open file
// description. The last descriptor referencing it releases the handle.
type OpenFile struct {
	mu     sync.Mutex
	Handle vfs.Handle
	Path   string // absolute guest path
	Flags  int
	refs   int
	dirPos int
}

// DirPos returns the directory stream cursor.
func (f *OpenFile) DirPos() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirPos
}

// SetDirPos sets the directory stream cursor.
func (f *OpenFile) SetDirPos(pos int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirPos = pos
}

type fdRef struct {
	file    *OpenFile
	cloexec bool
}

// FDTables maintains, per traced task id, the mapping from virtual fd
// number to open file. All tables are guarded by a single lock; each
// critical section is a map lookup or, when a task forks, a table copy.
type FDTables struct {
	mu     sync.Mutex
	tables map[int]map[int]*fdRef
}

// NewFDTables returns an empty set of per-task tables.
func NewFDTables() *FDTables {
	return &FDTables{tables: make(map[int]map[int]*fdRef)}
}

// IsVirtual reports whether fd falls into the virtual range.
func IsVirtual(fd int) bool {
	return fd >= FdBase
}

func (t *FDTables) table(pid int) map[int]*fdRef {
	table, ok := t.tables[pid]
	if !ok {
		table = make(map[int]*fdRef)
		t.tables[pid] = table
	}
	return table
}

// allocFd returns the smallest free number at or above base.
func allocFd(table map[int]*fdRef, base int) int {
	fd := base
	for {
		if _, used := table[fd]; !used {
			return fd
		}
		fd++
	}
}

// Open installs a handle into pid's table and returns its virtual fd.
func (t *FDTables) Open(pid int, h vfs.Handle, path string, flags int, cloexec bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	table := t.table(pid)
	fd := allocFd(table, FdBase)
	table[fd] = &fdRef{
		file:    &OpenFile{Handle: h, Path: path, Flags: flags, refs: 1},
		cloexec: cloexec,
	}
	return fd
}

// Get returns the open file for a virtual fd, or ErrBadHandle.
func (t *FDTables) Get(pid, fd int) (*OpenFile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ref, ok := t.tables[pid][fd]
	if !ok {
		return nil, common.ErrBadHandle
	}
	return ref.file, nil
}

// Close removes fd from pid's table. The handle is released when the last
// descriptor referencing the open file goes away. Closing an unknown fd
// fails with ErrBadHandle.
func (t *FDTables) Close(pid, fd int) error {
	t.mu.Lock()
	ref, ok := t.tables[pid][fd]
	if !ok {
		t.mu.Unlock()
		return common.ErrBadHandle
	}
	delete(t.tables[pid], fd)
	ref.file.refs--
	last := ref.file.refs == 0
	t.mu.Unlock()

	if last {
		return ref.file.Handle.Close()
	}
	return nil
}

// Dup duplicates oldfd onto the smallest free virtual fd at or above
// minFd, sharing the open file description.
func (t *FDTables) Dup(pid, oldfd, minFd int, cloexec bool) (int, error) {
	if minFd < FdBase {
		minFd = FdBase
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ref, ok := t.tables[pid][oldfd]
	if !ok {
		return 0, common.ErrBadHandle
	}
	table := t.table(pid)
	fd := allocFd(table, minFd)
	ref.file.refs++
	table[fd] = &fdRef{file: ref.file, cloexec: cloexec}
	return fd, nil
}

// DupTo duplicates oldfd onto newfd, closing newfd first if it is open.
func (t *FDTables) DupTo(pid, oldfd, newfd int, cloexec bool) error {
	t.mu.Lock()
	ref, ok := t.tables[pid][oldfd]
	if !ok {
		t.mu.Unlock()
		return common.ErrBadHandle
	}
	var toClose *OpenFile
	prev, hadPrev := t.tables[pid][newfd]
	if !hadPrev || prev.file != ref.file {
		if hadPrev {
			prev.file.refs--
			if prev.file.refs == 0 {
				toClose = prev.file
			}
		}
		ref.file.refs++
	}
	t.table(pid)[newfd] = &fdRef{file: ref.file, cloexec: cloexec}
	t.mu.Unlock()

	if toClose != nil {
		return toClose.Handle.Close()
	}
	return nil
}

// Fork duplicates the parent's table for a new child task. Every entry
// shares its open file description with the parent, matching fork
// semantics.
func (t *FDTables) Fork(parent, child int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	childTable := make(map[int]*fdRef)
	for fd, ref := range t.tables[parent] {
		ref.file.refs++
		childTable[fd] = &fdRef{file: ref.file, cloexec: ref.cloexec}
	}
	t.tables[child] = childTable
}

// Exec drops descriptors marked close-on-exec; the rest remain valid.
func (t *FDTables) Exec(pid int) {
	t.mu.Lock()
	var closers []*OpenFile
	for fd, ref := range t.tables[pid] {
		if !ref.cloexec {
			continue
		}
		delete(t.tables[pid], fd)
		ref.file.refs--
		if ref.file.refs == 0 {
			closers = append(closers, ref.file)
		}
	}
	t.mu.Unlock()

	for _, f := range closers {
		_ = f.Handle.Close()
	}
}

// Exit releases every descriptor of a task that has exited.
func (t *FDTables) Exit(pid int) {
	t.mu.Lock()
	var closers []*OpenFile
	for _, ref := range t.tables[pid] {
		ref.file.refs--
		if ref.file.refs == 0 {
			closers = append(closers, ref.file)
		}
	}
	delete(t.tables, pid)
	t.mu.Unlock()

	for _, f := range closers {
		_ = f.Handle.Close()
	}
}

// SetCloexec updates the close-on-exec flag of one descriptor.
func (t *FDTables) SetCloexec(pid, fd int, cloexec bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ref, ok := t.tables[pid][fd]
	if !ok {
		return common.ErrBadHandle
	}
	ref.cloexec = cloexec
	return nil
}

// Cloexec reports the close-on-exec flag of one descriptor.
func (t *FDTables) Cloexec(pid, fd int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ref, ok := t.tables[pid][fd]
	if !ok {
		return false, common.ErrBadHandle
	}
	return ref.cloexec, nil
}
