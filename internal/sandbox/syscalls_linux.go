//go:build linux && amd64

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"agentstore/internal/common"
	"agentstore/internal/vfs"
)

// ioChunkLimit bounds a single serviced read or write. Returning fewer
// bytes than requested is legal for read(2)/write(2); guests retry.
const ioChunkLimit = 1 << 20

// guestOpenFlagsMask selects the open(2) bits the VFS layer understands.
// The values match the os package on linux/amd64.
const guestOpenFlagsMask = unix.O_ACCMODE | unix.O_CREAT | unix.O_EXCL |
	unix.O_TRUNC | unix.O_APPEND

func errnoResult(err error) int64 {
	return -int64(errnoFor(err))
}

// resolveArgPath turns a syscall path argument into an absolute guest
// path. Relative paths resolve against the task's working directory for
// AT_FDCWD, or against the directory named by a virtual dirfd. A
// relative path under a real (kernel) dirfd cannot be resolved and is
// passed through.
func (s *Supervisor) resolveArgPath(pid, dirfd int, raw string) (string, bool) {
	switch {
	case strings.HasPrefix(raw, "/"):
		return common.NormalizePath(raw), true
	case dirfd == unix.AT_FDCWD:
		return common.NormalizePath(path.Join(s.cwd[pid], raw)), true
	case IsVirtual(dirfd):
		file, err := s.fds.Get(pid, dirfd)
		if err != nil {
			return "", false
		}
		return common.NormalizePath(path.Join(file.Path, raw)), true
	default:
		return "", false
	}
}

// mountFor returns the backend and remainder for an absolute guest path,
// or ok=false when the path is outside every mount and must be passed
// through to the kernel.
func (s *Supervisor) mountFor(p string) (vfs.FileSystem, string, bool) {
	fs, rem, err := s.table.Lookup(p)
	if err != nil {
		return nil, "", false
	}
	return fs, rem, true
}

// dispatch decides whether to service the syscall in regs virtually.
// It returns handled=false for anything the kernel should execute.
func (s *Supervisor) dispatch(pid int, regs *unix.PtraceRegs) (bool, int64) {
	nr := regs.Orig_rax
	a0, a1, a2 := regs.Rdi, regs.Rsi, regs.Rdx
	a3, a4 := regs.R10, regs.R8
	ctx := context.Background()

	switch nr {
	case unix.SYS_OPEN:
		return s.sysOpenat(ctx, pid, unix.AT_FDCWD, uintptr(a0), int(int32(a1)), uint32(a2))
	case unix.SYS_OPENAT:
		return s.sysOpenat(ctx, pid, int(int32(a0)), uintptr(a1), int(int32(a2)), uint32(a3))
	case unix.SYS_CLOSE:
		return s.sysClose(pid, int(int32(a0)))
	case unix.SYS_READ:
		return s.sysRead(pid, int(int32(a0)), uintptr(a1), int64(a2), -1)
	case unix.SYS_PREAD64:
		return s.sysRead(pid, int(int32(a0)), uintptr(a1), int64(a2), int64(a3))
	case unix.SYS_WRITE:
		return s.sysWrite(pid, int(int32(a0)), uintptr(a1), int64(a2), -1)
	case unix.SYS_PWRITE64:
		return s.sysWrite(pid, int(int32(a0)), uintptr(a1), int64(a2), int64(a3))
	case unix.SYS_LSEEK:
		return s.sysLseek(pid, int(int32(a0)), int64(a1), int(int32(a2)))
	case unix.SYS_FSTAT:
		return s.sysFstat(pid, int(int32(a0)), uintptr(a1))
	case unix.SYS_STAT:
		return s.sysStatPath(ctx, pid, "stat", uintptr(a0), uintptr(a1), true)
	case unix.SYS_LSTAT:
		return s.sysStatPath(ctx, pid, "lstat", uintptr(a0), uintptr(a1), false)
	case unix.SYS_NEWFSTATAT:
		return s.sysNewfstatat(ctx, pid, int(int32(a0)), uintptr(a1), uintptr(a2), int(int32(a3)))
	case unix.SYS_ACCESS:
		return s.sysAccess(ctx, pid, "access", unix.AT_FDCWD, uintptr(a0))
	case unix.SYS_FACCESSAT:
		return s.sysAccess(ctx, pid, "faccessat", int(int32(a0)), uintptr(a1))
	case unix.SYS_FACCESSAT2:
		return s.sysAccess(ctx, pid, "faccessat2", int(int32(a0)), uintptr(a1))
	case unix.SYS_GETDENTS64:
		return s.sysGetdents64(pid, int(int32(a0)), uintptr(a1), int(int32(a2)))
	case unix.SYS_MKDIR:
		return s.sysMkdirat(ctx, pid, unix.AT_FDCWD, uintptr(a0), uint32(a1))
	case unix.SYS_MKDIRAT:
		return s.sysMkdirat(ctx, pid, int(int32(a0)), uintptr(a1), uint32(a2))
	case unix.SYS_RMDIR:
		return s.sysRmdir(ctx, pid, uintptr(a0))
	case unix.SYS_UNLINK:
		return s.sysUnlinkat(ctx, pid, unix.AT_FDCWD, uintptr(a0), 0)
	case unix.SYS_UNLINKAT:
		return s.sysUnlinkat(ctx, pid, int(int32(a0)), uintptr(a1), int(int32(a2)))
	case unix.SYS_RENAME:
		return s.sysRenameat(ctx, pid, unix.AT_FDCWD, uintptr(a0), unix.AT_FDCWD, uintptr(a1), 0)
	case unix.SYS_RENAMEAT:
		return s.sysRenameat(ctx, pid, int(int32(a0)), uintptr(a1), int(int32(a2)), uintptr(a3), 0)
	case unix.SYS_RENAMEAT2:
		return s.sysRenameat(ctx, pid, int(int32(a0)), uintptr(a1), int(int32(a2)), uintptr(a3), int(int32(a4)))
	case unix.SYS_LINK:
		return s.sysLinkat(ctx, pid, unix.AT_FDCWD, uintptr(a0), unix.AT_FDCWD, uintptr(a1))
	case unix.SYS_LINKAT:
		return s.sysLinkat(ctx, pid, int(int32(a0)), uintptr(a1), int(int32(a2)), uintptr(a3))
	case unix.SYS_SYMLINK:
		return s.sysSymlinkat(ctx, pid, uintptr(a0), unix.AT_FDCWD, uintptr(a1))
	case unix.SYS_SYMLINKAT:
		return s.sysSymlinkat(ctx, pid, uintptr(a0), int(int32(a1)), uintptr(a2))
	case unix.SYS_READLINK:
		return s.sysReadlinkat(ctx, pid, unix.AT_FDCWD, uintptr(a0), uintptr(a1), int64(a2))
	case unix.SYS_READLINKAT:
		return s.sysReadlinkat(ctx, pid, int(int32(a0)), uintptr(a1), uintptr(a2), int64(a3))
	case unix.SYS_DUP:
		return s.sysDup(pid, int(int32(a0)))
	case unix.SYS_DUP2:
		return s.sysDup2(pid, int(int32(a0)), int(int32(a1)), 0)
	case unix.SYS_DUP3:
		return s.sysDup2(pid, int(int32(a0)), int(int32(a1)), int(int32(a2)))
	case unix.SYS_FCNTL:
		return s.sysFcntl(pid, int(int32(a0)), int(int32(a1)), int64(a2))
	case unix.SYS_CHDIR:
		return s.sysChdir(ctx, pid, uintptr(a0))
	case unix.SYS_FCHDIR:
		return s.sysFchdir(pid, int(int32(a0)))
	case unix.SYS_GETCWD:
		return s.sysGetcwd(pid, uintptr(a0), int(a1))
	}
	return false, 0
}

func (s *Supervisor) sysOpenat(ctx context.Context, pid, dirfd int, pathAddr uintptr, flags int, mode uint32) (bool, int64) {
	raw, err := readGuestString(pid, pathAddr)
	if err != nil {
		return false, 0
	}
	abs, ok := s.resolveArgPath(pid, dirfd, raw)
	if !ok {
		return false, 0
	}
	fs, rem, ok := s.mountFor(abs)
	if !ok {
		return false, 0
	}

	result := func() int64 {
		h, err := fs.Open(ctx, rem, flags&guestOpenFlagsMask, mode)
		if err != nil {
			return errnoResult(err)
		}
		if flags&unix.O_DIRECTORY != 0 {
			attr, aerr := h.Attr()
			if aerr != nil || !attr.IsDir() {
				h.Close()
				return errnoResult(common.ErrNotDir)
			}
		}
		cloexec := flags&unix.O_CLOEXEC != 0
		return int64(s.fds.Open(pid, h, abs, flags, cloexec))
	}()

	s.trace.Emit(pid, "openat", []string{quote(abs), openFlagNames(flags)}, result)
	return true, result
}

func (s *Supervisor) sysClose(pid, fd int) (bool, int64) {
	if !IsVirtual(fd) {
		return false, 0
	}
	var result int64
	if err := s.fds.Close(pid, fd); err != nil {
		result = errnoResult(err)
	}
	s.trace.Emit(pid, "close", []string{fmt.Sprintf("%d", fd)}, result)
	return true, result
}

func (s *Supervisor) sysRead(pid, fd int, bufAddr uintptr, count, offset int64) (bool, int64) {
	if !IsVirtual(fd) {
		return false, 0
	}
	name := "read"
	if offset >= 0 {
		name = "pread64"
	}

	result := func() int64 {
		file, err := s.fds.Get(pid, fd)
		if err != nil {
			return errnoResult(err)
		}
		if count > ioChunkLimit {
			count = ioChunkLimit
		}
		buf := make([]byte, count)
		var n int
		if offset >= 0 {
			n, err = file.Handle.ReadAt(buf, offset)
		} else {
			n, err = file.Handle.Read(buf)
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return errnoResult(err)
		}
		if n > 0 {
			if werr := writeGuestBytes(pid, bufAddr, buf[:n]); werr != nil {
				return -int64(syscall.EFAULT)
			}
		}
		return int64(n)
	}()

	s.trace.Emit(pid, name, []string{fmt.Sprintf("%d", fd), fmt.Sprintf("%d", count)}, result)
	return true, result
}

func (s *Supervisor) sysWrite(pid, fd int, bufAddr uintptr, count, offset int64) (bool, int64) {
	if !IsVirtual(fd) {
		return false, 0
	}
	name := "write"
	if offset >= 0 {
		name = "pwrite64"
	}

	result := func() int64 {
		file, err := s.fds.Get(pid, fd)
		if err != nil {
			return errnoResult(err)
		}
		if count > ioChunkLimit {
			count = ioChunkLimit
		}
		data, rerr := readGuestBytes(pid, bufAddr, int(count))
		if rerr != nil {
			return -int64(syscall.EFAULT)
		}
		var n int
		if offset >= 0 {
			n, err = file.Handle.WriteAt(data, offset)
		} else {
			n, err = file.Handle.Write(data)
		}
		if err != nil {
			return errnoResult(err)
		}
		return int64(n)
	}()

	s.trace.Emit(pid, name, []string{fmt.Sprintf("%d", fd), fmt.Sprintf("%d", count)}, result)
	return true, result
}

func (s *Supervisor) sysLseek(pid, fd int, offset int64, whence int) (bool, int64) {
	if !IsVirtual(fd) {
		return false, 0
	}

	result := func() int64 {
		file, err := s.fds.Get(pid, fd)
		if err != nil {
			return errnoResult(err)
		}
		if whence < 0 || whence > 2 {
			return errnoResult(common.ErrInvalidArgument)
		}
		// SEEK_SET/CUR/END share values with io.Seek* whences.
		pos, err := file.Handle.Seek(offset, whence)
		if err != nil {
			return errnoResult(err)
		}
		return pos
	}()

	s.trace.Emit(pid, "lseek", []string{fmt.Sprintf("%d", fd), fmt.Sprintf("%d", offset), fmt.Sprintf("%d", whence)}, result)
	return true, result
}

func (s *Supervisor) sysFstat(pid, fd int, statAddr uintptr) (bool, int64) {
	if !IsVirtual(fd) {
		return false, 0
	}

	result := func() int64 {
		file, err := s.fds.Get(pid, fd)
		if err != nil {
			return errnoResult(err)
		}
		attr, err := file.Handle.Attr()
		if err != nil {
			return errnoResult(err)
		}
		if werr := writeGuestBytes(pid, statAddr, encodeStat(attr)); werr != nil {
			return -int64(syscall.EFAULT)
		}
		return 0
	}()

	s.trace.Emit(pid, "fstat", []string{fmt.Sprintf("%d", fd)}, result)
	return true, result
}

func (s *Supervisor) sysStatPath(ctx context.Context, pid int, name string, pathAddr, statAddr uintptr, follow bool) (bool, int64) {
	raw, err := readGuestString(pid, pathAddr)
	if err != nil {
		return false, 0
	}
	abs, ok := s.resolveArgPath(pid, unix.AT_FDCWD, raw)
	if !ok {
		return false, 0
	}
	fs, rem, ok := s.mountFor(abs)
	if !ok {
		return false, 0
	}

	result := s.statToGuest(ctx, pid, fs, rem, statAddr, follow)
	s.trace.Emit(pid, name, []string{quote(abs)}, result)
	return true, result
}

func (s *Supervisor) statToGuest(ctx context.Context, pid int, fs vfs.FileSystem, rem string, statAddr uintptr, follow bool) int64 {
	var attr *vfs.Attr
	var err error
	if follow {
		attr, err = fs.Stat(ctx, rem)
	} else {
		attr, err = fs.Lstat(ctx, rem)
	}
	if err != nil {
		return errnoResult(err)
	}
	if werr := writeGuestBytes(pid, statAddr, encodeStat(attr)); werr != nil {
		return -int64(syscall.EFAULT)
	}
	return 0
}

func (s *Supervisor) sysNewfstatat(ctx context.Context, pid, dirfd int, pathAddr, statAddr uintptr, flags int) (bool, int64) {
	raw, err := readGuestString(pid, pathAddr)
	if err != nil {
		return false, 0
	}

	if raw == "" && flags&unix.AT_EMPTY_PATH != 0 {
		return s.sysFstat(pid, dirfd, statAddr)
	}

	abs, ok := s.resolveArgPath(pid, dirfd, raw)
	if !ok {
		return false, 0
	}
	fs, rem, ok := s.mountFor(abs)
	if !ok {
		return false, 0
	}

	follow := flags&unix.AT_SYMLINK_NOFOLLOW == 0
	result := s.statToGuest(ctx, pid, fs, rem, statAddr, follow)
	s.trace.Emit(pid, "newfstatat", []string{quote(abs)}, result)
	return true, result
}

func (s *Supervisor) sysAccess(ctx context.Context, pid int, name string, dirfd int, pathAddr uintptr) (bool, int64) {
	raw, err := readGuestString(pid, pathAddr)
	if err != nil {
		return false, 0
	}
	abs, ok := s.resolveArgPath(pid, dirfd, raw)
	if !ok {
		return false, 0
	}
	fs, rem, ok := s.mountFor(abs)
	if !ok {
		return false, 0
	}

	// Permissions are stored, not enforced: existence decides access.
	var result int64
	if _, err := fs.Stat(ctx, rem); err != nil {
		result = errnoResult(err)
	}
	s.trace.Emit(pid, name, []string{quote(abs)}, result)
	return true, result
}

func (s *Supervisor) sysGetdents64(pid, fd int, dirpAddr uintptr, size int) (bool, int64) {
	if !IsVirtual(fd) {
		return false, 0
	}

	result := func() int64 {
		file, err := s.fds.Get(pid, fd)
		if err != nil {
			return errnoResult(err)
		}
		entries, err := file.Handle.Entries()
		if err != nil {
			return errnoResult(err)
		}
		attr, err := file.Handle.Attr()
		if err != nil {
			return errnoResult(err)
		}

		stream := dirStream(attr.Ino, entries)
		pos := file.DirPos()
		if pos >= len(stream) {
			return 0
		}
		buf, next := fillDirents(stream, pos, size)
		if len(buf) == 0 {
			return errnoResult(common.ErrInvalidArgument)
		}
		if werr := writeGuestBytes(pid, dirpAddr, buf); werr != nil {
			return -int64(syscall.EFAULT)
		}
		file.SetDirPos(next)
		return int64(len(buf))
	}()

	s.trace.Emit(pid, "getdents64", []string{fmt.Sprintf("%d", fd), fmt.Sprintf("%d", size)}, result)
	return true, result
}

func (s *Supervisor) sysMkdirat(ctx context.Context, pid, dirfd int, pathAddr uintptr, mode uint32) (bool, int64) {
	raw, err := readGuestString(pid, pathAddr)
	if err != nil {
		return false, 0
	}
	abs, ok := s.resolveArgPath(pid, dirfd, raw)
	if !ok {
		return false, 0
	}
	fs, rem, ok := s.mountFor(abs)
	if !ok {
		return false, 0
	}

	var result int64
	if err := fs.Mkdir(ctx, rem, mode); err != nil {
		result = errnoResult(err)
	}
	s.trace.Emit(pid, "mkdir", []string{quote(abs), fmt.Sprintf("%#o", mode)}, result)
	return true, result
}

func (s *Supervisor) sysRmdir(ctx context.Context, pid int, pathAddr uintptr) (bool, int64) {
	raw, err := readGuestString(pid, pathAddr)
	if err != nil {
		return false, 0
	}
	abs, ok := s.resolveArgPath(pid, unix.AT_FDCWD, raw)
	if !ok {
		return false, 0
	}
	fs, rem, ok := s.mountFor(abs)
	if !ok {
		return false, 0
	}

	var result int64
	if err := fs.Rmdir(ctx, rem); err != nil {
		result = errnoResult(err)
	}
	s.trace.Emit(pid, "rmdir", []string{quote(abs)}, result)
	return true, result
}

func (s *Supervisor) sysUnlinkat(ctx context.Context, pid, dirfd int, pathAddr uintptr, flags int) (bool, int64) {
	raw, err := readGuestString(pid, pathAddr)
	if err != nil {
		return false, 0
	}
	abs, ok := s.resolveArgPath(pid, dirfd, raw)
	if !ok {
		return false, 0
	}
	fs, rem, ok := s.mountFor(abs)
	if !ok {
		return false, 0
	}

	name := "unlink"
	op := fs.Unlink
	if flags&unix.AT_REMOVEDIR != 0 {
		name = "rmdir"
		op = fs.Rmdir
	}
	var result int64
	if err := op(ctx, rem); err != nil {
		result = errnoResult(err)
	}
	s.trace.Emit(pid, name, []string{quote(abs)}, result)
	return true, result
}

// twoPathOp resolves both paths of a rename/link call. Calls spanning a
// mount boundary fail with EXDEV; calls with exactly one path outside
// every mount do too, since no backend can serve both halves.
func (s *Supervisor) twoPathOp(pid, oldDirfd int, oldAddr uintptr, newDirfd int, newAddr uintptr) (fs vfs.FileSystem, oldRem, newRem, oldAbs, newAbs string, handled bool, result int64) {
	oldRaw, err := readGuestString(pid, oldAddr)
	if err != nil {
		return nil, "", "", "", "", false, 0
	}
	newRaw, err := readGuestString(pid, newAddr)
	if err != nil {
		return nil, "", "", "", "", false, 0
	}
	oldAbs, okOld := s.resolveArgPath(pid, oldDirfd, oldRaw)
	newAbs, okNew := s.resolveArgPath(pid, newDirfd, newRaw)
	if !okOld || !okNew {
		return nil, "", "", "", "", false, 0
	}

	oldFS, oldRem, oldIn := s.mountFor(oldAbs)
	newFS, newRem, newIn := s.mountFor(newAbs)
	if !oldIn && !newIn {
		return nil, "", "", "", "", false, 0
	}
	if oldIn != newIn || oldFS != newFS {
		return nil, "", "", oldAbs, newAbs, true, errnoResult(common.ErrCrossDevice)
	}
	return oldFS, oldRem, newRem, oldAbs, newAbs, true, 0
}

func (s *Supervisor) sysRenameat(ctx context.Context, pid, oldDirfd int, oldAddr uintptr, newDirfd int, newAddr uintptr, flags int) (bool, int64) {
	fs, oldRem, newRem, oldAbs, newAbs, handled, result := s.twoPathOp(pid, oldDirfd, oldAddr, newDirfd, newAddr)
	if !handled {
		return false, 0
	}
	if result == 0 {
		if flags != 0 {
			result = errnoResult(common.ErrInvalidArgument)
		} else if err := fs.Rename(ctx, oldRem, newRem); err != nil {
			result = errnoResult(err)
		}
	}
	s.trace.Emit(pid, "rename", []string{quote(oldAbs), quote(newAbs)}, result)
	return true, result
}

func (s *Supervisor) sysLinkat(ctx context.Context, pid, oldDirfd int, oldAddr uintptr, newDirfd int, newAddr uintptr) (bool, int64) {
	fs, oldRem, newRem, oldAbs, newAbs, handled, result := s.twoPathOp(pid, oldDirfd, oldAddr, newDirfd, newAddr)
	if !handled {
		return false, 0
	}
	if result == 0 {
		if err := fs.Link(ctx, oldRem, newRem); err != nil {
			result = errnoResult(err)
		}
	}
	s.trace.Emit(pid, "link", []string{quote(oldAbs), quote(newAbs)}, result)
	return true, result
}

func (s *Supervisor) sysSymlinkat(ctx context.Context, pid int, targetAddr uintptr, dirfd int, linkAddr uintptr) (bool, int64) {
	target, err := readGuestString(pid, targetAddr)
	if err != nil {
		return false, 0
	}
	raw, err := readGuestString(pid, linkAddr)
	if err != nil {
		return false, 0
	}
	abs, ok := s.resolveArgPath(pid, dirfd, raw)
	if !ok {
		return false, 0
	}
	fs, rem, ok := s.mountFor(abs)
	if !ok {
		return false, 0
	}

	var result int64
	if err := fs.Symlink(ctx, target, rem); err != nil {
		result = errnoResult(err)
	}
	s.trace.Emit(pid, "symlink", []string{quote(target), quote(abs)}, result)
	return true, result
}

func (s *Supervisor) sysReadlinkat(ctx context.Context, pid, dirfd int, pathAddr, bufAddr uintptr, size int64) (bool, int64) {
	raw, err := readGuestString(pid, pathAddr)
	if err != nil {
		return false, 0
	}
	abs, ok := s.resolveArgPath(pid, dirfd, raw)
	if !ok {
		return false, 0
	}
	fs, rem, ok := s.mountFor(abs)
	if !ok {
		return false, 0
	}

	result := func() int64 {
		if size <= 0 {
			return errnoResult(common.ErrInvalidArgument)
		}
		target, err := fs.Readlink(ctx, rem)
		if err != nil {
			return errnoResult(err)
		}
		// readlink(2) truncates silently and does not NUL-terminate.
		out := []byte(target)
		if int64(len(out)) > size {
			out = out[:size]
		}
		if werr := writeGuestBytes(pid, bufAddr, out); werr != nil {
			return -int64(syscall.EFAULT)
		}
		return int64(len(out))
	}()

	s.trace.Emit(pid, "readlink", []string{quote(abs)}, result)
	return true, result
}

func (s *Supervisor) sysDup(pid, oldfd int) (bool, int64) {
	if !IsVirtual(oldfd) {
		return false, 0
	}
	var result int64
	fd, err := s.fds.Dup(pid, oldfd, FdBase, false)
	if err != nil {
		result = errnoResult(err)
	} else {
		result = int64(fd)
	}
	s.trace.Emit(pid, "dup", []string{fmt.Sprintf("%d", oldfd)}, result)
	return true, result
}

func (s *Supervisor) sysDup2(pid, oldfd, newfd, flags int) (bool, int64) {
	if !IsVirtual(oldfd) && !IsVirtual(newfd) {
		return false, 0
	}

	result := func() int64 {
		if !IsVirtual(oldfd) || !IsVirtual(newfd) {
			// Mixing the virtual and kernel fd spaces has no sensible
			// meaning; dup2 onto a real fd cannot be serviced.
			return errnoResult(common.ErrBadHandle)
		}
		if oldfd == newfd {
			if _, err := s.fds.Get(pid, oldfd); err != nil {
				return errnoResult(err)
			}
			return int64(newfd)
		}
		cloexec := flags&unix.O_CLOEXEC != 0
		if err := s.fds.DupTo(pid, oldfd, newfd, cloexec); err != nil {
			return errnoResult(err)
		}
		return int64(newfd)
	}()

	s.trace.Emit(pid, "dup2", []string{fmt.Sprintf("%d", oldfd), fmt.Sprintf("%d", newfd)}, result)
	return true, result
}

func (s *Supervisor) sysFcntl(pid, fd, cmd int, arg int64) (bool, int64) {
	if !IsVirtual(fd) {
		return false, 0
	}

	result := func() int64 {
		switch cmd {
		case unix.F_DUPFD, unix.F_DUPFD_CLOEXEC:
			nfd, err := s.fds.Dup(pid, fd, int(arg), cmd == unix.F_DUPFD_CLOEXEC)
			if err != nil {
				return errnoResult(err)
			}
			return int64(nfd)
		case unix.F_GETFD:
			cloexec, err := s.fds.Cloexec(pid, fd)
			if err != nil {
				return errnoResult(err)
			}
			if cloexec {
				return unix.FD_CLOEXEC
			}
			return 0
		case unix.F_SETFD:
			if err := s.fds.SetCloexec(pid, fd, arg&unix.FD_CLOEXEC != 0); err != nil {
				return errnoResult(err)
			}
			return 0
		case unix.F_GETFL:
			file, err := s.fds.Get(pid, fd)
			if err != nil {
				return errnoResult(err)
			}
			return int64(file.Flags)
		case unix.F_SETFL:
			// Status flag changes are accepted and ignored; the handle
			// keeps its open-time semantics.
			return 0
		default:
			return errnoResult(common.ErrInvalidArgument)
		}
	}()

	s.trace.Emit(pid, "fcntl", []string{fmt.Sprintf("%d", fd), fmt.Sprintf("%d", cmd)}, result)
	return true, result
}

func (s *Supervisor) sysChdir(ctx context.Context, pid int, pathAddr uintptr) (bool, int64) {
	raw, err := readGuestString(pid, pathAddr)
	if err != nil {
		return false, 0
	}
	abs, ok := s.resolveArgPath(pid, unix.AT_FDCWD, raw)
	if !ok {
		return false, 0
	}
	fs, rem, inMount := s.mountFor(abs)
	if !inMount {
		// Kernel executes the chdir; the new cwd is committed at
		// syscall exit if it succeeds.
		s.chdirs[pid] = abs
		return false, 0
	}

	result := func() int64 {
		attr, err := fs.Stat(ctx, rem)
		if err != nil {
			return errnoResult(err)
		}
		if !attr.IsDir() {
			return errnoResult(common.ErrNotDir)
		}
		s.cwd[pid] = abs
		return 0
	}()

	s.trace.Emit(pid, "chdir", []string{quote(abs)}, result)
	return true, result
}

func (s *Supervisor) sysFchdir(pid, fd int) (bool, int64) {
	if !IsVirtual(fd) {
		return false, 0
	}

	result := func() int64 {
		file, err := s.fds.Get(pid, fd)
		if err != nil {
			return errnoResult(err)
		}
		attr, err := file.Handle.Attr()
		if err != nil {
			return errnoResult(err)
		}
		if !attr.IsDir() {
			return errnoResult(common.ErrNotDir)
		}
		s.cwd[pid] = file.Path
		return 0
	}()

	s.trace.Emit(pid, "fchdir", []string{fmt.Sprintf("%d", fd)}, result)
	return true, result
}

func (s *Supervisor) sysGetcwd(pid int, bufAddr uintptr, size int) (bool, int64) {
	// Only serviced while the task's cwd sits inside a mount; the kernel
	// has no idea that directory exists.
	cwd := s.cwd[pid]
	if !s.table.Contains(cwd) {
		return false, 0
	}

	result := func() int64 {
		out := append([]byte(cwd), 0)
		if len(out) > size {
			return -int64(syscall.ERANGE)
		}
		if werr := writeGuestBytes(pid, bufAddr, out); werr != nil {
			return -int64(syscall.EFAULT)
		}
		return int64(len(out))
	}()

	s.trace.Emit(pid, "getcwd", []string{quote(cwd)}, result)
	return true, result
}
