//go:build unix

package sandbox

import (
	"errors"
	"syscall"

	"agentstore/internal/common"
)

// errnoFor maps a domain error kind to its conventional errno. Unknown
// errors fold to EIO.
func errnoFor(err error) syscall.Errno {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, common.ErrExists):
		return syscall.EEXIST
	case errors.Is(err, common.ErrNotDir):
		return syscall.ENOTDIR
	case errors.Is(err, common.ErrIsDir):
		return syscall.EISDIR
	case errors.Is(err, common.ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, common.ErrSymlinkLoop):
		return syscall.ELOOP
	case errors.Is(err, common.ErrInvalidArgument):
		return syscall.EINVAL
	case errors.Is(err, common.ErrCrossDevice):
		return syscall.EXDEV
	case errors.Is(err, common.ErrBadHandle):
		return syscall.EBADF
	case errors.Is(err, common.ErrReadOnly):
		return syscall.EROFS
	default:
		return syscall.EIO
	}
}

// errnoName returns the symbolic name used in trace output.
func errnoName(errno syscall.Errno) string {
	switch errno {
	case syscall.ENOENT:
		return "ENOENT"
	case syscall.EEXIST:
		return "EEXIST"
	case syscall.ENOTDIR:
		return "ENOTDIR"
	case syscall.EISDIR:
		return "EISDIR"
	case syscall.ENOTEMPTY:
		return "ENOTEMPTY"
	case syscall.ELOOP:
		return "ELOOP"
	case syscall.EINVAL:
		return "EINVAL"
	case syscall.EXDEV:
		return "EXDEV"
	case syscall.EBADF:
		return "EBADF"
	case syscall.EROFS:
		return "EROFS"
	case syscall.EFAULT:
		return "EFAULT"
	case syscall.EACCES:
		return "EACCES"
	case syscall.ERANGE:
		return "ERANGE"
	default:
		return "EIO"
	}
}
