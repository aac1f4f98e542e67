package vfs

import (
	"context"
	"os"
	"time"
)

// FileType represents the type of a filesystem entry
type FileType int

const (
	// FileTypeRegular is a regular file
	FileTypeRegular FileType = iota
	// FileTypeDirectory is a directory
	FileTypeDirectory
	// FileTypeSymlink is a symbolic link
	FileTypeSymlink
)

// Open flags accepted by FileSystem.Open. Values match the os package so
// passthrough backends can hand them straight to the host.
const (
	O_RDONLY = os.O_RDONLY
	O_WRONLY = os.O_WRONLY
	O_RDWR   = os.O_RDWR
	O_APPEND = os.O_APPEND
	O_CREATE = os.O_CREATE
	O_EXCL   = os.O_EXCL
	O_TRUNC  = os.O_TRUNC

	// AccessModeMask extracts the access mode from a flag set.
	AccessModeMask = 0x3
)

// Attr describes one filesystem object.
type Attr struct {
	Ino   uint64
	Mode  uint32
	Nlink uint64
	Uid   uint32
	Gid   uint32
	Size  int64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// Type returns the file type encoded in the mode bits.
func (a *Attr) Type() FileType {
	switch a.Mode & 0o170000 {
	case 0o040000:
		return FileTypeDirectory
	case 0o120000:
		return FileTypeSymlink
	default:
		return FileTypeRegular
	}
}

// IsDir reports whether the attribute describes a directory.
func (a *Attr) IsDir() bool {
	return a.Type() == FileTypeDirectory
}

// Entry is one directory entry as returned by Readdir.
type Entry struct {
	Name string
	Ino  uint64
	Mode uint32
	Size int64
}

// Type returns the entry's file type.
func (e *Entry) Type() FileType {
	a := Attr{Mode: e.Mode}
	return a.Type()
}

// Handle is an open file or directory. Handles encapsulate position and
// buffered content; two handles on the same file do not share state.
type Handle interface {
	// Read reads up to len(p) bytes from the current position.
	Read(p []byte) (int, error)
	// Write writes p at the current position and advances it.
	Write(p []byte) (int, error)
	// ReadAt reads at an absolute offset without moving the position.
	ReadAt(p []byte, off int64) (int, error)
	// WriteAt writes at an absolute offset without moving the position.
	WriteAt(p []byte, off int64) (int, error)
	// Seek repositions the handle. Whence follows io.Seek* semantics.
	Seek(offset int64, whence int) (int64, error)
	// Attr returns the attributes of the open object.
	Attr() (*Attr, error)
	// Entries lists a directory handle's entries in lexicographic order.
	Entries() ([]Entry, error)
	// Close releases the handle. A second close fails with ErrBadHandle.
	Close() error
}

// FileSystem is the capability a mount exposes. Two implementations exist:
// Passthrough delegates to the host filesystem under a fixed root, and
// StoreFS delegates to the inode filesystem in the embedded database.
// Further backends slot in without changing the mount table or the
// sandbox.
type FileSystem interface {
	Open(ctx context.Context, path string, flags int, mode uint32) (Handle, error)
	Stat(ctx context.Context, path string) (*Attr, error)
	Lstat(ctx context.Context, path string) (*Attr, error)
	Readdir(ctx context.Context, path string) ([]Entry, error)
	Mkdir(ctx context.Context, path string, mode uint32) error
	Rmdir(ctx context.Context, path string) error
	Unlink(ctx context.Context, path string) error
	Rename(ctx context.Context, oldPath, newPath string) error
	Link(ctx context.Context, oldPath, newPath string) error
	Symlink(ctx context.Context, target, linkPath string) error
	Readlink(ctx context.Context, path string) (string, error)
}
