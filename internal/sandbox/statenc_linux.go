//go:build linux && amd64

package sandbox

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"agentstore/internal/vfs"
)

// virtualDev is the device number reported for objects inside a mount.
const virtualDev = 0xa5a5

// virtualBlkSize is the block size reported to guests.
const virtualBlkSize = 4096

// encodeStat renders an Attr as the kernel's stat buffer layout for
// linux/amd64.
func encodeStat(attr *vfs.Attr) []byte {
	nlink := attr.Nlink
	if nlink == 0 {
		nlink = 1
	}
	st := unix.Stat_t{
		Dev:     virtualDev,
		Ino:     attr.Ino,
		Nlink:   nlink,
		Mode:    attr.Mode,
		Uid:     attr.Uid,
		Gid:     attr.Gid,
		Size:    attr.Size,
		Blksize: virtualBlkSize,
		Blocks:  (attr.Size + 511) / 512,
		Atim:    unix.Timespec{Sec: attr.Atime.Unix()},
		Mtim:    unix.Timespec{Sec: attr.Mtime.Unix()},
		Ctim:    unix.Timespec{Sec: attr.Ctime.Unix()},
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&st)), unsafe.Sizeof(st))
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}
