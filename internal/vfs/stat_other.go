//go:build unix && !linux

package vfs

import (
	"io/fs"
	"syscall"
)

func fillAttrFromInfo(attr *Attr, info fs.FileInfo) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		attr.Nlink = 1
		return
	}
	attr.Ino = uint64(st.Ino)
	attr.Nlink = uint64(st.Nlink)
	attr.Uid = st.Uid
	attr.Gid = st.Gid
}
