//go:build linux

package vfs

import (
	"io/fs"
	"syscall"
	"time"
)

func fillAttrFromInfo(attr *Attr, info fs.FileInfo) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		attr.Nlink = 1
		return
	}
	attr.Ino = st.Ino
	attr.Nlink = uint64(st.Nlink)
	attr.Uid = st.Uid
	attr.Gid = st.Gid
	attr.Atime = time.Unix(st.Atim.Sec, st.Atim.Nsec)
	attr.Ctime = time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
}
