//go:build windows

package vfs

import "io/fs"

func fillAttrFromInfo(attr *Attr, info fs.FileInfo) {
	attr.Nlink = 1
}
