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
	"encoding/binary"

	"agentstore/internal/vfs"
)

// Directory entry type bytes in linux_dirent64 records.
const (
	DT_DIR = 4
	DT_REG = 8
	DT_LNK = 10
)

// direntHeaderSize is the fixed part of linux_dirent64: 64-bit inode,
// 64-bit offset cookie, 16-bit record length, 8-bit type.
const direntHeaderSize = 19

func direntType(mode uint32) byte {
	switch mode & 0o170000 {
	case 0o040000:
		return DT_DIR
	case 0o120000:
		return DT_LNK
	default:
		return DT_REG
	}
}

// direntRecLen returns the record length for a name: header + name bytes +
// NUL terminator, padded to 8-byte alignment.
func direntRecLen(name string) int {
	return (direntHeaderSize + len(name) + 1 + 7) &^ 7
}

// appendDirent appends one linux_dirent64 record. The offset cookie is
// the stream position of the next entry.
func appendDirent(buf []byte, ino uint64, nextOff int64, typ byte, name string) []byte {
	recLen := direntRecLen(name)
	rec := make([]byte, recLen)
	binary.LittleEndian.PutUint64(rec[0:8], ino)
	binary.LittleEndian.PutUint64(rec[8:16], uint64(nextOff))
	binary.LittleEndian.PutUint16(rec[16:18], uint16(recLen))
	rec[18] = typ
	copy(rec[direntHeaderSize:], name)
	return append(buf, rec...)
}

// dirStreamEntry is one entry of a directory stream, including the
// synthesized "." and ".." records.
type dirStreamEntry struct {
	Name string
	Ino  uint64
	Typ  byte
}

// dirStream builds the full stream for an open directory: ".", "..", then
// the backing entries in their listed (lexicographic) order. ".." reports
// the directory's own inode; the open handle does not expose the parent
// inode, and guests only use the name.
func dirStream(dirIno uint64, entries []vfs.Entry) []dirStreamEntry {
	stream := make([]dirStreamEntry, 0, len(entries)+2)
	stream = append(stream,
		dirStreamEntry{Name: ".", Ino: dirIno, Typ: DT_DIR},
		dirStreamEntry{Name: "..", Ino: dirIno, Typ: DT_DIR},
	)
	for _, e := range entries {
		stream = append(stream, dirStreamEntry{Name: e.Name, Ino: e.Ino, Typ: direntType(e.Mode)})
	}
	return stream
}

// fillDirents encodes stream entries starting at pos into a buffer of at
// most size bytes. It returns the encoded bytes and the new position.
// An empty result with remaining entries means the buffer cannot hold
// even one record.
func fillDirents(stream []dirStreamEntry, pos, size int) ([]byte, int) {
	var buf []byte
	for pos < len(stream) {
		e := stream[pos]
		if len(buf)+direntRecLen(e.Name) > size {
			break
		}
		buf = appendDirent(buf, e.Ino, int64(pos+1), e.Typ, e.Name)
		pos++
	}
	return buf, pos
}
