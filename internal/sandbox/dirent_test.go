package sandbox

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentstore/internal/vfs"
)

func TestDirentRecLenAligned(t *testing.T) {
	t.Parallel()

	for _, name := range []string{".", "..", "a", "abcdefg", "exactly8"} {
		recLen := direntRecLen(name)
		assert.Zero(t, recLen%8, "reclen for %q must be 8-byte aligned", name)
		assert.GreaterOrEqual(t, recLen, direntHeaderSize+len(name)+1)
	}
}

func TestDirStreamSynthesizesDotEntries(t *testing.T) {
	t.Parallel()

	stream := dirStream(7, []vfs.Entry{
		{Name: "file", Ino: 9, Mode: 0o100644},
		{Name: "sub", Ino: 10, Mode: 0o040755},
		{Name: "sym", Ino: 11, Mode: 0o120777},
	})
	require.Len(t, stream, 5)
	assert.Equal(t, ".", stream[0].Name)
	assert.Equal(t, uint64(7), stream[0].Ino)
	assert.Equal(t, "..", stream[1].Name)
	assert.Equal(t, byte(DT_REG), stream[2].Typ)
	assert.Equal(t, byte(DT_DIR), stream[3].Typ)
	assert.Equal(t, byte(DT_LNK), stream[4].Typ)
}

func TestFillDirentsEncoding(t *testing.T) {
	t.Parallel()

	stream := dirStream(1, []vfs.Entry{{Name: "hello", Ino: 42, Mode: 0o100644}})
	buf, next := fillDirents(stream, 0, 4096)
	assert.Equal(t, len(stream), next)

	// Walk the records and decode each header.
	var names []string
	var inos []uint64
	for off := 0; off < len(buf); {
		ino := binary.LittleEndian.Uint64(buf[off:])
		recLen := int(binary.LittleEndian.Uint16(buf[off+16:]))
		nameBytes := buf[off+direntHeaderSize : off+recLen]
		// Name is NUL-terminated inside the record.
		end := 0
		for end < len(nameBytes) && nameBytes[end] != 0 {
			end++
		}
		names = append(names, string(nameBytes[:end]))
		inos = append(inos, ino)
		off += recLen
	}
	assert.Equal(t, []string{".", "..", "hello"}, names)
	assert.Equal(t, uint64(42), inos[2])
}

func TestFillDirentsRespectsBufferSize(t *testing.T) {
	t.Parallel()

	entries := []vfs.Entry{
		{Name: "aaaaaaaaaa", Ino: 2, Mode: 0o100644},
		{Name: "bbbbbbbbbb", Ino: 3, Mode: 0o100644},
	}
	stream := dirStream(1, entries)

	// Room for the dot entries plus one real record only.
	size := direntRecLen(".") + direntRecLen("..") + direntRecLen("aaaaaaaaaa")
	buf, next := fillDirents(stream, 0, size)
	assert.Len(t, buf, size)
	assert.Equal(t, 3, next)

	// The remainder arrives on the next call.
	buf, next = fillDirents(stream, next, size)
	assert.Equal(t, len(stream), next)
	assert.Equal(t, direntRecLen("bbbbbbbbbb"), len(buf))

	// Exhausted stream yields nothing.
	buf, next = fillDirents(stream, next, size)
	assert.Empty(t, buf)
	assert.Equal(t, len(stream), next)
}

func TestFillDirentsTooSmall(t *testing.T) {
	t.Parallel()

	stream := dirStream(1, nil)
	buf, next := fillDirents(stream, 0, 8)
	assert.Empty(t, buf)
	assert.Zero(t, next)
}
