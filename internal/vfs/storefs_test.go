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

package vfs

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentstore/internal/common"
	"agentstore/internal/storage"
)

func newStoreFS(t *testing.T) *StoreFS {
	t.Helper()
	store, err := storage.Create(filepath.Join(t.TempDir(), "vfs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewStoreFS(store)
}

func TestStoreFSOpenCreateWriteClose(t *testing.T) {
	t.Parallel()
	fs := newStoreFS(t)
	ctx := context.Background()

	h, err := fs.Open(ctx, "/f", O_WRONLY|O_CREATE, 0o644)
	require.NoError(t, err)

	n, err := h.Write([]byte("hi\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, h.Close())

	// Content is visible after the handle flushes.
	h2, err := fs.Open(ctx, "/f", O_RDONLY, 0)
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err = h2.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(buf[:n]))
	_, err = h2.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, h2.Close())
}

func TestStoreFSDoubleClose(t *testing.T) {
	t.Parallel()
	fs := newStoreFS(t)
	ctx := context.Background()

	h, err := fs.Open(ctx, "/f", O_WRONLY|O_CREATE, 0o644)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	assert.ErrorIs(t, h.Close(), common.ErrBadHandle)
}

func TestStoreFSHandlesAreIndependent(t *testing.T) {
	t.Parallel()
	fs := newStoreFS(t)
	ctx := context.Background()

	require.NoError(t, storageWrite(t, fs, "/f", "content"))

	h1, err := fs.Open(ctx, "/f", O_RDONLY, 0)
	require.NoError(t, err)
	h2, err := fs.Open(ctx, "/f", O_RDONLY, 0)
	require.NoError(t, err)

	buf := make([]byte, 3)
	_, err = h1.Read(buf)
	require.NoError(t, err)

	// h2's position is unaffected by h1's reads.
	full := make([]byte, 16)
	n, err := h2.Read(full)
	require.NoError(t, err)
	assert.Equal(t, "content", string(full[:n]))

	require.NoError(t, h1.Close())
	require.NoError(t, h2.Close())
}

func storageWrite(t *testing.T, fs *StoreFS, path, content string) error {
	t.Helper()
	h, err := fs.Open(context.Background(), path, O_WRONLY|O_CREATE|O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := h.Write([]byte(content)); err != nil {
		return err
	}
	return h.Close()
}

func TestStoreFSExcl(t *testing.T) {
	t.Parallel()
	fs := newStoreFS(t)
	ctx := context.Background()

	require.NoError(t, storageWrite(t, fs, "/f", "x"))
	_, err := fs.Open(ctx, "/f", O_WRONLY|O_CREATE|O_EXCL, 0o644)
	assert.ErrorIs(t, err, common.ErrExists)
}

func TestStoreFSTrunc(t *testing.T) {
	t.Parallel()
	fs := newStoreFS(t)
	ctx := context.Background()

	require.NoError(t, storageWrite(t, fs, "/f", "long original content"))
	require.NoError(t, storageWrite(t, fs, "/f", "new"))

	attr, err := fs.Stat(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, int64(3), attr.Size)
}

func TestStoreFSAppend(t *testing.T) {
	t.Parallel()
	fs := newStoreFS(t)
	ctx := context.Background()

	require.NoError(t, storageWrite(t, fs, "/log", "one\n"))

	h, err := fs.Open(ctx, "/log", O_WRONLY|O_APPEND, 0)
	require.NoError(t, err)
	_, err = h.Write([]byte("two\n"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	h, err = fs.Open(ctx, "/log", O_RDONLY, 0)
	require.NoError(t, err)
	buf := make([]byte, 32)
	n, err := h.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(buf[:n]))
	require.NoError(t, h.Close())
}

func TestStoreFSPositionalIO(t *testing.T) {
	t.Parallel()
	fs := newStoreFS(t)
	ctx := context.Background()

	require.NoError(t, storageWrite(t, fs, "/f", "0123456789"))

	h, err := fs.Open(ctx, "/f", O_RDWR, 0)
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := h.ReadAt(buf, 3)
	require.NoError(t, err)
	assert.Equal(t, "3456", string(buf[:n]))

	// ReadAt does not disturb the cursor.
	pos, err := h.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Zero(t, pos)

	_, err = h.WriteAt([]byte("XY"), 8)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	h, err = fs.Open(ctx, "/f", O_RDONLY, 0)
	require.NoError(t, err)
	full := make([]byte, 16)
	n, err = h.Read(full)
	require.NoError(t, err)
	assert.Equal(t, "01234567XY", string(full[:n]))
	require.NoError(t, h.Close())
}

func TestStoreFSWriteOnReadOnlyHandle(t *testing.T) {
	t.Parallel()
	fs := newStoreFS(t)
	ctx := context.Background()

	require.NoError(t, storageWrite(t, fs, "/f", "x"))
	h, err := fs.Open(ctx, "/f", O_RDONLY, 0)
	require.NoError(t, err)
	_, err = h.Write([]byte("nope"))
	assert.ErrorIs(t, err, common.ErrBadHandle)
	require.NoError(t, h.Close())
}

func TestStoreFSDirectoryHandle(t *testing.T) {
	t.Parallel()
	fs := newStoreFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Mkdir(ctx, "/d", 0o755))
	require.NoError(t, storageWrite(t, fs, "/d/b", "1"))
	require.NoError(t, storageWrite(t, fs, "/d/a", "2"))

	h, err := fs.Open(ctx, "/d", O_RDONLY, 0)
	require.NoError(t, err)
	entries, err := h.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Name)
	assert.Equal(t, "b", entries[1].Name)

	_, err = h.Read(make([]byte, 4))
	assert.ErrorIs(t, err, common.ErrIsDir)
	require.NoError(t, h.Close())
}

func TestStoreFSOpenMissing(t *testing.T) {
	t.Parallel()
	fs := newStoreFS(t)

	_, err := fs.Open(context.Background(), "/absent", O_RDONLY, 0)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
