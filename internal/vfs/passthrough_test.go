package vfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentstore/internal/common"
)

func TestPassthroughRoundTrip(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	fs := NewPassthrough(root)
	ctx := context.Background()

	h, err := fs.Open(ctx, "/f.txt", O_WRONLY|O_CREATE, 0o644)
	require.NoError(t, err)
	_, err = h.Write([]byte("host"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	// The write landed under the configured root.
	data, err := os.ReadFile(filepath.Join(root, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("host"), data)

	attr, err := fs.Stat(ctx, "/f.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(4), attr.Size)
	assert.Equal(t, FileTypeRegular, attr.Type())
}

func TestPassthroughConfinesDotDot(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	fs := NewPassthrough(root)

	require.NoError(t, fs.Mkdir(context.Background(), "/../../escape", 0o755))

	// The directory must be created inside the root, not beside it.
	_, err := os.Stat(filepath.Join(root, "escape"))
	assert.NoError(t, err)
}

func TestPassthroughReaddirSorted(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "b"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "c"), 0o755))

	entries, err := NewPassthrough(root).Readdir(context.Background(), "/")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].Name)
	assert.Equal(t, "b", entries[1].Name)
	assert.Equal(t, "c", entries[2].Name)
	assert.Equal(t, FileTypeDirectory, entries[2].Type())
}

func TestPassthroughErrorMapping(t *testing.T) {
	t.Parallel()
	fs := NewPassthrough(t.TempDir())
	ctx := context.Background()

	_, err := fs.Stat(ctx, "/missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, fs.Mkdir(ctx, "/d", 0o755))
	assert.ErrorIs(t, fs.Mkdir(ctx, "/d", 0o755), common.ErrExists)

	assert.ErrorIs(t, fs.Unlink(ctx, "/d"), common.ErrIsDir)

	h, err := fs.Open(ctx, "/d/f", O_WRONLY|O_CREATE, 0o644)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	assert.ErrorIs(t, h.Close(), common.ErrBadHandle)

	assert.ErrorIs(t, fs.Rmdir(ctx, "/d"), common.ErrNotEmpty)
	assert.ErrorIs(t, fs.Rmdir(ctx, "/d/f"), common.ErrNotDir)
}

func TestPassthroughSymlink(t *testing.T) {
	t.Parallel()
	fs := NewPassthrough(t.TempDir())
	ctx := context.Background()

	h, err := fs.Open(ctx, "/target", O_WRONLY|O_CREATE, 0o644)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	require.NoError(t, fs.Symlink(ctx, "target", "/link"))

	target, err := fs.Readlink(ctx, "/link")
	require.NoError(t, err)
	assert.Equal(t, "target", target)

	attr, err := fs.Lstat(ctx, "/link")
	require.NoError(t, err)
	assert.Equal(t, FileTypeSymlink, attr.Type())
}
