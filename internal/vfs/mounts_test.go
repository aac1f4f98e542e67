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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentstore/internal/common"
)

func TestMountTableLongestPrefix(t *testing.T) {
	t.Parallel()

	agent := NewPassthrough(t.TempDir())
	scratch := NewPassthrough(t.TempDir())

	table, err := NewMountTable([]Mount{
		{Prefix: "/agent", FS: agent},
		{Prefix: "/scratch", FS: scratch},
	})
	require.NoError(t, err)

	fs, rem, err := table.Lookup("/agent/notes/today.md")
	require.NoError(t, err)
	assert.Same(t, FileSystem(agent), fs)
	assert.Equal(t, "/notes/today.md", rem)

	fs, rem, err = table.Lookup("/agent")
	require.NoError(t, err)
	assert.Same(t, FileSystem(agent), fs)
	assert.Equal(t, "/", rem)

	_, _, err = table.Lookup("/etc/passwd")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMountTableRejectsOverlap(t *testing.T) {
	t.Parallel()

	fs := NewPassthrough(t.TempDir())
	_, err := NewMountTable([]Mount{
		{Prefix: "/a", FS: fs},
		{Prefix: "/a/b", FS: fs},
	})
	assert.ErrorIs(t, err, common.ErrInvalidArgument)

	_, err = NewMountTable([]Mount{
		{Prefix: "/a/b", FS: fs},
		{Prefix: "/a", FS: fs},
	})
	assert.ErrorIs(t, err, common.ErrInvalidArgument)

	_, err = NewMountTable([]Mount{
		{Prefix: "/a", FS: fs},
		{Prefix: "/a", FS: fs},
	})
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
}

func TestMountTableSiblingsAllowed(t *testing.T) {
	t.Parallel()

	fs := NewPassthrough(t.TempDir())
	table, err := NewMountTable([]Mount{
		{Prefix: "/ab", FS: fs},
		{Prefix: "/abc", FS: fs},
	})
	require.NoError(t, err)

	// /abc is not under /ab: string prefixing must not leak across
	// component boundaries.
	_, rem, err := table.Lookup("/abc/x")
	require.NoError(t, err)
	assert.Equal(t, "/x", rem)
}

func TestMountTableContains(t *testing.T) {
	t.Parallel()

	table, err := NewMountTable([]Mount{{Prefix: "/agent", FS: NewPassthrough(t.TempDir())}})
	require.NoError(t, err)

	assert.True(t, table.Contains("/agent"))
	assert.True(t, table.Contains("/agent/x"))
	assert.False(t, table.Contains("/age"))
	assert.False(t, table.Contains("/"))
}
