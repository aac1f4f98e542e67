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

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRefusesExisting(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "dup.db")

	store, err := Create(path)
	require.NoError(t, err)
	store.Close()

	_, err = Create(path)
	assert.Error(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	store, err := Open(path)
	require.NoError(t, err)
	fs := NewFS(store)
	require.NoError(t, fs.WriteFile(ctx, "/persist", []byte("survives")))
	require.NoError(t, store.Close())

	// Reopening must not disturb existing state.
	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	data, err := NewFS(store).ReadFile(ctx, "/persist")
	require.NoError(t, err)
	assert.Equal(t, []byte("survives"), data)

	stat, err := NewFS(store).Stat(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, int64(RootIno), stat.Ino)
}

func TestBusyTimeoutResolution(t *testing.T) {
	t.Setenv(EnvBusyTimeout, "")
	t.Setenv(EnvCLIBusyTimeout, "")

	SetConfigBusyTimeouts(0, 0)
	assert.Equal(t, DefaultBusyTimeout, GetBusyTimeout(DBContextCLI))

	SetConfigBusyTimeouts(1234, 0)
	assert.Equal(t, 1234, GetBusyTimeout(DBContextCLI))
	assert.Equal(t, DefaultBusyTimeout, GetBusyTimeout(DBContextSandbox))

	t.Setenv(EnvBusyTimeout, "5000")
	assert.Equal(t, 5000, GetBusyTimeout(DBContextCLI))

	t.Setenv(EnvCLIBusyTimeout, "250")
	assert.Equal(t, 250, GetBusyTimeout(DBContextCLI))
	assert.Equal(t, 5000, GetBusyTimeout(DBContextSandbox))

	SetConfigBusyTimeouts(0, 0)
}

func TestStatTypeHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mode    uint32
		dir     bool
		file    bool
		symlink bool
	}{
		{"directory", DefaultDirMode, true, false, false},
		{"file", DefaultFileMode, false, true, false},
		{"symlink", ModeSymlink | 0o777, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := &Stat{Mode: tt.mode}
			assert.Equal(t, tt.dir, s.IsDir())
			assert.Equal(t, tt.file, s.IsFile())
			assert.Equal(t, tt.symlink, s.IsSymlink())
		})
	}
}

func TestStatPermissions(t *testing.T) {
	t.Parallel()
	s := &Stat{Mode: ModeFile | 0o640}
	assert.Equal(t, uint32(0o640), s.Permissions())
}
