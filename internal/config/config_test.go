package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	t.Setenv(EnvConfigDir, t.TempDir())

	s, err := Load()
	require.NoError(t, err)
	assert.Empty(t, s.DefaultDB)
	assert.Zero(t, s.CLIBusyTimeout)
	assert.False(t, s.Strace)
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)

	content := `
default_db: /data/agent.db
cli_busy_timeout: 500
sandbox_busy_timeout: 10000
strace: true
mounts:
  - type=bind,src=/tmp/work,dst=/work
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte(content), 0o644))

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/data/agent.db", s.DefaultDB)
	assert.Equal(t, 500, s.CLIBusyTimeout)
	assert.Equal(t, 10000, s.SandboxBusyTimeout)
	assert.True(t, s.Strace)
	assert.Equal(t, []string{"type=bind,src=/tmp/work,dst=/work"}, s.Mounts)
}

func TestLoadMalformedSettings(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte("{not yaml"), 0o644))
	_, err := Load()
	assert.Error(t, err)
}

func TestDefaultDBPathUnderConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)

	assert.Equal(t, filepath.Join(dir, "agent.db"), DefaultDBPath())
	assert.Equal(t, filepath.Join(dir, "settings.yaml"), SettingsPath())
}
