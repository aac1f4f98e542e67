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
	"os"
	"strconv"
)

const SchemaVersion = "1"

// ChunkSize is the maximum size of a single content chunk.
const ChunkSize = 64 * 1024

// MaxSymlinkDepth bounds symlink expansion during path resolution.
const MaxSymlinkDepth = 40

// Default busy_timeout in milliseconds (30 seconds)
const DefaultBusyTimeout = 30000

// Environment variable names for busy_timeout configuration
const (
	// EnvBusyTimeout is the general busy_timeout override for all contexts
	EnvBusyTimeout = "AGENTSTORE_BUSY_TIMEOUT"
	// EnvCLIBusyTimeout is the busy_timeout for CLI database access
	EnvCLIBusyTimeout = "AGENTSTORE_CLI_BUSY_TIMEOUT"
	// EnvSandboxBusyTimeout is the busy_timeout for sandbox database access
	EnvSandboxBusyTimeout = "AGENTSTORE_SANDBOX_BUSY_TIMEOUT"
)

// DBContext indicates the context in which the database is being accessed
type DBContext int

const (
	// DBContextDefault uses the general busy_timeout
	DBContextDefault DBContext = iota
	// DBContextCLI uses the CLI-specific busy_timeout
	DBContextCLI
	// DBContextSandbox uses the sandbox-specific busy_timeout
	DBContextSandbox
)

// Package-level config values (set via SetConfigBusyTimeouts)
var (
	configCLIBusyTimeout     int
	configSandboxBusyTimeout int
)

// SetConfigBusyTimeouts sets the config-based busy_timeout values.
// Called by the CLI after loading the settings file. Values of 0 are
// ignored (use env var or default).
func SetConfigBusyTimeouts(cliTimeout, sandboxTimeout int) {
	configCLIBusyTimeout = cliTimeout
	configSandboxBusyTimeout = sandboxTimeout
}

// GetBusyTimeout returns the busy_timeout value for the given context.
// Priority: specific env (cli/sandbox) > general env > config file > default
func GetBusyTimeout(ctx DBContext) int {
	var specificEnv string
	var configTimeout int
	switch ctx {
	case DBContextCLI:
		specificEnv = EnvCLIBusyTimeout
		configTimeout = configCLIBusyTimeout
	case DBContextSandbox:
		specificEnv = EnvSandboxBusyTimeout
		configTimeout = configSandboxBusyTimeout
	}

	if specificEnv != "" {
		if val := os.Getenv(specificEnv); val != "" {
			if timeout, err := strconv.Atoi(val); err == nil && timeout > 0 {
				return timeout
			}
		}
	}

	if val := os.Getenv(EnvBusyTimeout); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil && timeout > 0 {
			return timeout
		}
	}

	if configTimeout > 0 {
		return configTimeout
	}

	return DefaultBusyTimeout
}

// File mode constants (POSIX bit layout)
const (
	ModeMask    = 0o170000 // Type mask
	ModeFile    = 0o100000 // Regular file
	ModeDir     = 0o040000 // Directory
	ModeSymlink = 0o120000 // Symbolic link
)

// Default permissions
const (
	DefaultDirMode  = ModeDir | 0o755  // rwxr-xr-x
	DefaultFileMode = ModeFile | 0o644 // rw-r--r--
)

// RootIno is the inode number of the filesystem root. The root has no
// dentry; path resolution begins here.
const RootIno = 1

// Schema SQL for a store file
const storeSchema = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- File/directory metadata. nlink is derived from dentry rows, not stored.
CREATE TABLE IF NOT EXISTS inode (
    ino INTEGER PRIMARY KEY AUTOINCREMENT,
    mode INTEGER NOT NULL,
    uid INTEGER NOT NULL DEFAULT 0,
    gid INTEGER NOT NULL DEFAULT 0,
    size INTEGER NOT NULL DEFAULT 0,
    atime INTEGER NOT NULL DEFAULT (unixepoch()),
    mtime INTEGER NOT NULL DEFAULT (unixepoch()),
    ctime INTEGER NOT NULL DEFAULT (unixepoch())
);

-- Directory entries. Multiple dentries may target one inode (hard links).
CREATE TABLE IF NOT EXISTS dentry (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    parent_ino INTEGER NOT NULL,
    name TEXT NOT NULL,
    ino INTEGER NOT NULL,
    UNIQUE(parent_ino, name)
);

CREATE INDEX IF NOT EXISTS idx_dentry_ino ON dentry(ino);

-- File content, chunked by byte offset.
CREATE TABLE IF NOT EXISTS data (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ino INTEGER NOT NULL,
    offset INTEGER NOT NULL,
    size INTEGER NOT NULL,
    data BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_data_ino_offset ON data(ino, offset);

-- Symlink targets, stored verbatim.
CREATE TABLE IF NOT EXISTS symlink (
    ino INTEGER PRIMARY KEY,
    target TEXT NOT NULL
);

-- Key-value store. Values are opaque JSON text.
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

-- Tool-call audit log. Insert-only.
CREATE TABLE IF NOT EXISTS tool_calls (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    parameters TEXT,
    result TEXT,
    error TEXT,
    started_at INTEGER NOT NULL,
    completed_at INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tool_calls_name ON tool_calls(name);
CREATE INDEX IF NOT EXISTS idx_tool_calls_started_at ON tool_calls(started_at);
`
