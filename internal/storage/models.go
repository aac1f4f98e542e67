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
	"time"

	"github.com/uptrace/bun"
)

// Bun ORM models for the agentstore tables.

// SchemaInfoModel represents the schema_info table
type SchemaInfoModel struct {
	bun.BaseModel `bun:"table:schema_info"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// InodeModel represents the inode table.
// Times are stored as whole seconds since the Unix epoch.
type InodeModel struct {
	bun.BaseModel `bun:"table:inode"`

	Ino   int64 `bun:"ino,pk,autoincrement"`
	Mode  int64 `bun:"mode,notnull"`
	UID   int64 `bun:"uid,notnull"`
	GID   int64 `bun:"gid,notnull"`
	Size  int64 `bun:"size,notnull"`
	Atime int64 `bun:"atime,notnull"`
	Mtime int64 `bun:"mtime,notnull"`
	Ctime int64 `bun:"ctime,notnull"`
}

// DentryModel represents the dentry table
type DentryModel struct {
	bun.BaseModel `bun:"table:dentry"`

	ID        int64  `bun:"id,pk,autoincrement"`
	ParentIno int64  `bun:"parent_ino,notnull"`
	Name      string `bun:"name,notnull"`
	Ino       int64  `bun:"ino,notnull"`
}

// DataModel represents one chunk of a regular file's contents
type DataModel struct {
	bun.BaseModel `bun:"table:data"`

	ID     int64  `bun:"id,pk,autoincrement"`
	Ino    int64  `bun:"ino,notnull"`
	Offset int64  `bun:"offset,notnull"`
	Size   int64  `bun:"size,notnull"`
	Data   []byte `bun:"data,notnull"`
}

// SymlinkModel represents the symlink table
type SymlinkModel struct {
	bun.BaseModel `bun:"table:symlink"`

	Ino    int64  `bun:"ino,pk"`
	Target string `bun:"target,notnull"`
}

// KVModel represents the kv table
type KVModel struct {
	bun.BaseModel `bun:"table:kv"`

	Key       string `bun:"key,pk"`
	Value     string `bun:"value,notnull"`
	CreatedAt int64  `bun:"created_at,notnull"`
	UpdatedAt int64  `bun:"updated_at,notnull"`
}

// ToolCallModel represents the tool_calls audit table
type ToolCallModel struct {
	bun.BaseModel `bun:"table:tool_calls"`

	ID          int64  `bun:"id,pk,autoincrement"`
	Name        string `bun:"name,notnull"`
	Parameters  string `bun:"parameters,nullzero"`
	Result      string `bun:"result,nullzero"`
	Error       string `bun:"error,nullzero"`
	StartedAt   int64  `bun:"started_at,notnull"`
	CompletedAt int64  `bun:"completed_at,notnull"`
	DurationMs  int64  `bun:"duration_ms,notnull"`
}

// Stat is the metadata record returned by Stat/Lstat. Nlink is computed
// from the dentry count at query time.
type Stat struct {
	Ino   int64
	Mode  uint32
	Nlink int64
	Uid   uint32
	Gid   uint32
	Size  int64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// IsDir returns true if the record describes a directory
func (s *Stat) IsDir() bool {
	return s.Mode&ModeMask == ModeDir
}

// IsFile returns true if the record describes a regular file
func (s *Stat) IsFile() bool {
	return s.Mode&ModeMask == ModeFile
}

// IsSymlink returns true if the record describes a symbolic link
func (s *Stat) IsSymlink() bool {
	return s.Mode&ModeMask == ModeSymlink
}

// Permissions returns the permission bits
func (s *Stat) Permissions() uint32 {
	return s.Mode & 0o777
}

// DirEntry is a directory entry with attributes, as returned by ReaddirPlus.
type DirEntry struct {
	Name string
	Stat Stat
}

// ToolCall is an audit log row as returned by the query methods.
type ToolCall struct {
	ID          int64
	Name        string
	Parameters  string
	Result      string
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
	DurationMs  int64
}

// ToolCallStats aggregates audit rows per tool name.
type ToolCallStats struct {
	Name          string
	Total         int64
	Successful    int64
	Failed        int64
	AvgDurationMs float64
}
