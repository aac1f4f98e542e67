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
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	_ "github.com/tursodatabase/go-libsql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"agentstore/internal/common"
)

// Store is a single-file SQLite-backed agent store. It holds the inode
// filesystem, the key-value store, and the tool-call audit log.
type Store struct {
	path string
	sql  *sql.DB
	db   *bun.DB
}

// execPragma runs a PRAGMA statement using Query (not Exec) because libsql
// returns rows for PRAGMA statements. The result rows are drained and closed.
func execPragma(db *sql.DB, pragma string) error {
	rows, err := db.Query(pragma)
	if err != nil {
		return err
	}
	return rows.Close()
}

// applyPragmas sets essential PRAGMAs after opening a libsql connection.
// libsql ignores DSN-based _pragma=value parameters, so all PRAGMAs must be
// set explicitly via SQL statements after the connection is opened.
func applyPragmas(db *sql.DB, ctx DBContext) error {
	// Busy timeout MUST be set first — all subsequent PRAGMAs (especially
	// journal_mode=WAL which needs exclusive access) will wait for locks
	// instead of failing immediately with "database is locked".
	if err := execPragma(db, fmt.Sprintf("PRAGMA busy_timeout = %d", GetBusyTimeout(ctx))); err != nil {
		return fmt.Errorf("failed to set busy_timeout: %w", err)
	}

	// WAL mode: concurrent readers during writes, reduced lock contention.
	if err := execPragma(db, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to set journal_mode=WAL: %w", err)
	}

	// synchronous=NORMAL: WAL mode with NORMAL sync is safe against process
	// crashes (only vulnerable to OS crash / power loss).
	if err := execPragma(db, "PRAGMA synchronous=NORMAL"); err != nil {
		return fmt.Errorf("failed to set synchronous=NORMAL: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return nil
}

// execStatements executes a multi-statement SQL string one statement at a
// time for libsql compatibility.
func execStatements(db *sql.DB, script string) error {
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// Create creates a new store file. Fails if the file already exists.
func Create(path string) (*Store, error) {
	return CreateWithContext(path, DBContextDefault)
}

// CreateWithContext creates a new store file with the given access context.
func CreateWithContext(path string, ctx DBContext) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("file already exists: %s", path)
	}
	return open(path, ctx)
}

// Open opens an existing store file, creating the schema idempotently.
func Open(path string) (*Store, error) {
	return OpenWithContext(path, DBContextDefault)
}

// OpenWithContext opens a store file with the given access context. The
// schema is created idempotently, so opening a fresh path initializes it.
func OpenWithContext(path string, ctx DBContext) (*Store, error) {
	return open(path, ctx)
}

func open(path string, dbctx DBContext) (*Store, error) {
	sqlDB, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := applyPragmas(sqlDB, dbctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	if err := execStatements(sqlDB, storeSchema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &Store{
		path: path,
		sql:  sqlDB,
		db:   bun.NewDB(sqlDB, sqlitedialect.New()),
	}

	if err := s.initMetadata(context.Background()); err != nil {
		sqlDB.Close()
		return nil, err
	}

	log.WithField("path", path).Debug("store opened")
	return s, nil
}

// initMetadata seeds the schema version and the root inode. Idempotent:
// the root row is only inserted when ino=1 is absent.
func (s *Store) initMetadata(ctx context.Context) error {
	_, err := s.db.NewInsert().
		Model(&SchemaInfoModel{Key: "version", Value: SchemaVersion}).
		On("CONFLICT (key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	exists, err := s.db.NewSelect().
		Model((*InodeModel)(nil)).
		Where("ino = ?", RootIno).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check root inode: %w", err)
	}
	if exists {
		return nil
	}

	now := nowUnix()
	root := &InodeModel{
		Ino:   RootIno,
		Mode:  DefaultDirMode,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
	if _, err := s.db.NewInsert().Model(root).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create root inode: %w", err)
	}
	return nil
}

// Path returns the store file path.
func (s *Store) Path() string {
	return s.path
}

// DB exposes the underlying bun handle for tests.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.sql.Close()
}

// storageErr folds driver-level failures into the ErrIO kind while letting
// domain errors pass through untouched.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		common.ErrNotFound, common.ErrExists, common.ErrNotDir,
		common.ErrIsDir, common.ErrNotEmpty, common.ErrSymlinkLoop,
		common.ErrInvalidArgument, common.ErrCrossDevice, common.ErrIO,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	return fmt.Errorf("%w: %v", common.ErrIO, err)
}
