// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	migrate "github.com/rubenv/sql-migrate"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = &StoreError{Message: "record not found"}

	// ErrNoChat is returned when a message references a chat that does not exist.
	ErrNoChat = &StoreError{Message: "message references unknown chat"}

	// ErrClosed is returned after Close.
	ErrClosed = &StoreError{Message: "store closed"}
)

// StoreError represents a storage error.
// It implements the error interface and can be compared using errors.Is.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// SCHEMA
// =============================================================================

// migrations is the ordered schema history. Never edit an applied entry,
// append a new one.
var migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "0001_chats_messages",
			Up: []string{
				`CREATE TABLE chats (
					id         TEXT PRIMARY KEY,
					title      TEXT NOT NULL,
					created_at INTEGER NOT NULL
				)`,
				`CREATE TABLE messages (
					id      TEXT PRIMARY KEY,
					chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
					role    TEXT NOT NULL,
					date    INTEGER NOT NULL,
					tokens  INTEGER,
					model   TEXT,
					content TEXT NOT NULL
				)`,
				`CREATE INDEX idx_messages_chat_id ON messages(chat_id, date)`,
			},
			Down: []string{
				`DROP INDEX idx_messages_chat_id`,
				`DROP TABLE messages`,
				`DROP TABLE chats`,
			},
		},
		{
			Id: "0002_settings",
			Up: []string{
				`CREATE TABLE settings (
					key   TEXT PRIMARY KEY,
					value BLOB NOT NULL
				)`,
			},
			Down: []string{`DROP TABLE settings`},
		},
	},
}

func init() {
	migrate.SetTable("schema_migrations")
}

// =============================================================================
// STORE
// =============================================================================

// Store is the SQLite-backed persistent store.
// It is safe for concurrent use; SQLite serializes writers on the single
// connection.
type Store struct {
	mu   sync.RWMutex // guards db, which is nil once closed
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies any
// pending migrations.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	// One connection also keeps ":memory:" databases alive between calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := migrate.Exec(db, "sqlite3", migrations, migrate.Up); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database.
func (s *Store) Close() error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}

// withTx runs fn inside a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		if isClosed(err) {
			return ErrClosed
		}
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// conn returns the handle or ErrClosed.
func (s *Store) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	return s.db, nil
}

// isClosed reports an error from a handle closed after conn returned it.
func isClosed(err error) bool {
	return err != nil && strings.Contains(err.Error(), "database is closed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
