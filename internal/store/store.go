// Package store is the typed SQL facade over the index database: schema
// migrations, fsentries CRUD, the change-event queue, and the dbmgr_stats
// clock-guard row.
//
// A struct wrapping *sql.DB opened against modernc.org/sqlite, with the
// schema applied at Open time and context-scoped Exec/Query calls.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Othernet-Project/fsal/internal/fsalerr"
)

// Store wraps the index database connection.
type Store struct {
	db *sql.DB
}

// migrations are applied in order at every Open. Each is idempotent
// (CREATE TABLE IF NOT EXISTS) so re-opening an existing database is always
// safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		src TEXT NOT NULL,
		is_dir INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS fsentries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_id INTEGER NOT NULL DEFAULT 0,
		type INTEGER NOT NULL,
		name TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		create_time TIMESTAMP NOT NULL,
		modify_time TIMESTAMP NOT NULL,
		path TEXT NOT NULL,
		base_path TEXT NOT NULL,
		UNIQUE(base_path, path)
	);
	CREATE INDEX IF NOT EXISTS idx_fsentries_parent ON fsentries(base_path, parent_id);`,
	`CREATE TABLE IF NOT EXISTS dbmgr_stats (
		op_time REAL NOT NULL DEFAULT 0
	);`,
}

// Open opens (creating if absent) the index database at path and applies
// migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY
	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: apply migration: %w", err)
		}
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dbmgr_stats`).Scan(&count); err != nil {
		return fmt.Errorf("store: count dbmgr_stats: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO dbmgr_stats (op_time) VALUES (0)`); err != nil {
			return fmt.Errorf("store: seed dbmgr_stats: %w", err)
		}
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for packages (indexer, event queue) that
// need direct SQL access beyond this facade's convenience methods.
func (s *Store) DB() *sql.DB {
	return s.db
}

// LastOpTime returns the dbmgr_stats.op_time value: the wall-clock of the
// last successful scan completion. A persisted value ahead of the current
// clock reads as 0, so a system-clock rewind never yields a last-scan time
// in the future. The indexer records this value after each scan but does
// not read it back.
func (s *Store) LastOpTime(ctx context.Context) (float64, error) {
	var t float64
	err := s.db.QueryRowContext(ctx, `SELECT op_time FROM dbmgr_stats LIMIT 1`).Scan(&t)
	if err != nil {
		return 0, fmt.Errorf("store: read op_time: %w", err)
	}
	if t > float64(time.Now().UnixNano())/1e9 {
		return 0, nil
	}
	return t, nil
}

// SetOpTime persists a new dbmgr_stats.op_time value.
func (s *Store) SetOpTime(ctx context.Context, t float64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE dbmgr_stats SET op_time = ?`, t)
	if err != nil {
		return fmt.Errorf("store: update op_time: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. The pool holds a single connection, so any read
// fn issues must go through tx, not the bare Store handle.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}

// IsNoRows reports whether err is sql.ErrNoRows, wrapped or bare.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// NotFoundErr converts a bare sql.ErrNoRows into the package's error
// taxonomy so callers across the indexer never branch on database/sql
// sentinels directly.
func NotFoundErr(err error, format string, args ...interface{}) error {
	if IsNoRows(err) {
		return fsalerr.New(fsalerr.NotFound, format, args...)
	}
	return fsalerr.Wrap(fsalerr.FilesystemError, err, format, args...)
}
