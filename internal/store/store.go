// Package store provides the shared SQLite database used by all driftwatch
// plugins. Each plugin owns its own tables and migration chain; the store
// tracks applied migrations and guards against binary/schema version skew.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/driftwatch/driftwatch/pkg/plugin"
	_ "modernc.org/sqlite" // registers the CGO-free "sqlite" driver
)

var _ plugin.Store = (*SQLiteStore)(nil)

// startupPragmas run once per opened database. modernc.org/sqlite takes
// pragmas as SQL statements, not DSN parameters.
var startupPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=10000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA cache_size=-32000",
}

// SQLiteStore implements plugin.Store on a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex // serializes Migrate
	once sync.Once  // _migrations DDL runs at most once
}

// New opens (or creates) the SQLite database at path and applies the
// startup pragmas. The pool is pinned to one connection: SQLite performs
// best with a single writer, and WAL mode keeps the file readable by other
// processes (backup, CLI) while the server writes.
func New(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database %q: %w", path, err)
	}
	for _, pragma := range startupPragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the raw connection pool; plugin stores run their queries on it
// directly.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Tx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func (s *SQLiteStore) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rb := tx.Rollback(); rb != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rb))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Checkpoint truncates the write-ahead log. Maintenance loops call this
// after bulk deletes so the WAL file does not grow unbounded on
// long-running servers.
func (s *SQLiteStore) Checkpoint(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
