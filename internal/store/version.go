package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrNewerSchema is returned when the database was created by a newer
// version of driftwatch than the currently running binary.
var ErrNewerSchema = errors.New("database was created by a newer version of driftwatch")

// CheckVersion guards against version skew between the binary and the
// database file. An older binary refuses to open a database written by a
// newer one, which could corrupt data; an upgrade records the new version.
// The special version "dev" always passes, both as stored and as current.
func (s *SQLiteStore) CheckVersion(ctx context.Context, current string) error {
	if err := s.ensureMetaTable(ctx); err != nil {
		return fmt.Errorf("schema meta table: %w", err)
	}

	stored, found, err := s.storedVersion(ctx)
	if err != nil {
		return err
	}
	if !found {
		return s.writeVersion(ctx, current)
	}
	if stored == "dev" || current == "dev" {
		return s.writeVersion(ctx, current)
	}

	cmp := semver.Compare(asSemver(current), asSemver(stored))
	if cmp < 0 {
		return fmt.Errorf("%w: database=%s, binary=%s", ErrNewerSchema, stored, current)
	}
	if cmp > 0 {
		return s.writeVersion(ctx, current)
	}
	return nil
}

func (s *SQLiteStore) storedVersion(ctx context.Context) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT app_version FROM _schema_meta WHERE id = 1").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read schema version: %w", err)
	}
	return v, true, nil
}

// writeVersion upserts the single metadata row, covering both the first
// boot and later upgrades.
func (s *SQLiteStore) writeVersion(ctx context.Context, version string) error {
	const q = `
		INSERT INTO _schema_meta (id, app_version, updated_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE
		SET app_version = excluded.app_version, updated_at = CURRENT_TIMESTAMP`
	if _, err := s.db.ExecContext(ctx, q, version); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ensureMetaTable(ctx context.Context) error {
	const q = `
		CREATE TABLE IF NOT EXISTS _schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			app_version TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`
	_, err := s.db.ExecContext(ctx, q)
	return err
}

// asSemver adds the "v" prefix semver.Compare requires.
func asSemver(v string) string {
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
