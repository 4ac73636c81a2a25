package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/driftwatch/driftwatch/pkg/plugin"
)

// Migrate applies the plugin's pending migrations. Applied versions are
// tracked in the shared _migrations table and skipped on later runs.
// Versions must be contiguous and start at 1.
func (s *SQLiteStore) Migrate(ctx context.Context, pluginName string, migrations []plugin.Migration) error {
	if err := s.ensureMigrationLedger(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	applied, err := s.appliedVersions(ctx, pluginName)
	if err != nil {
		return err
	}
	for i, m := range migrations {
		if m.Version != i+1 {
			return fmt.Errorf("migration %s: version %d at position %d, want contiguous versions starting at 1", pluginName, m.Version, i)
		}
		if applied[m.Version] {
			continue
		}
		if err := s.runMigration(ctx, pluginName, m); err != nil {
			return fmt.Errorf("%s migration %d (%s): %w", pluginName, m.Version, m.Description, err)
		}
	}
	return nil
}

func (s *SQLiteStore) ensureMigrationLedger(ctx context.Context) error {
	const q = `
		CREATE TABLE IF NOT EXISTS _migrations (
			plugin_name TEXT NOT NULL,
			version INTEGER NOT NULL,
			description TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (plugin_name, version)
		)`
	var err error
	s.once.Do(func() { _, err = s.db.ExecContext(ctx, q) })
	return err
}

// appliedVersions loads the set of migration versions already recorded for
// one plugin.
func (s *SQLiteStore) appliedVersions(ctx context.Context, pluginName string) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM _migrations WHERE plugin_name = ?", pluginName)
	if err != nil {
		return nil, fmt.Errorf("load applied migrations for %s: %w", pluginName, err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

// runMigration executes one migration and records it in the same
// transaction, so a failed Up leaves no ledger row behind.
func (s *SQLiteStore) runMigration(ctx context.Context, pluginName string, m plugin.Migration) error {
	const record = "INSERT INTO _migrations (plugin_name, version, description) VALUES (?, ?, ?)"
	return s.Tx(ctx, func(tx *sql.Tx) error {
		if err := m.Up(tx); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, record, pluginName, m.Version, m.Description)
		return err
	})
}
