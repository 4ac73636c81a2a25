package source

import (
	"database/sql"

	"github.com/driftwatch/driftwatch/pkg/plugin"
)

// Migrations returns the source schema in version order. Exported so the
// seed package can prepare databases outside the plugin lifecycle.
func Migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create source stream registry",
			Up: func(tx *sql.Tx) error {
				return execAll(tx,
					`CREATE TABLE IF NOT EXISTS source_streams (
						id         TEXT PRIMARY KEY,
						name       TEXT NOT NULL,
						kind       TEXT NOT NULL DEFAULT 'synthetic',
						params     TEXT NOT NULL DEFAULT '{}',
						enabled    INTEGER NOT NULL DEFAULT 1,
						created_at DATETIME NOT NULL,
						updated_at DATETIME NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_source_streams_enabled ON source_streams(enabled)`,
				)
			},
		},
	}
}

func execAll(tx *sql.Tx, stmts ...string) error {
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
