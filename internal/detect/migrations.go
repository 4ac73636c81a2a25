package detect

import (
	"database/sql"

	"github.com/driftwatch/driftwatch/pkg/plugin"
)

// Migrations returns the detect schema in version order. Exported so the
// seed package can prepare databases outside the plugin lifecycle.
func Migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create detect tables",
			Up: func(tx *sql.Tx) error {
				return execAll(tx,
					`CREATE TABLE IF NOT EXISTS detect_anomalies (
						id           TEXT PRIMARY KEY,
						stream_id    TEXT NOT NULL,
						sample_index INTEGER NOT NULL DEFAULT 0,
						severity     TEXT NOT NULL DEFAULT 'warning',
						kind         TEXT NOT NULL DEFAULT 'spike',
						value        REAL NOT NULL,
						expected     REAL NOT NULL,
						z_score      REAL NOT NULL,
						detected_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						resolved_at  DATETIME
					)`,
					`CREATE INDEX IF NOT EXISTS idx_detect_anomalies_stream ON detect_anomalies(stream_id)`,
					`CREATE INDEX IF NOT EXISTS idx_detect_anomalies_detected ON detect_anomalies(detected_at)`,

					`CREATE TABLE IF NOT EXISTS detect_baselines (
						stream_id  TEXT NOT NULL,
						algorithm  TEXT NOT NULL DEFAULT 'ewma',
						mean       REAL NOT NULL DEFAULT 0,
						std_dev    REAL NOT NULL DEFAULT 0,
						samples    INTEGER NOT NULL DEFAULT 0,
						updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						PRIMARY KEY (stream_id, algorithm)
					)`,

					`CREATE TABLE IF NOT EXISTS detect_alerts (
						id          TEXT PRIMARY KEY,
						stream_id   TEXT NOT NULL,
						state       TEXT NOT NULL DEFAULT 'open',
						consecutive INTEGER NOT NULL DEFAULT 0,
						last_value  REAL NOT NULL DEFAULT 0,
						last_z      REAL NOT NULL DEFAULT 0,
						opened_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						resolved_at DATETIME,
						acked_at    DATETIME
					)`,
					`CREATE INDEX IF NOT EXISTS idx_detect_alerts_stream ON detect_alerts(stream_id)`,
					`CREATE INDEX IF NOT EXISTS idx_detect_alerts_state ON detect_alerts(state)`,
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
