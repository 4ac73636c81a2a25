package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/driftwatch/driftwatch/pkg/plugin"
)

// newStore opens a store on a throwaway database file.
func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "driftwatch.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustExec(t *testing.T, s *SQLiteStore, stmt string) {
	t.Helper()
	if _, err := s.DB().Exec(stmt); err != nil {
		t.Fatalf("exec %q: %v", stmt, err)
	}
}

func migrationCount(t *testing.T, s *SQLiteStore, pluginName string) int {
	t.Helper()
	var n int
	err := s.DB().QueryRow(
		"SELECT COUNT(*) FROM _migrations WHERE plugin_name = ?", pluginName,
	).Scan(&n)
	if err != nil {
		t.Fatalf("count migrations for %s: %v", pluginName, err)
	}
	return n
}

func TestNew(t *testing.T) {
	t.Run("creates the database file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fresh.db")
		s, err := New(path)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer s.Close()

		if _, err := os.Stat(path); err != nil {
			t.Errorf("database file missing: %v", err)
		}
	})

	t.Run("rejects an unwritable path", func(t *testing.T) {
		if _, err := New("/nonexistent/dir/driftwatch.db"); err == nil {
			t.Error("expected error for unwritable path")
		}
	})

	t.Run("applies startup pragmas", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var mode string
		if err := s.DB().QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
			t.Fatalf("journal_mode: %v", err)
		}
		if mode != "wal" {
			t.Errorf("journal_mode = %q, want wal", mode)
		}

		var fk int
		if err := s.DB().QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatalf("foreign_keys: %v", err)
		}
		if fk != 1 {
			t.Errorf("foreign_keys = %d, want 1", fk)
		}
	})
}

func TestTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits when fn succeeds", func(t *testing.T) {
		s := newStore(t)
		mustExec(t, s, "CREATE TABLE probe_targets (id INTEGER PRIMARY KEY, host TEXT)")

		err := s.Tx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO probe_targets (id, host) VALUES (1, 'edge-gw.internal')")
			return err
		})
		if err != nil {
			t.Fatalf("Tx: %v", err)
		}

		var host string
		if err := s.DB().QueryRowContext(ctx, "SELECT host FROM probe_targets WHERE id = 1").Scan(&host); err != nil {
			t.Fatalf("select after commit: %v", err)
		}
		if host != "edge-gw.internal" {
			t.Errorf("host = %q, want edge-gw.internal", host)
		}
	})

	t.Run("rolls back when fn fails", func(t *testing.T) {
		s := newStore(t)
		mustExec(t, s, "CREATE TABLE probe_targets (id INTEGER PRIMARY KEY, host TEXT)")

		failure := errors.New("validation failed")
		err := s.Tx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, "INSERT INTO probe_targets (id, host) VALUES (1, 'edge-gw.internal')"); err != nil {
				return err
			}
			return failure
		})
		if !errors.Is(err, failure) {
			t.Fatalf("Tx = %v, want the fn error back", err)
		}

		var n int
		if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM probe_targets").Scan(&n); err != nil {
			t.Fatalf("count after rollback: %v", err)
		}
		if n != 0 {
			t.Errorf("%d rows survive a rolled-back tx, want 0", n)
		}
	})
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()

	t.Run("applies migrations in order", func(t *testing.T) {
		s := newStore(t)
		migs := []plugin.Migration{
			{Version: 1, Description: "create probe_results", Up: func(tx *sql.Tx) error {
				_, err := tx.Exec("CREATE TABLE probe_results (id INTEGER PRIMARY KEY, target TEXT)")
				return err
			}},
			{Version: 2, Description: "add latency column", Up: func(tx *sql.Tx) error {
				_, err := tx.Exec("ALTER TABLE probe_results ADD COLUMN latency_ms REAL")
				return err
			}},
		}
		if err := s.Migrate(ctx, "source", migs); err != nil {
			t.Fatalf("Migrate: %v", err)
		}

		if _, err := s.DB().ExecContext(ctx, "INSERT INTO probe_results (id, target, latency_ms) VALUES (1, 'edge-gw', 12.5)"); err != nil {
			t.Fatalf("insert into migrated table: %v", err)
		}
		if got := migrationCount(t, s, "source"); got != 2 {
			t.Errorf("recorded migrations = %d, want 2", got)
		}
	})

	t.Run("second run is a no-op", func(t *testing.T) {
		s := newStore(t)
		runs := 0
		migs := []plugin.Migration{
			{Version: 1, Description: "create probe_results", Up: func(tx *sql.Tx) error {
				runs++
				_, err := tx.Exec("CREATE TABLE probe_results (id INTEGER)")
				return err
			}},
		}
		for range 2 {
			if err := s.Migrate(ctx, "source", migs); err != nil {
				t.Fatalf("Migrate: %v", err)
			}
		}
		if runs != 1 {
			t.Errorf("migration ran %d times, want 1", runs)
		}
	})

	t.Run("rejects version gaps", func(t *testing.T) {
		s := newStore(t)
		migs := []plugin.Migration{
			{Version: 1, Description: "ok", Up: func(tx *sql.Tx) error { return nil }},
			{Version: 3, Description: "gap", Up: func(tx *sql.Tx) error { return nil }},
		}
		if err := s.Migrate(ctx, "source", migs); err == nil {
			t.Fatal("expected error for a version gap")
		}
	})

	t.Run("tracks plugins independently", func(t *testing.T) {
		s := newStore(t)
		create := func(table string) []plugin.Migration {
			return []plugin.Migration{{Version: 1, Description: "create " + table, Up: func(tx *sql.Tx) error {
				_, err := tx.Exec("CREATE TABLE " + table + " (id INTEGER)")
				return err
			}}}
		}
		if err := s.Migrate(ctx, "source", create("source_probes")); err != nil {
			t.Fatalf("source migrations: %v", err)
		}
		if err := s.Migrate(ctx, "detect", create("detect_baselines")); err != nil {
			t.Fatalf("detect migrations: %v", err)
		}

		for _, table := range []string{"source_probes", "detect_baselines"} {
			var name string
			err := s.DB().QueryRowContext(ctx,
				"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
			).Scan(&name)
			if err != nil {
				t.Errorf("table %s missing: %v", table, err)
			}
		}
	})

	t.Run("failed migration leaves no record", func(t *testing.T) {
		s := newStore(t)
		migs := []plugin.Migration{
			{Version: 1, Description: "broken", Up: func(tx *sql.Tx) error {
				_, err := tx.Exec("CREATE SOMETHING THAT IS NOT SQL")
				return err
			}},
		}
		if err := s.Migrate(ctx, "detect", migs); err == nil {
			t.Fatal("expected error from broken migration")
		}
		if got := migrationCount(t, s, "detect"); got != 0 {
			t.Errorf("recorded migrations = %d, want 0 after failure", got)
		}
	})

	t.Run("earlier migrations survive a later failure", func(t *testing.T) {
		s := newStore(t)
		migs := []plugin.Migration{
			{Version: 1, Description: "create detect_alerts", Up: func(tx *sql.Tx) error {
				_, err := tx.Exec("CREATE TABLE detect_alerts (id INTEGER)")
				return err
			}},
			{Version: 2, Description: "broken", Up: func(tx *sql.Tx) error {
				_, err := tx.Exec("NOT VALID SQL")
				return err
			}},
		}
		if err := s.Migrate(ctx, "detect", migs); err == nil {
			t.Fatal("expected error from second migration")
		}
		if got := migrationCount(t, s, "detect"); got != 1 {
			t.Errorf("recorded migrations = %d, want 1 (first committed)", got)
		}
	})
}

func TestCheckpoint_TruncatesWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "driftwatch.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	mustExec(t, s, "CREATE TABLE probe_results (id INTEGER PRIMARY KEY, latency_ms REAL)")
	for i := range 50 {
		if _, err := s.DB().ExecContext(ctx, "INSERT INTO probe_results (id, latency_ms) VALUES (?, ?)", i+1, float64(i)); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	walPath := path + "-wal"
	before, err := os.Stat(walPath)
	if err != nil {
		t.Fatalf("stat wal before checkpoint: %v", err)
	}
	if before.Size() == 0 {
		t.Fatal("wal file empty before checkpoint, nothing to verify")
	}

	if err := s.Checkpoint(ctx); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	after, err := os.Stat(walPath)
	if err != nil {
		t.Fatalf("stat wal after checkpoint: %v", err)
	}
	if after.Size() != 0 {
		t.Errorf("wal size = %d after TRUNCATE checkpoint, want 0", after.Size())
	}
}

func TestClose(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "driftwatch.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.DB().PingContext(context.Background()); err == nil {
		t.Error("ping succeeded on a closed store")
	}
}

func TestCheckVersion(t *testing.T) {
	type step struct {
		version string
		wantErr error
	}
	tests := []struct {
		name   string
		steps  []step
		stored string
	}{
		{
			name:   "first run records the binary version",
			steps:  []step{{version: "0.3.0"}},
			stored: "0.3.0",
		},
		{
			name:   "same version is a no-op",
			steps:  []step{{version: "0.3.0"}, {version: "0.3.0"}},
			stored: "0.3.0",
		},
		{
			name:   "upgrade records the new version",
			steps:  []step{{version: "0.3.0"}, {version: "0.4.0"}},
			stored: "0.4.0",
		},
		{
			name:   "patch upgrade passes",
			steps:  []step{{version: "0.3.0"}, {version: "0.3.1"}},
			stored: "0.3.1",
		},
		{
			name:   "older binary is rejected",
			steps:  []step{{version: "0.4.0"}, {version: "0.3.0", wantErr: ErrNewerSchema}},
			stored: "0.4.0",
		},
		{
			name:   "dev passes in both directions",
			steps:  []step{{version: "dev"}, {version: "0.4.0"}, {version: "dev"}},
			stored: "dev",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			for i, st := range tt.steps {
				err := s.CheckVersion(ctx, st.version)
				if st.wantErr != nil {
					if !errors.Is(err, st.wantErr) {
						t.Fatalf("step %d: CheckVersion(%q) = %v, want %v", i, st.version, err, st.wantErr)
					}
					continue
				}
				if err != nil {
					t.Fatalf("step %d: CheckVersion(%q) = %v", i, st.version, err)
				}
			}

			var got string
			err := s.DB().QueryRowContext(ctx, "SELECT app_version FROM _schema_meta WHERE id = 1").Scan(&got)
			if err != nil {
				t.Fatalf("read recorded version: %v", err)
			}
			if got != tt.stored {
				t.Errorf("recorded version = %q, want %q", got, tt.stored)
			}
		})
	}
}
