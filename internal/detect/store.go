package detect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/driftwatch/driftwatch/pkg/stream"
)

// Column lists shared between the INSERT and SELECT statements so the two
// cannot drift apart.
const (
	anomalyCols = `id, stream_id, sample_index, severity, kind,
		value, expected, z_score, detected_at, resolved_at`
	alertCols = `id, stream_id, state, consecutive, last_value, last_z,
		opened_at, resolved_at, acked_at`
	baselineCols = `stream_id, algorithm, mean, std_dev, samples, updated_at`
)

// DetectStore provides database access for the detect plugin.
type DetectStore struct {
	db *sql.DB
}

// NewDetectStore creates a DetectStore backed by the given database.
func NewDetectStore(db *sql.DB) *DetectStore {
	return &DetectStore{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// capLimit replaces a non-positive page size with the default.
func capLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

// touched reports whether an exec statement changed at least one row.
func touched(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// -- Anomalies --

// InsertAnomaly records a freshly detected anomaly.
func (s *DetectStore) InsertAnomaly(ctx context.Context, a *stream.Anomaly) error {
	const q = `INSERT INTO detect_anomalies (` + anomalyCols + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q,
		a.ID, a.StreamID, a.Index, a.Severity, a.Kind,
		a.Value, a.Expected, a.ZScore, a.DetectedAt, a.ResolvedAt); err != nil {
		return fmt.Errorf("store anomaly: %w", err)
	}
	return nil
}

func scanAnomaly(row scanner) (*stream.Anomaly, error) {
	var a stream.Anomaly
	var resolved sql.NullTime
	if err := row.Scan(&a.ID, &a.StreamID, &a.Index, &a.Severity, &a.Kind,
		&a.Value, &a.Expected, &a.ZScore, &a.DetectedAt, &resolved); err != nil {
		return nil, fmt.Errorf("scan anomaly: %w", err)
	}
	if resolved.Valid {
		a.ResolvedAt = &resolved.Time
	}
	return &a, nil
}

// ListAnomalies returns anomalies newest first. An empty streamID lists
// across every stream.
func (s *DetectStore) ListAnomalies(ctx context.Context, streamID string, limit int) ([]stream.Anomaly, error) {
	q := `SELECT ` + anomalyCols + ` FROM detect_anomalies`
	var args []any
	if streamID != "" {
		q += ` WHERE stream_id = ?`
		args = append(args, streamID)
	}
	q += ` ORDER BY detected_at DESC LIMIT ?`
	args = append(args, capLimit(limit))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query anomalies: %w", err)
	}
	defer rows.Close()

	var out []stream.Anomaly
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetAnomaly returns a single anomaly by ID, or nil when not found.
func (s *DetectStore) GetAnomaly(ctx context.Context, id string) (*stream.Anomaly, error) {
	const q = `SELECT ` + anomalyCols + ` FROM detect_anomalies WHERE id = ?`
	a, err := scanAnomaly(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// ResolveAnomaly stamps resolved_at on an open anomaly. Returns false when
// the anomaly is unknown or already resolved.
func (s *DetectStore) ResolveAnomaly(ctx context.Context, id string, resolvedAt time.Time) (bool, error) {
	const q = `UPDATE detect_anomalies SET resolved_at = ? WHERE id = ? AND resolved_at IS NULL`
	res, err := s.db.ExecContext(ctx, q, resolvedAt, id)
	if err != nil {
		return false, fmt.Errorf("mark anomaly resolved: %w", err)
	}
	return touched(res)
}

// DeleteAnomaly removes an anomaly record. Returns false when no such
// anomaly exists.
func (s *DetectStore) DeleteAnomaly(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM detect_anomalies WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete anomaly: %w", err)
	}
	return touched(res)
}

// DeleteOldAnomalies purges resolved anomalies older than before and
// reports how many rows went away.
func (s *DetectStore) DeleteOldAnomalies(ctx context.Context, before time.Time) (int64, error) {
	const q = `DELETE FROM detect_anomalies WHERE resolved_at IS NOT NULL AND resolved_at < ?`
	res, err := s.db.ExecContext(ctx, q, before)
	if err != nil {
		return 0, fmt.Errorf("purge anomalies: %w", err)
	}
	return res.RowsAffected()
}

// -- Baselines --

// UpsertBaseline writes a baseline snapshot, replacing any previous one for
// the same stream and algorithm.
func (s *DetectStore) UpsertBaseline(ctx context.Context, b *stream.Baseline) error {
	const q = `INSERT OR REPLACE INTO detect_baselines (` + baselineCols + `)
		VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q,
		b.StreamID, b.Algorithm, b.Mean, b.StdDev, b.Samples, b.UpdatedAt); err != nil {
		return fmt.Errorf("write baseline: %w", err)
	}
	return nil
}

// GetBaselines returns the stored baseline snapshots for a stream.
func (s *DetectStore) GetBaselines(ctx context.Context, streamID string) ([]stream.Baseline, error) {
	const q = `SELECT ` + baselineCols + ` FROM detect_baselines
		WHERE stream_id = ? ORDER BY algorithm`
	rows, err := s.db.QueryContext(ctx, q, streamID)
	if err != nil {
		return nil, fmt.Errorf("query baselines: %w", err)
	}
	defer rows.Close()

	var out []stream.Baseline
	for rows.Next() {
		var b stream.Baseline
		if err := rows.Scan(&b.StreamID, &b.Algorithm, &b.Mean, &b.StdDev,
			&b.Samples, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan baseline: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBaselines removes every baseline snapshot for a stream.
func (s *DetectStore) DeleteBaselines(ctx context.Context, streamID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM detect_baselines WHERE stream_id = ?`, streamID); err != nil {
		return fmt.Errorf("delete baselines: %w", err)
	}
	return nil
}

// -- Alerts --

// InsertAlert records a newly opened alert.
func (s *DetectStore) InsertAlert(ctx context.Context, a *stream.Alert) error {
	const q = `INSERT INTO detect_alerts (` + alertCols + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q,
		a.ID, a.StreamID, a.State, a.Consecutive, a.LastValue, a.LastZScore,
		a.OpenedAt, a.ResolvedAt, a.AckedAt); err != nil {
		return fmt.Errorf("store alert: %w", err)
	}
	return nil
}

func scanAlert(row scanner) (*stream.Alert, error) {
	var a stream.Alert
	var resolved, acked sql.NullTime
	if err := row.Scan(&a.ID, &a.StreamID, &a.State, &a.Consecutive, &a.LastValue,
		&a.LastZScore, &a.OpenedAt, &resolved, &acked); err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	if resolved.Valid {
		a.ResolvedAt = &resolved.Time
	}
	if acked.Valid {
		a.AckedAt = &acked.Time
	}
	return &a, nil
}

func (s *DetectStore) getAlert(ctx context.Context, q string, arg any) (*stream.Alert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// GetOpenAlert returns the open alert for a stream, or nil when none exists.
func (s *DetectStore) GetOpenAlert(ctx context.Context, streamID string) (*stream.Alert, error) {
	const q = `SELECT ` + alertCols + ` FROM detect_alerts
		WHERE stream_id = ? AND state = 'open' ORDER BY opened_at DESC LIMIT 1`
	return s.getAlert(ctx, q, streamID)
}

// GetAlert returns an alert by ID, or nil when not found.
func (s *DetectStore) GetAlert(ctx context.Context, id string) (*stream.Alert, error) {
	const q = `SELECT ` + alertCols + ` FROM detect_alerts WHERE id = ?`
	return s.getAlert(ctx, q, id)
}

// ListAlerts returns alerts newest first. An empty state lists all states.
func (s *DetectStore) ListAlerts(ctx context.Context, state string, limit int) ([]stream.Alert, error) {
	q := `SELECT ` + alertCols + ` FROM detect_alerts`
	var args []any
	if state != "" {
		q += ` WHERE state = ?`
		args = append(args, state)
	}
	q += ` ORDER BY opened_at DESC LIMIT ?`
	args = append(args, capLimit(limit))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []stream.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ResolveAlert moves an alert to the resolved state.
func (s *DetectStore) ResolveAlert(ctx context.Context, id string, resolvedAt time.Time) error {
	const q = `UPDATE detect_alerts SET state = 'resolved', resolved_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, resolvedAt, id); err != nil {
		return fmt.Errorf("mark alert resolved: %w", err)
	}
	return nil
}

// AckAlert stamps an acknowledgement time on an alert. Returns false when
// the alert is unknown or already acknowledged.
func (s *DetectStore) AckAlert(ctx context.Context, id string, ackedAt time.Time) (bool, error) {
	const q = `UPDATE detect_alerts SET acked_at = ? WHERE id = ? AND acked_at IS NULL`
	res, err := s.db.ExecContext(ctx, q, ackedAt, id)
	if err != nil {
		return false, fmt.Errorf("ack alert: %w", err)
	}
	return touched(res)
}

// CountOpenAlerts reports how many alerts are currently open.
func (s *DetectStore) CountOpenAlerts(ctx context.Context) (int, error) {
	const q = `SELECT COUNT(*) FROM detect_alerts WHERE state = 'open'`
	var n int
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count open alerts: %w", err)
	}
	return n, nil
}
