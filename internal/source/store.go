package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/driftwatch/driftwatch/pkg/stream"
)

// SourceStore provides database access for the source plugin.
type SourceStore struct {
	db *sql.DB
}

// NewSourceStore creates a new SourceStore backed by the given database.
func NewSourceStore(db *sql.DB) *SourceStore {
	return &SourceStore{db: db}
}

// InsertStream inserts a new stream registration.
func (s *SourceStore) InsertStream(ctx context.Context, info *stream.StreamInfo) error {
	enabled := 0
	if info.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_streams (id, name, kind, params, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.Name, info.Kind, info.Params, enabled,
		info.CreatedAt, info.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert stream: %w", err)
	}
	return nil
}

// GetStream returns a stream by ID. Returns nil, nil if not found.
func (s *SourceStore) GetStream(ctx context.Context, id string) (*stream.StreamInfo, error) {
	var info stream.StreamInfo
	var enabledInt int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, kind, params, enabled, created_at, updated_at
		FROM source_streams WHERE id = ?`,
		id,
	).Scan(
		&info.ID, &info.Name, &info.Kind, &info.Params, &enabledInt,
		&info.CreatedAt, &info.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get stream: %w", err)
	}
	info.Enabled = enabledInt != 0
	return &info, nil
}

// ListStreams returns all registered streams, oldest first.
func (s *SourceStore) ListStreams(ctx context.Context) ([]stream.StreamInfo, error) {
	return s.listStreams(ctx, `
		SELECT id, name, kind, params, enabled, created_at, updated_at
		FROM source_streams ORDER BY created_at`)
}

// ListEnabled returns all enabled streams, oldest first.
func (s *SourceStore) ListEnabled(ctx context.Context) ([]stream.StreamInfo, error) {
	return s.listStreams(ctx, `
		SELECT id, name, kind, params, enabled, created_at, updated_at
		FROM source_streams WHERE enabled = 1 ORDER BY created_at`)
}

func (s *SourceStore) listStreams(ctx context.Context, query string) ([]stream.StreamInfo, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	defer rows.Close()

	var streams []stream.StreamInfo
	for rows.Next() {
		var info stream.StreamInfo
		var enabledInt int
		if err := rows.Scan(
			&info.ID, &info.Name, &info.Kind, &info.Params, &enabledInt,
			&info.CreatedAt, &info.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stream row: %w", err)
		}
		info.Enabled = enabledInt != 0
		streams = append(streams, info)
	}
	return streams, rows.Err()
}

// UpdateStream updates a stream's name and params.
func (s *SourceStore) UpdateStream(ctx context.Context, info *stream.StreamInfo) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE source_streams SET name = ?, params = ?, updated_at = ? WHERE id = ?`,
		info.Name, info.Params, info.UpdatedAt, info.ID,
	)
	if err != nil {
		return fmt.Errorf("update stream: %w", err)
	}
	return nil
}

// SetEnabled flips a stream's enabled state. Returns false if no such
// stream existed.
func (s *SourceStore) SetEnabled(ctx context.Context, id string, enabled bool) (bool, error) {
	enabledInt := 0
	if enabled {
		enabledInt = 1
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE source_streams SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabledInt, time.Now().UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("set stream enabled: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set stream enabled rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteStream removes a stream registration. Returns false if no such
// stream existed.
func (s *SourceStore) DeleteStream(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM source_streams WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete stream: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete stream rows affected: %w", err)
	}
	return n > 0, nil
}

// CountStreams returns the total and enabled stream counts.
func (s *SourceStore) CountStreams(ctx context.Context) (total, enabled int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(enabled), 0) FROM source_streams`,
	).Scan(&total, &enabled)
	if err != nil {
		return 0, 0, fmt.Errorf("count streams: %w", err)
	}
	return total, enabled, nil
}
