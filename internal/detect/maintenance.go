package detect

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// walCheckpointer is the optional store capability used to truncate the
// SQLite WAL after bulk deletes.
type walCheckpointer interface {
	Checkpoint(ctx context.Context) error
}

// startMaintenance launches the periodic janitor goroutine. Each cycle
// persists baseline snapshots and trims resolved anomalies past the
// retention window.
func (m *Module) startMaintenance() {
	m.wg.Add(1)
	go m.maintenanceLoop()
}

func (m *Module) maintenanceLoop() {
	defer m.wg.Done()
	tick := time.NewTicker(m.cfg.MaintenanceInterval)
	defer tick.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-tick.C:
			m.runMaintenance()
		}
	}
}

// runMaintenance executes a single maintenance cycle.
func (m *Module) runMaintenance() {
	if m.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, 30*time.Second)
	defer cancel()

	m.persistBaselines(ctx)

	cutoff := time.Now().Add(-m.cfg.AnomalyRetention)
	deleted, err := m.db.DeleteOldAnomalies(ctx, cutoff)
	if err != nil {
		m.logger.Warn("anomaly purge failed", zap.Error(err))
		return
	}
	if deleted == 0 {
		return
	}
	m.logger.Info("old anomalies purged", zap.Int64("count", deleted))

	// Reclaim the space freed by the purge so the WAL does not grow
	// unbounded on long-running servers.
	if m.checkpoint != nil {
		if err := m.checkpoint.Checkpoint(ctx); err != nil {
			m.logger.Warn("wal checkpoint after purge failed", zap.Error(err))
		}
	}
}

// persistBaselines writes every live stream's running estimates to the
// database. Snapshots are observability records only; detectors always start
// cold and are never seeded from them.
func (m *Module) persistBaselines(ctx context.Context) {
	wrote := 0
	for streamID, st := range m.states.snapshot() {
		for _, b := range liveBaselines(streamID, st) {
			if err := m.db.UpsertBaseline(ctx, &b); err != nil {
				m.logger.Warn("baseline write failed", zap.String("stream_id", streamID),
					zap.String("algorithm", b.Algorithm), zap.Error(err))
				continue
			}
			wrote++
		}
	}
	if wrote > 0 {
		m.logger.Debug("baseline snapshots written", zap.Int("count", wrote))
	}
}
