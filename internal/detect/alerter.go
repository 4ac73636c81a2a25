package detect

import (
	"context"
	"sync"
	"time"

	"github.com/driftwatch/driftwatch/pkg/plugin"
	"github.com/driftwatch/driftwatch/pkg/stream"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Alerter turns per-sample verdicts into alert lifecycle decisions. An alert
// opens only after `need` anomalous samples in a row and closes again after
// `need` normal ones, so a single flagged sample never pages anyone.
type Alerter struct {
	db     *DetectStore
	bus    plugin.EventBus
	need   int
	logger *zap.Logger

	mu      sync.Mutex
	streaks map[string]*streak // keyed by stream ID
}

// streak counts the current uninterrupted run of one kind of sample. At most
// one of hot/calm is nonzero at any time.
type streak struct {
	hot  int // consecutive anomalies
	calm int // consecutive normals
}

// NewAlerter creates an alerter with the given consecutive-sample threshold.
func NewAlerter(db *DetectStore, bus plugin.EventBus, need int, logger *zap.Logger) *Alerter {
	return &Alerter{
		db:      db,
		bus:     bus,
		need:    need,
		logger:  logger,
		streaks: make(map[string]*streak),
	}
}

// ProcessReading folds one classified sample into the stream's streak and
// opens or clears alerts when the streak reaches the threshold.
func (a *Alerter) ProcessReading(ctx context.Context, r stream.Reading) {
	if a.db == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.streaks[r.StreamID]
	if s == nil {
		s = &streak{}
		a.streaks[r.StreamID] = s
	}

	if !r.IsAnomaly {
		s.hot = 0
		s.calm++
		if s.calm >= a.need {
			a.clear(ctx, r)
		}
		return
	}

	s.calm = 0
	s.hot++
	if s.hot >= a.need {
		a.open(ctx, r, s.hot)
	}
}

// Forget drops the streak for a removed stream.
func (a *Alerter) Forget(streamID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.streaks, streamID)
}

// open raises an alert for the stream unless one is already open.
func (a *Alerter) open(ctx context.Context, r stream.Reading, consecutive int) {
	existing, err := a.db.GetOpenAlert(ctx, r.StreamID)
	if err != nil {
		a.logger.Warn("open alert lookup failed",
			zap.String("stream_id", r.StreamID), zap.Error(err))
		return
	}
	if existing != nil {
		// Still hot, still covered by the existing alert.
		return
	}

	now := time.Now().UTC()
	alert := &stream.Alert{
		ID:          uuid.NewString(),
		StreamID:    r.StreamID,
		State:       "open",
		Consecutive: consecutive,
		LastValue:   r.Value,
		LastZScore:  r.ZScore,
		OpenedAt:    now,
	}
	if err := a.db.InsertAlert(ctx, alert); err != nil {
		a.logger.Warn("alert insert failed",
			zap.String("stream_id", r.StreamID), zap.Error(err))
		return
	}
	alertsOpen.Inc()

	a.logger.Warn("alert raised",
		zap.String("alert_id", alert.ID), zap.String("stream_id", r.StreamID),
		zap.Int("consecutive", consecutive),
		zap.Float64("last_value", r.Value), zap.Float64("last_z", r.ZScore),
	)
	a.publish(ctx, TopicAlertRaised, now, alert)
}

// clear resolves the stream's open alert, if any.
func (a *Alerter) clear(ctx context.Context, r stream.Reading) {
	alert, err := a.db.GetOpenAlert(ctx, r.StreamID)
	if err != nil {
		a.logger.Warn("open alert lookup failed",
			zap.String("stream_id", r.StreamID), zap.Error(err))
		return
	}
	if alert == nil {
		return
	}

	now := time.Now().UTC()
	if err := a.db.ResolveAlert(ctx, alert.ID, now); err != nil {
		a.logger.Warn("alert resolve failed",
			zap.String("alert_id", alert.ID), zap.Error(err))
		return
	}
	alertsOpen.Dec()

	alert.State = "resolved"
	alert.ResolvedAt = &now
	a.logger.Info("alert resolved",
		zap.String("alert_id", alert.ID), zap.String("stream_id", r.StreamID))
	a.publish(ctx, TopicAlertResolved, now, alert)
}

func (a *Alerter) publish(ctx context.Context, topic string, ts time.Time, alert *stream.Alert) {
	if a.bus == nil {
		return
	}
	a.bus.PublishAsync(ctx, plugin.Event{
		Topic:     topic,
		Source:    "detect",
		Timestamp: ts,
		Payload:   alert,
	})
}
