// Package detect implements the anomaly detection plugin. It consumes
// samples from the event bus, classifies each one against a per-stream
// EWMA baseline, records anomalies, and raises alerts after consecutive
// anomalous runs.
package detect

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/driftwatch/driftwatch/internal/detect/anomaly"
	"github.com/driftwatch/driftwatch/pkg/plugin"
	"github.com/driftwatch/driftwatch/pkg/roles"
	"github.com/driftwatch/driftwatch/pkg/stream"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin           = (*Module)(nil)
	_ plugin.HTTPProvider     = (*Module)(nil)
	_ plugin.HealthChecker    = (*Module)(nil)
	_ plugin.EventSubscriber  = (*Module)(nil)
	_ plugin.Validator        = (*Module)(nil)
	_ roles.DetectionProvider = (*Module)(nil)
)

// Module implements the detect plugin.
type Module struct {
	logger     *zap.Logger
	cfg        Config
	db         *DetectStore
	checkpoint walCheckpointer
	bus        plugin.EventBus
	plugins    plugin.PluginResolver
	states     *stateTable
	alerter    *Alerter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new detect plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "detect",
		Version:      "0.1.0",
		Description:  "Streaming anomaly detection over sample streams",
		Dependencies: []string{"source"},
		Required:     true,
		Roles:        []string{roles.RoleDetector},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal detect config: %w", err)
		}
	}

	if deps.Store != nil {
		if err := deps.Store.Migrate(ctx, "detect", Migrations()); err != nil {
			return fmt.Errorf("detect migrations: %w", err)
		}
		m.db = NewDetectStore(deps.Store.DB())
		if cp, ok := deps.Store.(walCheckpointer); ok {
			m.checkpoint = cp
		}
	}

	m.bus = deps.Bus
	m.plugins = deps.Plugins
	m.states = newStateTable(m.cfg)
	m.alerter = NewAlerter(m.db, m.bus, m.cfg.ConsecutiveForAlert, m.logger)

	m.logger.Info("detect module initialized",
		zap.Float64("alpha", m.cfg.Detector.Alpha),
		zap.Float64("threshold", m.cfg.Detector.Threshold),
		zap.Int("window_size", m.cfg.Detector.WindowSize),
		zap.Float64("epsilon", m.cfg.Detector.Epsilon),
		zap.Int("consecutive_for_alert", m.cfg.ConsecutiveForAlert),
		zap.Bool("hw_enabled", m.cfg.HWEnabled),
	)
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.cfg.Validate()
}

func (m *Module) Start(_ context.Context) error {
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.startMaintenance()
	m.logger.Info("detect module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logger.Info("detect module stopped")
	return nil
}

// -- plugin.HealthChecker --

// Health implements plugin.HealthChecker.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	count := 0
	if m.states != nil {
		count = m.states.count()
	}
	details := map[string]string{
		"streams_tracked": strconv.Itoa(count),
	}

	if m.db != nil {
		if n, err := m.db.CountOpenAlerts(ctx); err == nil {
			details["open_alerts"] = strconv.Itoa(n)
		}
	}

	producerAvailable := "false"
	if m.plugins != nil {
		if providers := m.plugins.ResolveByRole(roles.RoleProducer); len(providers) > 0 {
			producerAvailable = "true"
		}
	}
	details["producer_available"] = producerAvailable

	return plugin.HealthStatus{
		Status:  "healthy",
		Details: details,
	}
}

// -- plugin.EventSubscriber --

// Subscriptions implements plugin.EventSubscriber.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: TopicSampleEmitted, Handler: m.handleSampleEmitted},
		{Topic: TopicStreamRemoved, Handler: m.handleStreamRemoved},
	}
}

// -- Event Handlers --

// handleSampleEmitted is the detection pipeline entry point.
func (m *Module) handleSampleEmitted(ctx context.Context, event plugin.Event) {
	sample, ok := event.Payload.(stream.Sample)
	if !ok {
		m.logger.Debug("ignored sample event: unexpected payload type",
			zap.String("source", event.Source))
		return
	}
	m.processSample(ctx, sample)
}

// processSample runs one sample through the stream's detector and fans the
// verdict out: a classified reading on the bus, metrics, an anomaly record
// when flagged, and the alerter's run counters.
func (m *Module) processSample(ctx context.Context, sample stream.Sample) {
	st, err := m.states.getOrCreate(sample.StreamID)
	if err != nil {
		m.logger.Warn("failed to build detector",
			zap.String("stream_id", sample.StreamID), zap.Error(err))
		return
	}

	st.mu.Lock()
	preBaseline := st.Detector.Baseline()
	c, err := st.Detector.Process(sample.Value)
	if err != nil {
		st.mu.Unlock()
		m.logger.Warn("rejected sample",
			zap.String("stream_id", sample.StreamID),
			zap.Uint64("index", sample.Index),
			zap.Error(err))
		return
	}

	threshold := st.Detector.Config().Threshold

	// Signed standardized deviation for the drift tracker. The EWMA update
	// preserves the sign of (value - mean), so the post-update baseline
	// still tells us which side the sample fell on. Each sample's
	// contribution is bounded so a lone spike cannot cross the drift
	// threshold by itself; only sustained displacement accumulates.
	std := math.Min(c.ZScore, threshold+2)
	if sample.Value < c.Baseline {
		std = -std
	}
	drift := st.Drift.Observe(std)

	if st.Seasonal != nil {
		st.Seasonal.Update(sample.Value)
	}
	st.mu.Unlock()

	samplesProcessed.WithLabelValues(sample.StreamID).Inc()
	zscoreObserved.Observe(c.ZScore)

	reading := stream.Reading{
		StreamID:  sample.StreamID,
		Index:     sample.Index,
		Value:     sample.Value,
		IsAnomaly: c.IsAnomaly,
		Baseline:  c.Baseline,
		Spread:    c.Spread,
		ZScore:    c.ZScore,
		EmittedAt: sample.EmittedAt,
	}

	// Classified readings go out synchronously so consumers see each
	// stream's verdicts in production order.
	if m.bus != nil {
		if err := m.bus.Publish(ctx, plugin.Event{
			Topic:     TopicSampleClassified,
			Source:    "detect",
			Timestamp: time.Now().UTC(),
			Payload:   reading,
		}); err != nil {
			m.logger.Warn("failed to publish reading", zap.Error(err))
		}
	}

	if c.IsAnomaly {
		severity := anomaly.Grade(c.ZScore, threshold)
		anomaliesDetected.WithLabelValues(sample.StreamID, severity).Inc()

		a := &stream.Anomaly{
			ID:         uuid.NewString(),
			StreamID:   sample.StreamID,
			Index:      sample.Index,
			Severity:   severity,
			Kind:       anomaly.Kind(sample.Value, preBaseline),
			Value:      sample.Value,
			Expected:   preBaseline,
			ZScore:     c.ZScore,
			DetectedAt: time.Now().UTC(),
		}
		m.logger.Info("anomaly detected",
			zap.String("stream_id", sample.StreamID),
			zap.Uint64("index", sample.Index),
			zap.String("severity", a.Severity),
			zap.String("kind", a.Kind),
			zap.Float64("value", sample.Value),
			zap.Float64("expected", preBaseline),
			zap.Float64("z_score", c.ZScore),
		)
		m.recordAnomaly(ctx, a)
	}

	if drift.Drifting {
		magnitude := drift.High
		if drift.Direction == anomaly.DriftDown {
			magnitude = drift.Low
		}
		a := &stream.Anomaly{
			ID:         uuid.NewString(),
			StreamID:   sample.StreamID,
			Index:      sample.Index,
			Severity:   anomaly.SeverityWarning,
			Kind:       anomaly.KindDrift,
			Value:      sample.Value,
			Expected:   preBaseline,
			ZScore:     magnitude,
			DetectedAt: time.Now().UTC(),
		}
		m.logger.Info("baseline drift detected",
			zap.String("stream_id", sample.StreamID),
			zap.Uint64("index", sample.Index),
			zap.String("direction", drift.Direction),
			zap.Float64("magnitude", magnitude),
		)
		m.recordAnomaly(ctx, a)
	}

	m.alerter.ProcessReading(ctx, reading)
}

// recordAnomaly stores an anomaly record and publishes it on the bus.
func (m *Module) recordAnomaly(ctx context.Context, a *stream.Anomaly) {
	if m.db != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := m.db.InsertAnomaly(dbCtx, a); err != nil {
			m.logger.Warn("failed to store anomaly", zap.Error(err))
		}
	}

	if m.bus != nil {
		m.bus.PublishAsync(ctx, plugin.Event{
			Topic:     TopicAnomalyDetected,
			Source:    "detect",
			Timestamp: a.DetectedAt,
			Payload:   a,
		})
	}
}

// handleStreamRemoved discards the removed stream's in-memory state and its
// persisted snapshots, and closes out any open alert: the stream can no
// longer produce the normal samples that would resolve it.
func (m *Module) handleStreamRemoved(ctx context.Context, event plugin.Event) {
	info, ok := event.Payload.(stream.StreamInfo)
	if !ok {
		m.logger.Debug("ignored stream event: unexpected payload type",
			zap.String("source", event.Source))
		return
	}

	m.states.remove(info.ID)
	m.alerter.Forget(info.ID)

	if m.db != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := m.db.DeleteBaselines(dbCtx, info.ID); err != nil {
			m.logger.Warn("failed to delete baselines",
				zap.String("stream_id", info.ID), zap.Error(err))
		}

		if alert, err := m.db.GetOpenAlert(dbCtx, info.ID); err == nil && alert != nil {
			now := time.Now().UTC()
			if err := m.db.ResolveAlert(dbCtx, alert.ID, now); err != nil {
				m.logger.Warn("failed to resolve alert",
					zap.String("alert_id", alert.ID), zap.Error(err))
			} else {
				alertsOpen.Dec()
				alert.State = "resolved"
				alert.ResolvedAt = &now
				if m.bus != nil {
					m.bus.PublishAsync(ctx, plugin.Event{
						Topic:     TopicAlertResolved,
						Source:    "detect",
						Timestamp: now,
						Payload:   alert,
					})
				}
			}
		}
	}

	m.logger.Info("stream state discarded", zap.String("stream_id", info.ID))
}

// -- roles.DetectionProvider --

// Anomalies implements roles.DetectionProvider.
func (m *Module) Anomalies(ctx context.Context, streamID string) ([]stream.Anomaly, error) {
	if m.db == nil {
		return nil, nil
	}
	return m.db.ListAnomalies(ctx, streamID, 100)
}

// Baselines implements roles.DetectionProvider.
func (m *Module) Baselines(ctx context.Context, streamID string) ([]stream.Baseline, error) {
	if m.db == nil {
		return nil, nil
	}
	return m.db.GetBaselines(ctx, streamID)
}

// Alerts implements roles.DetectionProvider.
func (m *Module) Alerts(ctx context.Context, state string) ([]stream.Alert, error) {
	if m.db == nil {
		return nil, nil
	}
	return m.db.ListAlerts(ctx, state, 100)
}
