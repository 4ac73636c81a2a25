// Package source implements the stream production plugin. It owns the
// stream registry and emits samples onto the event bus: synthetic series
// from seeded generators, RTT measurements from ICMP probes, and values
// pushed in over the API. Downstream consumers never see the difference.
package source

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/driftwatch/driftwatch/pkg/plugin"
	"github.com/driftwatch/driftwatch/pkg/roles"
	"github.com/driftwatch/driftwatch/pkg/stream"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ plugin.Validator     = (*Module)(nil)
	_ roles.StreamProvider = (*Module)(nil)
)

// Module implements the source plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config
	store  *SourceStore
	bus    plugin.EventBus
	sched  *Scheduler
	prober *Prober

	mu       sync.Mutex
	emitters map[string]*emitter
}

// emitter holds the per-stream runtime state: the step counter shared by
// every sample on the stream, and the generator for synthetic streams. The
// generator is rebuilt lazily after a params change; the counter survives it.
type emitter struct {
	mu    sync.Mutex
	index uint64
	gen   *Generator
}

// New creates a new source plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "source",
		Version:     "0.1.0",
		Description: "Sample stream production: synthetic generators, ICMP probes, push ingest",
		Required:    true,
		Roles:       []string{roles.RoleProducer},
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal source config: %w", err)
		}
	}

	if deps.Store != nil {
		if err := deps.Store.Migrate(ctx, "source", Migrations()); err != nil {
			return fmt.Errorf("source migrations: %w", err)
		}
		m.store = NewSourceStore(deps.Store.DB())
	}

	m.bus = deps.Bus
	m.emitters = make(map[string]*emitter)
	m.prober = NewProber(m.cfg.ProbeTimeout, m.cfg.ProbeCount, m.logger)
	m.sched = NewScheduler(m.store, m.emitScheduled, m.cfg.TickInterval, m.cfg.MaxWorkers, m.logger)

	m.logger.Info("source module initialized",
		zap.Duration("tick_interval", m.cfg.TickInterval),
		zap.Int("max_workers", m.cfg.MaxWorkers),
	)
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.cfg.Validate()
}

func (m *Module) Start(_ context.Context) error {
	if m.sched != nil {
		m.sched.Start(context.Background())
	}
	m.logger.Info("source module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.sched != nil {
		m.sched.Stop()
	}
	m.logger.Info("source module stopped")
	return nil
}

// -- plugin.HealthChecker --

// Health implements plugin.HealthChecker.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	details := map[string]string{}

	if m.store != nil {
		if total, enabled, err := m.store.CountStreams(ctx); err == nil {
			details["streams"] = strconv.Itoa(total)
			details["streams_enabled"] = strconv.Itoa(enabled)
		}
	}
	if m.sched != nil {
		details["scheduler_running"] = strconv.FormatBool(m.sched.Running())
	}

	return plugin.HealthStatus{
		Status:  "healthy",
		Details: details,
	}
}

// -- roles.StreamProvider --

// Streams implements roles.StreamProvider.
func (m *Module) Streams(ctx context.Context) ([]stream.StreamInfo, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.ListStreams(ctx)
}

// StreamByID implements roles.StreamProvider.
func (m *Module) StreamByID(ctx context.Context, id string) (*stream.StreamInfo, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.GetStream(ctx, id)
}

// -- emission --

// emitScheduled produces one sample for a stream on a scheduler tick. Push
// streams are skipped; their samples arrive over the API.
func (m *Module) emitScheduled(ctx context.Context, info stream.StreamInfo) {
	switch info.Kind {
	case KindSynthetic:
		em, err := m.emitterFor(info)
		if err != nil {
			m.logger.Warn("bad stream params",
				zap.String("stream_id", info.ID),
				zap.Error(err),
			)
			return
		}
		em.mu.Lock()
		value := em.gen.Next()
		em.mu.Unlock()
		m.publishSample(ctx, info, value)

	case KindProbe:
		params, err := parseProbeParams(info.Params)
		if err != nil {
			m.logger.Warn("bad stream params",
				zap.String("stream_id", info.ID),
				zap.Error(err),
			)
			return
		}
		rtt, err := m.prober.Measure(ctx, params.Target)
		if err != nil {
			probeFailures.Inc()
			m.logger.Debug("probe produced no sample",
				zap.String("stream_id", info.ID),
				zap.String("target", params.Target),
				zap.Error(err),
			)
			return
		}
		m.publishSample(ctx, info, rtt)

	case KindPush:
		// Samples arrive via the ingest endpoint.
	}
}

// emitterFor returns the stream's runtime state, building the generator from
// the stream's params on first use.
func (m *Module) emitterFor(info stream.StreamInfo) (*emitter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	em, ok := m.emitters[info.ID]
	if !ok {
		em = &emitter{}
		m.emitters[info.ID] = em
	}
	if info.Kind == KindSynthetic && em.gen == nil {
		params, err := parseSynthParams(info.Params)
		if err != nil {
			return nil, err
		}
		gen, err := NewGenerator(params)
		if err != nil {
			return nil, err
		}
		em.gen = gen
	}
	return em, nil
}

// nextIndex allocates the next step index for a stream. Indexes start at 1
// and are monotonic for the lifetime of the process.
func (m *Module) nextIndex(streamID string) uint64 {
	m.mu.Lock()
	em, ok := m.emitters[streamID]
	if !ok {
		em = &emitter{}
		m.emitters[streamID] = em
	}
	m.mu.Unlock()

	em.mu.Lock()
	em.index++
	idx := em.index
	em.mu.Unlock()
	return idx
}

// resetGenerator drops a stream's generator so changed params take effect on
// the next tick. The index counter is preserved.
func (m *Module) resetGenerator(streamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if em, ok := m.emitters[streamID]; ok {
		em.mu.Lock()
		em.gen = nil
		em.mu.Unlock()
	}
}

// removeEmitter discards a stream's runtime state entirely.
func (m *Module) removeEmitter(streamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.emitters, streamID)
}

// publishSample assigns the sample its index and publishes it synchronously,
// so per-stream ordering holds through the bus.
func (m *Module) publishSample(ctx context.Context, info stream.StreamInfo, value float64) stream.Sample {
	s := stream.Sample{
		StreamID:  info.ID,
		Index:     m.nextIndex(info.ID),
		Value:     value,
		EmittedAt: time.Now().UTC(),
	}
	samplesEmitted.WithLabelValues(info.Kind).Inc()

	if m.bus != nil {
		if err := m.bus.Publish(ctx, plugin.Event{
			Topic:     TopicSampleEmitted,
			Source:    "source",
			Timestamp: s.EmittedAt,
			Payload:   s,
		}); err != nil {
			m.logger.Warn("failed to publish sample",
				zap.String("stream_id", info.ID),
				zap.Error(err),
			)
		}
	}
	return s
}
