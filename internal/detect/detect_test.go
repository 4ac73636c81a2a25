package detect

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/detect/anomaly"
	"github.com/driftwatch/driftwatch/internal/event"
	"github.com/driftwatch/driftwatch/internal/store"
	"github.com/driftwatch/driftwatch/pkg/plugin"
	"github.com/driftwatch/driftwatch/pkg/plugin/plugintest"
	"github.com/driftwatch/driftwatch/pkg/roles"
	"github.com/driftwatch/driftwatch/pkg/stream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const floatTol = 1e-6

func TestPluginContract(t *testing.T) {
	plugintest.TestPluginContract(t, func() plugin.Plugin { return New() })
}

// testModule initializes a detect module with an in-memory store and a live
// bus, started and ready to process events.
func testModule(t *testing.T, v *viper.Viper) (*Module, *event.Bus) {
	t.Helper()

	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bus := event.NewBus(zap.NewNop())

	m := New()
	deps := plugin.Dependencies{
		Logger: zap.NewNop(),
		Store:  db,
		Bus:    bus,
	}
	if v != nil {
		deps.Config = config.New(v)
	}
	if err := m.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { m.Stop(context.Background()) })
	return m, bus
}

// emit pushes one sample through the module's bus handler.
func emit(m *Module, streamID string, idx uint64, value float64) {
	m.handleSampleEmitted(context.Background(), plugin.Event{
		Topic:     TopicSampleEmitted,
		Source:    "source",
		Timestamp: time.Now().UTC(),
		Payload: stream.Sample{
			StreamID:  streamID,
			Index:     idx,
			Value:     value,
			EmittedAt: time.Now().UTC(),
		},
	})
}

func TestInit_WithConfig(t *testing.T) {
	v := viper.New()
	v.Set("detector.alpha", 0.5)
	v.Set("detector.threshold", 2.5)
	v.Set("detector.window_size", 10)
	v.Set("consecutive_for_alert", 5)
	v.Set("hw_enabled", true)

	m, _ := testModule(t, v)

	if m.cfg.Detector.Alpha != 0.5 {
		t.Errorf("cfg.Detector.Alpha = %f, want 0.5", m.cfg.Detector.Alpha)
	}
	if m.cfg.Detector.Threshold != 2.5 {
		t.Errorf("cfg.Detector.Threshold = %f, want 2.5", m.cfg.Detector.Threshold)
	}
	if m.cfg.Detector.WindowSize != 10 {
		t.Errorf("cfg.Detector.WindowSize = %d, want 10", m.cfg.Detector.WindowSize)
	}
	if m.cfg.ConsecutiveForAlert != 5 {
		t.Errorf("cfg.ConsecutiveForAlert = %d, want 5", m.cfg.ConsecutiveForAlert)
	}
	if !m.cfg.HWEnabled {
		t.Error("cfg.HWEnabled = false, want true")
	}
}

func TestInit_NilConfigUsesDefaults(t *testing.T) {
	m := New()
	err := m.Init(context.Background(), plugin.Dependencies{
		Logger: zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("Init() with nil config error = %v", err)
	}

	defaults := DefaultConfig()
	if m.cfg.Detector.Alpha != defaults.Detector.Alpha {
		t.Errorf("cfg.Detector.Alpha = %f, want default %f",
			m.cfg.Detector.Alpha, defaults.Detector.Alpha)
	}
	if m.cfg.ConsecutiveForAlert != defaults.ConsecutiveForAlert {
		t.Errorf("cfg.ConsecutiveForAlert = %d, want default %d",
			m.cfg.ConsecutiveForAlert, defaults.ConsecutiveForAlert)
	}
}

func TestValidateConfig_RejectsBadDetectorParams(t *testing.T) {
	v := viper.New()
	v.Set("detector.alpha", 1.5)

	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := New()
	if err := m.Init(context.Background(), plugin.Dependencies{
		Logger: zap.NewNop(),
		Config: config.New(viper.New()),
		Store:  db,
	}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := m.ValidateConfig(); err != nil {
		t.Errorf("ValidateConfig() with defaults = %v, want nil", err)
	}

	m2 := New()
	if err := m2.Init(context.Background(), plugin.Dependencies{
		Logger: zap.NewNop(),
		Config: config.New(v),
	}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	err = m2.ValidateConfig()
	if err == nil {
		t.Fatal("ValidateConfig() with alpha 1.5 = nil, want error")
	}
	if !errors.Is(err, anomaly.ErrInvalidConfig) {
		t.Errorf("ValidateConfig() error = %v, want ErrInvalidConfig", err)
	}
}

func TestInfo_Metadata(t *testing.T) {
	m := New()
	info := m.Info()

	if info.Name != "detect" {
		t.Errorf("Info().Name = %q, want %q", info.Name, "detect")
	}
	if !info.Required {
		t.Error("Info().Required = false, want true")
	}
	if len(info.Dependencies) != 1 || info.Dependencies[0] != "source" {
		t.Errorf("Info().Dependencies = %v, want [source]", info.Dependencies)
	}

	found := false
	for _, r := range info.Roles {
		if r == roles.RoleDetector {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("Info().Roles = %v, want to contain %q", info.Roles, roles.RoleDetector)
	}
}

func TestSubscriptions_ReturnsTopics(t *testing.T) {
	m := New()

	subs := m.Subscriptions()
	if len(subs) != 2 {
		t.Fatalf("Subscriptions() returned %d, want 2", len(subs))
	}

	expected := map[string]bool{
		TopicSampleEmitted: false,
		TopicStreamRemoved: false,
	}
	for _, s := range subs {
		if _, ok := expected[s.Topic]; !ok {
			t.Errorf("unexpected subscription topic: %q", s.Topic)
		}
		expected[s.Topic] = true
		if s.Handler == nil {
			t.Errorf("subscription for %q has nil handler", s.Topic)
		}
	}
	for topic, seen := range expected {
		if !seen {
			t.Errorf("missing subscription for topic %q", topic)
		}
	}
}

func TestPipeline_PublishesReadingsInOrder(t *testing.T) {
	m, bus := testModule(t, nil)

	var readings []stream.Reading
	bus.Subscribe(TopicSampleClassified, func(_ context.Context, e plugin.Event) {
		readings = append(readings, e.Payload.(stream.Reading))
	})

	values := []float64{10, 10, 10, 10, 100}
	for i, v := range values {
		emit(m, "stream-a", uint64(i+1), v)
	}

	if len(readings) != 5 {
		t.Fatalf("published %d readings, want 5", len(readings))
	}
	for i, r := range readings {
		if r.Index != uint64(i+1) {
			t.Errorf("readings[%d].Index = %d, want %d", i, r.Index, i+1)
		}
		if r.StreamID != "stream-a" {
			t.Errorf("readings[%d].StreamID = %q, want stream-a", i, r.StreamID)
		}
	}

	// The stable phase is never flagged; the spike is.
	for i := 0; i < 4; i++ {
		if readings[i].IsAnomaly {
			t.Errorf("readings[%d].IsAnomaly = true, want false", i)
		}
	}
	last := readings[4]
	if !last.IsAnomaly {
		t.Error("spike reading not flagged anomalous")
	}
	if math.Abs(last.Baseline-28.0) > floatTol {
		t.Errorf("spike reading Baseline = %f, want 28.0", last.Baseline)
	}
	if last.ZScore <= m.cfg.Detector.Threshold {
		t.Errorf("spike reading ZScore = %f, want above threshold", last.ZScore)
	}
}

func TestPipeline_RecordsAnomaly(t *testing.T) {
	m, _ := testModule(t, nil)
	ctx := context.Background()

	values := []float64{10, 10, 10, 10, 100}
	for i, v := range values {
		emit(m, "stream-a", uint64(i+1), v)
	}

	anomalies, err := m.db.ListAnomalies(ctx, "stream-a", 50)
	if err != nil {
		t.Fatalf("ListAnomalies: %v", err)
	}
	if len(anomalies) != 1 {
		t.Fatalf("recorded %d anomalies, want 1", len(anomalies))
	}

	a := anomalies[0]
	if a.ID == "" {
		t.Error("anomaly ID is empty")
	}
	if a.Index != 5 {
		t.Errorf("Index = %d, want 5", a.Index)
	}
	if a.Value != 100.0 {
		t.Errorf("Value = %f, want 100.0", a.Value)
	}
	// Expected is the baseline as it stood before the spike.
	if math.Abs(a.Expected-10.0) > floatTol {
		t.Errorf("Expected = %f, want 10.0", a.Expected)
	}
	if a.Kind != anomaly.KindSpike {
		t.Errorf("Kind = %q, want %q", a.Kind, anomaly.KindSpike)
	}
	if a.Severity != anomaly.SeverityCritical {
		t.Errorf("Severity = %q, want %q", a.Severity, anomaly.SeverityCritical)
	}
}

func TestPipeline_DropBelowBaseline(t *testing.T) {
	m, _ := testModule(t, nil)
	ctx := context.Background()

	// Stable around 100, then collapse to near zero.
	values := []float64{100, 100, 100, 100, 0.5}
	for i, v := range values {
		emit(m, "stream-a", uint64(i+1), v)
	}

	anomalies, err := m.db.ListAnomalies(ctx, "stream-a", 50)
	if err != nil {
		t.Fatalf("ListAnomalies: %v", err)
	}
	if len(anomalies) != 1 {
		t.Fatalf("recorded %d anomalies, want 1", len(anomalies))
	}
	if anomalies[0].Kind != anomaly.KindDrop {
		t.Errorf("Kind = %q, want %q", anomalies[0].Kind, anomaly.KindDrop)
	}
}

func TestPipeline_RejectsNonFiniteSample(t *testing.T) {
	m, _ := testModule(t, nil)
	ctx := context.Background()

	emit(m, "stream-a", 1, 10)
	emit(m, "stream-a", 2, math.NaN())
	emit(m, "stream-a", 3, 10)

	// The NaN sample is dropped without updating state or producing records.
	st, ok := m.states.get("stream-a")
	if !ok {
		t.Fatal("stream state missing")
	}
	if got := st.Detector.Samples(); got != 2 {
		t.Errorf("detector absorbed %d samples, want 2", got)
	}

	anomalies, err := m.db.ListAnomalies(ctx, "stream-a", 50)
	if err != nil {
		t.Fatalf("ListAnomalies: %v", err)
	}
	if len(anomalies) != 0 {
		t.Errorf("recorded %d anomalies, want 0", len(anomalies))
	}
}

func TestPipeline_ConsecutiveSpikesOpenAlert(t *testing.T) {
	m, _ := testModule(t, nil)
	ctx := context.Background()

	// Escalating spikes keep the z-score above threshold even as the
	// baseline chases the signal: three in a row open an alert.
	values := []float64{10, 10, 10, 10, 1000, 10000, 100000}
	for i, v := range values {
		emit(m, "stream-a", uint64(i+1), v)
	}

	open, err := m.db.GetOpenAlert(ctx, "stream-a")
	if err != nil {
		t.Fatalf("GetOpenAlert: %v", err)
	}
	if open == nil {
		t.Fatal("no open alert after 3 consecutive anomalous samples")
	}
	if open.Consecutive != m.cfg.ConsecutiveForAlert {
		t.Errorf("Consecutive = %d, want %d", open.Consecutive, m.cfg.ConsecutiveForAlert)
	}
}

func TestHandleStreamRemoved_DiscardsState(t *testing.T) {
	m, _ := testModule(t, nil)
	ctx := context.Background()

	// Build up state, a persisted baseline, and an open alert.
	values := []float64{10, 10, 10, 10, 1000, 10000, 100000}
	for i, v := range values {
		emit(m, "stream-a", uint64(i+1), v)
	}
	m.persistBaselines(ctx)

	if baselines, _ := m.db.GetBaselines(ctx, "stream-a"); len(baselines) == 0 {
		t.Fatal("no persisted baselines before removal")
	}
	if open, _ := m.db.GetOpenAlert(ctx, "stream-a"); open == nil {
		t.Fatal("no open alert before removal")
	}

	m.handleStreamRemoved(ctx, plugin.Event{
		Topic:   TopicStreamRemoved,
		Source:  "source",
		Payload: stream.StreamInfo{ID: "stream-a", Name: "a"},
	})

	if m.states.count() != 0 {
		t.Errorf("states.count() = %d, want 0", m.states.count())
	}
	if baselines, _ := m.db.GetBaselines(ctx, "stream-a"); baselines != nil {
		t.Errorf("baselines survive removal: %v", baselines)
	}
	if open, _ := m.db.GetOpenAlert(ctx, "stream-a"); open != nil {
		t.Error("open alert survives removal")
	}

	// The next sample on the same ID starts a cold detector.
	emit(m, "stream-a", 100, 1e9)
	anomalies, err := m.db.ListAnomalies(ctx, "stream-a", 50)
	if err != nil {
		t.Fatalf("ListAnomalies: %v", err)
	}
	for _, a := range anomalies {
		if a.Index == 100 {
			t.Error("first sample after removal was flagged; detector should start cold")
		}
	}
}

func TestMaintenance_PersistsBaselines(t *testing.T) {
	v := viper.New()
	v.Set("hw_enabled", true)
	v.Set("hw_period", 4)
	m, _ := testModule(t, v)
	ctx := context.Background()

	// Two full periods prime the seasonal model.
	values := []float64{10, 20, 10, 20, 10, 20, 10, 20}
	for i, vv := range values {
		emit(m, "stream-a", uint64(i+1), vv)
	}

	m.persistBaselines(ctx)

	baselines, err := m.db.GetBaselines(ctx, "stream-a")
	if err != nil {
		t.Fatalf("GetBaselines: %v", err)
	}
	if len(baselines) != 2 {
		t.Fatalf("persisted %d baselines, want 2 (ewma + holt_winters)", len(baselines))
	}
	if baselines[0].Algorithm != "ewma" || baselines[1].Algorithm != "holt_winters" {
		t.Errorf("algorithms = [%q, %q], want [ewma, holt_winters]",
			baselines[0].Algorithm, baselines[1].Algorithm)
	}
	if baselines[0].Samples != 8 {
		t.Errorf("ewma Samples = %d, want 8", baselines[0].Samples)
	}
}

func TestMaintenance_PurgesOldAnomalies(t *testing.T) {
	v := viper.New()
	v.Set("anomaly_retention", "1h")
	m, _ := testModule(t, v)
	ctx := context.Background()

	old := time.Now().UTC().Add(-2 * time.Hour)
	a := &stream.Anomaly{
		ID: "anom-old", StreamID: "stream-a", Index: 1,
		Severity: "warning", Kind: "spike",
		Value: 90, Expected: 50, ZScore: 3.3,
		DetectedAt: old.Add(-time.Hour),
		ResolvedAt: &old,
	}
	if err := m.db.InsertAnomaly(ctx, a); err != nil {
		t.Fatalf("InsertAnomaly: %v", err)
	}

	m.runMaintenance()

	remaining, err := m.db.ListAnomalies(ctx, "", 50)
	if err != nil {
		t.Fatalf("ListAnomalies: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("%d anomalies survive retention purge, want 0", len(remaining))
	}
}

func TestHealth_ReportsStatus(t *testing.T) {
	m, _ := testModule(t, nil)

	emit(m, "stream-a", 1, 10)
	emit(m, "stream-b", 1, 10)

	status := m.Health(context.Background())
	if status.Status != "healthy" {
		t.Errorf("Health().Status = %q, want %q", status.Status, "healthy")
	}
	if got := status.Details["streams_tracked"]; got != "2" {
		t.Errorf("Details[streams_tracked] = %q, want %q", got, "2")
	}
	if _, ok := status.Details["open_alerts"]; !ok {
		t.Error("Health().Details missing key \"open_alerts\"")
	}
	if _, ok := status.Details["producer_available"]; !ok {
		t.Error("Health().Details missing key \"producer_available\"")
	}
}

func TestDetectionProvider_EmptyResults(t *testing.T) {
	m, _ := testModule(t, nil)
	ctx := context.Background()

	anomalies, err := m.Anomalies(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Anomalies() error = %v", err)
	}
	if anomalies != nil {
		t.Errorf("Anomalies() = %v, want nil (empty)", anomalies)
	}

	baselines, err := m.Baselines(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Baselines() error = %v", err)
	}
	if baselines != nil {
		t.Errorf("Baselines() = %v, want nil (empty)", baselines)
	}

	alerts, err := m.Alerts(ctx, "")
	if err != nil {
		t.Fatalf("Alerts() error = %v", err)
	}
	if alerts != nil {
		t.Errorf("Alerts() = %v, want nil (empty)", alerts)
	}
}
