// Package seed populates an empty database with demo streams and a slice
// of detection history, so a fresh driftwatch instance has something to
// show before the first samples arrive.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/driftwatch/driftwatch/internal/detect"
	"github.com/driftwatch/driftwatch/internal/source"
	"github.com/driftwatch/driftwatch/pkg/stream"
)

// SeedDemoStreams registers the demo stream set and backfills anomaly,
// baseline, and alert history. It only seeds an empty database: if any
// stream already exists the call is a no-op, so re-running is safe.
func SeedDemoStreams(ctx context.Context, sourceStore *source.SourceStore, detectStore *detect.DetectStore) error {
	total, _, err := sourceStore.CountStreams(ctx)
	if err != nil {
		return fmt.Errorf("counting streams: %w", err)
	}
	if total > 0 {
		return nil
	}

	now := time.Now().UTC()

	streams := demoStreams(now)
	streamIDs := make(map[string]string, len(streams)) // name -> ID

	for i := range streams {
		if err := sourceStore.InsertStream(ctx, &streams[i]); err != nil {
			return fmt.Errorf("seed stream %s: %w", streams[i].Name, err)
		}
		streamIDs[streams[i].Name] = streams[i].ID
	}

	if err := seedBaselines(ctx, detectStore, streamIDs, now); err != nil {
		return fmt.Errorf("seed baselines: %w", err)
	}

	if err := seedAnomalyHistory(ctx, detectStore, streamIDs, now); err != nil {
		return fmt.Errorf("seed anomalies: %w", err)
	}

	if err := seedAlertHistory(ctx, detectStore, streamIDs, now); err != nil {
		return fmt.Errorf("seed alerts: %w", err)
	}

	return nil
}

// demoStreams returns six streams representing a small service being watched:
// four synthetic series with different shapes, one latency probe, and one
// push stream for external feeds.
func demoStreams(now time.Time) []stream.StreamInfo {
	created := now.Add(-7 * 24 * time.Hour)
	return []stream.StreamInfo{
		{
			ID: uuid.New().String(), Name: "cpu-load", Kind: source.KindSynthetic,
			Params:  `{"base":45,"amplitude":25,"period":120,"noise":2.5,"inject_probability":0.01,"injector":"spike"}`,
			Enabled: true, CreatedAt: created, UpdatedAt: now,
		},
		{
			ID: uuid.New().String(), Name: "memory-used", Kind: source.KindSynthetic,
			Params:  `{"base":62,"amplitude":8,"period":240,"noise":1.2,"inject_probability":0.005,"injector":"drop"}`,
			Enabled: true, CreatedAt: created, UpdatedAt: now,
		},
		{
			ID: uuid.New().String(), Name: "request-rate", Kind: source.KindSynthetic,
			Params:  `{"base":120,"amplitude":90,"period":300,"noise":8,"inject_probability":0.01,"injector":"mixed"}`,
			Enabled: true, CreatedAt: created, UpdatedAt: now,
		},
		{
			ID: uuid.New().String(), Name: "error-rate", Kind: source.KindSynthetic,
			Params:  `{"base":2.5,"amplitude":1.5,"period":180,"noise":0.4,"inject_probability":0.02,"injector":"outlier"}`,
			Enabled: true, CreatedAt: created, UpdatedAt: now,
		},
		{
			ID: uuid.New().String(), Name: "gateway-rtt", Kind: source.KindProbe,
			Params:  `{"target":"1.1.1.1"}`,
			Enabled: false, CreatedAt: created, UpdatedAt: now,
		},
		{
			ID: uuid.New().String(), Name: "deploy-events", Kind: source.KindPush,
			Params:  "{}",
			Enabled: true, CreatedAt: now.Add(-2 * 24 * time.Hour), UpdatedAt: now,
		},
	}
}

// seedBaselines writes a current baseline snapshot per synthetic stream,
// matching the series shapes in demoStreams.
func seedBaselines(ctx context.Context, store *detect.DetectStore, ids map[string]string, now time.Time) error {
	baselines := []stream.Baseline{
		{StreamID: ids["cpu-load"], Algorithm: "ewma", Mean: 46.1, StdDev: 17.9, Samples: 8431, UpdatedAt: now},
		{StreamID: ids["memory-used"], Algorithm: "ewma", Mean: 61.7, StdDev: 5.8, Samples: 8431, UpdatedAt: now},
		{StreamID: ids["request-rate"], Algorithm: "ewma", Mean: 118.4, StdDev: 64.2, Samples: 8431, UpdatedAt: now},
		{StreamID: ids["error-rate"], Algorithm: "ewma", Mean: 2.4, StdDev: 1.1, Samples: 8431, UpdatedAt: now},
	}

	for i := range baselines {
		if baselines[i].StreamID == "" {
			continue
		}
		if err := store.UpsertBaseline(ctx, &baselines[i]); err != nil {
			return fmt.Errorf("baseline %s: %w", baselines[i].StreamID, err)
		}
	}
	return nil
}

// seedAnomalyHistory writes a week of resolved anomalies plus two recent
// unresolved ones, spread across the synthetic streams.
func seedAnomalyHistory(ctx context.Context, store *detect.DetectStore, ids map[string]string, now time.Time) error {
	type entry struct {
		stream   string
		age      time.Duration
		severity string
		kind     string
		value    float64
		expected float64
		zscore   float64
		resolved bool
	}

	entries := []entry{
		{"cpu-load", 6 * 24 * time.Hour, "warning", "spike", 142.7, 46.3, 3.4, true},
		{"cpu-load", 4 * 24 * time.Hour, "critical", "spike", 171.2, 45.1, 5.8, true},
		{"request-rate", 3 * 24 * time.Hour, "warning", "drop", 8.2, 121.5, 3.1, true},
		{"memory-used", 2 * 24 * time.Hour, "warning", "drop", 6.4, 61.9, 3.6, true},
		{"error-rate", 30 * time.Hour, "critical", "spike", 14.8, 2.5, 7.2, true},
		{"cpu-load", 8 * time.Hour, "warning", "spike", 131.9, 46.8, 3.2, false},
		{"error-rate", 25 * time.Minute, "critical", "spike", 18.3, 2.4, 9.1, false},
	}

	var index uint64 = 7200
	for _, e := range entries {
		id, ok := ids[e.stream]
		if !ok {
			continue
		}
		index += 137

		detectedAt := now.Add(-e.age)
		a := &stream.Anomaly{
			ID:         uuid.New().String(),
			StreamID:   id,
			Index:      index,
			Severity:   e.severity,
			Kind:       e.kind,
			Value:      e.value,
			Expected:   e.expected,
			ZScore:     e.zscore,
			DetectedAt: detectedAt,
		}
		if e.resolved {
			resolvedAt := detectedAt.Add(10 * time.Minute)
			a.ResolvedAt = &resolvedAt
		}
		if err := store.InsertAnomaly(ctx, a); err != nil {
			return fmt.Errorf("anomaly on %s: %w", e.stream, err)
		}
	}
	return nil
}

// seedAlertHistory writes one resolved alert from the error-rate incident a
// day ago and one currently open alert matching its unresolved anomaly.
func seedAlertHistory(ctx context.Context, store *detect.DetectStore, ids map[string]string, now time.Time) error {
	alerts := []stream.Alert{
		{
			ID:          uuid.New().String(),
			StreamID:    ids["error-rate"],
			State:       "resolved",
			Consecutive: 5,
			LastValue:   14.8,
			LastZScore:  7.2,
			OpenedAt:    now.Add(-30 * time.Hour),
		},
		{
			ID:          uuid.New().String(),
			StreamID:    ids["error-rate"],
			State:       "open",
			Consecutive: 4,
			LastValue:   18.3,
			LastZScore:  9.1,
			OpenedAt:    now.Add(-20 * time.Minute),
		},
	}

	resolvedAt := now.Add(-29 * time.Hour)
	alerts[0].ResolvedAt = &resolvedAt

	for i := range alerts {
		if alerts[i].StreamID == "" {
			continue
		}
		if err := store.InsertAlert(ctx, &alerts[i]); err != nil {
			return fmt.Errorf("alert on %s: %w", alerts[i].StreamID, err)
		}
	}
	return nil
}
