package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/driftwatch/driftwatch/pkg/stream"
)

// NewStreamInfo returns a StreamInfo with sensible defaults, suitable for
// test fixtures. Override individual fields via options as needed.
func NewStreamInfo(opts ...func(*stream.StreamInfo)) stream.StreamInfo {
	s := stream.StreamInfo{
		ID:        uuid.New().String(),
		Name:      "test-stream",
		Kind:      "synthetic",
		Params:    `{"base":10,"amplitude":5,"period":60,"noise":0.5}`,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithName sets the stream name.
func WithName(name string) func(*stream.StreamInfo) {
	return func(s *stream.StreamInfo) { s.Name = name }
}

// WithStreamKind sets the stream kind ("synthetic", "probe", "push").
func WithStreamKind(kind string) func(*stream.StreamInfo) {
	return func(s *stream.StreamInfo) { s.Kind = kind }
}

// WithParams sets the kind-specific params blob.
func WithParams(params string) func(*stream.StreamInfo) {
	return func(s *stream.StreamInfo) { s.Params = params }
}

// WithDisabled marks the stream disabled.
func WithDisabled() func(*stream.StreamInfo) {
	return func(s *stream.StreamInfo) { s.Enabled = false }
}

// NewSample returns a Sample on the given stream with sensible defaults.
func NewSample(streamID string, opts ...func(*stream.Sample)) stream.Sample {
	s := stream.Sample{
		StreamID:  streamID,
		Index:     1,
		Value:     42.0,
		EmittedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithValue sets the sample value.
func WithValue(v float64) func(*stream.Sample) {
	return func(s *stream.Sample) { s.Value = v }
}

// WithIndex sets the sample's step index.
func WithIndex(i uint64) func(*stream.Sample) {
	return func(s *stream.Sample) { s.Index = i }
}

// WithEmittedAt sets the sample's emission timestamp.
func WithEmittedAt(t time.Time) func(*stream.Sample) {
	return func(s *stream.Sample) { s.EmittedAt = t }
}

// NewAnomaly returns an Anomaly on the given stream with sensible defaults.
func NewAnomaly(streamID string, opts ...func(*stream.Anomaly)) stream.Anomaly {
	a := stream.Anomaly{
		ID:         uuid.New().String(),
		StreamID:   streamID,
		Index:      10,
		Severity:   "warning",
		Kind:       "spike",
		Value:      99.5,
		Expected:   50.0,
		ZScore:     4.2,
		DetectedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// WithSeverity sets the anomaly severity ("warning", "critical").
func WithSeverity(s string) func(*stream.Anomaly) {
	return func(a *stream.Anomaly) { a.Severity = s }
}

// WithKind sets the anomaly kind ("spike", "drop", "drift").
func WithKind(k string) func(*stream.Anomaly) {
	return func(a *stream.Anomaly) { a.Kind = k }
}

// WithZScore sets the anomaly's z-score.
func WithZScore(z float64) func(*stream.Anomaly) {
	return func(a *stream.Anomaly) { a.ZScore = z }
}

// WithDetectedAt sets the detection timestamp.
func WithDetectedAt(t time.Time) func(*stream.Anomaly) {
	return func(a *stream.Anomaly) { a.DetectedAt = t }
}

// WithResolvedAt marks the anomaly resolved at the given time.
func WithResolvedAt(t time.Time) func(*stream.Anomaly) {
	return func(a *stream.Anomaly) { a.ResolvedAt = &t }
}

// NewAlert returns an Alert on the given stream with sensible defaults.
func NewAlert(streamID string, opts ...func(*stream.Alert)) stream.Alert {
	a := stream.Alert{
		ID:          uuid.New().String(),
		StreamID:    streamID,
		State:       "open",
		Consecutive: 3,
		LastValue:   99.5,
		LastZScore:  4.2,
		OpenedAt:    time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// WithState sets the alert state ("open", "resolved").
func WithState(s string) func(*stream.Alert) {
	return func(a *stream.Alert) { a.State = s }
}

// WithConsecutive sets the consecutive anomalous sample count.
func WithConsecutive(n int) func(*stream.Alert) {
	return func(a *stream.Alert) { a.Consecutive = n }
}

// WithOpenedAt sets the alert's opening timestamp.
func WithOpenedAt(t time.Time) func(*stream.Alert) {
	return func(a *stream.Alert) { a.OpenedAt = t }
}

// WithAcked marks the alert acknowledged at the given time.
func WithAcked(t time.Time) func(*stream.Alert) {
	return func(a *stream.Alert) { a.AckedAt = &t }
}

// NewBaseline returns a Baseline snapshot for the given stream.
func NewBaseline(streamID string, opts ...func(*stream.Baseline)) stream.Baseline {
	b := stream.Baseline{
		StreamID:  streamID,
		Algorithm: "ewma",
		Mean:      50.0,
		StdDev:    5.0,
		Samples:   100,
		UpdatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// WithAlgorithm sets the baseline algorithm ("ewma", "holt_winters").
func WithAlgorithm(alg string) func(*stream.Baseline) {
	return func(b *stream.Baseline) { b.Algorithm = alg }
}

// WithEstimates sets the baseline's running estimates.
func WithEstimates(mean, stddev float64, samples uint64) func(*stream.Baseline) {
	return func(b *stream.Baseline) {
		b.Mean = mean
		b.StdDev = stddev
		b.Samples = samples
	}
}

// WithUpdatedAt sets the snapshot timestamp.
func WithUpdatedAt(t time.Time) func(*stream.Baseline) {
	return func(b *stream.Baseline) { b.UpdatedAt = t }
}
