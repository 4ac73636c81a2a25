// Package stream provides the public SDK types shared across the driftwatch
// pipeline: samples emitted by sources, classifications produced by the
// detector, and the anomaly/alert records persisted and broadcast from them.
package stream

import "time"

// Sample is a single scalar observation on a stream. Index is the stream's
// monotonically increasing step counter, assigned by the producing source.
type Sample struct {
	StreamID  string    `json:"stream_id"`
	Index     uint64    `json:"index"`
	Value     float64   `json:"value"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Classification is the detector's verdict for one sample. Baseline and
// Spread are the post-update running estimates; ZScore is computed against
// the pre-update baseline.
type Classification struct {
	IsAnomaly bool    `json:"is_anomaly"`
	Baseline  float64 `json:"baseline"`
	Spread    float64 `json:"spread"`
	ZScore    float64 `json:"z_score"`
}

// Reading pairs a sample with its classification. This is the tuple renderers
// consume, in production order, one per processed sample.
type Reading struct {
	StreamID  string    `json:"stream_id"`
	Index     uint64    `json:"index"`
	Value     float64   `json:"value"`
	IsAnomaly bool      `json:"is_anomaly"`
	Baseline  float64   `json:"baseline"`
	Spread    float64   `json:"spread"`
	ZScore    float64   `json:"z_score"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Anomaly is a persisted record of a flagged sample.
type Anomaly struct {
	ID         string     `json:"id"`
	StreamID   string     `json:"stream_id"`
	Index      uint64     `json:"index"`
	Severity   string     `json:"severity"` // "warning", "critical"
	Kind       string     `json:"kind"`     // "spike", "drop", "drift"
	Value      float64    `json:"value"`    // Observed value
	Expected   float64    `json:"expected"` // Baseline at detection time
	ZScore     float64    `json:"z_score"`  // Deviation in spread units
	DetectedAt time.Time  `json:"detected_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Baseline is a point-in-time snapshot of a stream's running estimates.
type Baseline struct {
	StreamID  string    `json:"stream_id"`
	Algorithm string    `json:"algorithm"` // "ewma", "holt_winters"
	Mean      float64   `json:"mean"`
	StdDev    float64   `json:"std_dev"`
	Samples   uint64    `json:"samples"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Alert is an open or resolved condition raised after consecutive anomalous
// samples on one stream.
type Alert struct {
	ID          string     `json:"id"`
	StreamID    string     `json:"stream_id"`
	State       string     `json:"state"` // "open", "resolved"
	Consecutive int        `json:"consecutive"`
	LastValue   float64    `json:"last_value"`
	LastZScore  float64    `json:"last_z_score"`
	OpenedAt    time.Time  `json:"opened_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	AckedAt     *time.Time `json:"acked_at,omitempty"`
}

// StreamInfo describes a registered stream and its source parameters.
type StreamInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"` // "synthetic", "probe", "push"
	Params    string    `json:"params,omitempty"` // Kind-specific JSON blob
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
