// Package anomaly implements the streaming detector driftwatch runs per
// stream: an adaptive EWMA baseline with a Z-score threshold test over a
// bounded history of raw samples.
package anomaly

import (
	"errors"
	"fmt"
	"math"

	"github.com/driftwatch/driftwatch/internal/detect/baseline"
	"github.com/driftwatch/driftwatch/internal/detect/window"
	"github.com/driftwatch/driftwatch/pkg/stream"
)

var (
	// ErrInvalidConfig rejects out-of-range detector parameters at
	// construction time. No detector is created.
	ErrInvalidConfig = errors.New("invalid detector configuration")

	// ErrInvalidInput rejects NaN and infinite samples. The detector state
	// is left completely untouched.
	ErrInvalidInput = errors.New("invalid input value")
)

// Config holds the per-stream detector parameters.
type Config struct {
	// Alpha is the weight of the newest sample in the running statistics.
	// Must be strictly between 0 and 1; larger values adapt faster.
	Alpha float64 `mapstructure:"alpha" json:"alpha"`

	// Threshold is the z-score a sample must strictly exceed to be
	// classified anomalous. Must be positive.
	Threshold float64 `mapstructure:"threshold" json:"threshold"`

	// WindowSize is the number of recent raw samples retained. Must be at
	// least 1; the capacity is fixed for the detector's lifetime.
	WindowSize int `mapstructure:"window_size" json:"window_size"`

	// Epsilon guards the z-score division when the spread is near zero.
	// Must be positive.
	Epsilon float64 `mapstructure:"epsilon" json:"epsilon"`

	// MinSamples suppresses anomaly flagging (never the statistics updates)
	// until this many samples have been absorbed. Zero disables the warmup.
	MinSamples int `mapstructure:"min_samples" json:"min_samples"`
}

// DefaultConfig returns the standard detector parameters.
func DefaultConfig() Config {
	return Config{
		Alpha:      0.2,
		Threshold:  3.0,
		WindowSize: 100,
		Epsilon:    1e-3,
	}
}

// Validate checks all parameter ranges, wrapping ErrInvalidConfig on the
// first violation.
func (c Config) Validate() error {
	if c.Alpha <= 0 || c.Alpha >= 1 {
		return fmt.Errorf("%w: alpha %v outside (0, 1)", ErrInvalidConfig, c.Alpha)
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("%w: threshold %v must be positive", ErrInvalidConfig, c.Threshold)
	}
	if c.WindowSize < 1 {
		return fmt.Errorf("%w: window size %d must be at least 1", ErrInvalidConfig, c.WindowSize)
	}
	if c.Epsilon <= 0 {
		return fmt.Errorf("%w: epsilon %v must be positive", ErrInvalidConfig, c.Epsilon)
	}
	if c.MinSamples < 0 {
		return fmt.Errorf("%w: min samples %d must not be negative", ErrInvalidConfig, c.MinSamples)
	}
	return nil
}

// Detector classifies one stream of samples, one value at a time. It keeps
// a smoothed mean and variance plus a bounded window of raw samples, so
// memory use is fixed at construction and each sample costs constant time.
//
// Not safe for concurrent use: each stream owns exactly one detector and
// feeds it strictly sequentially.
type Detector struct {
	cfg     Config
	stats   *baseline.EWMA
	history *window.Ring
}

// New creates a detector, rejecting invalid parameters with ErrInvalidConfig.
func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		cfg:     cfg,
		stats:   baseline.NewEWMA(cfg.Alpha),
		history: window.New(cfg.WindowSize),
	}, nil
}

// Process classifies one sample and folds it into the running statistics.
//
// The deviation is measured against the mean as it stood before this sample,
// and the z-score divides its magnitude by the current spread plus epsilon.
// A sample is anomalous only when the z-score strictly exceeds the
// threshold; a score exactly at the threshold is normal. Statistics update
// for every finite sample, anomalous or not, so the baseline keeps adapting
// through bursts. The very first sample seeds the mean and is never
// anomalous.
//
// The returned Classification carries the post-update mean and spread.
func (d *Detector) Process(value float64) (stream.Classification, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return stream.Classification{}, fmt.Errorf("%w: %v", ErrInvalidInput, value)
	}

	if d.stats.Samples == 0 {
		d.stats.Update(value)
		d.history.Append(value)
		return stream.Classification{Baseline: value}, nil
	}

	deviation := value - d.stats.Mean
	z := math.Abs(deviation) / (d.stats.StdDev() + d.cfg.Epsilon)
	isAnomaly := z > d.cfg.Threshold
	if d.cfg.MinSamples > 0 && d.stats.Samples < uint64(d.cfg.MinSamples) {
		isAnomaly = false
	}

	d.stats.Update(value)
	d.history.Append(value)

	return stream.Classification{
		IsAnomaly: isAnomaly,
		Baseline:  d.stats.Mean,
		Spread:    d.stats.StdDev(),
		ZScore:    z,
	}, nil
}

// Samples returns how many values the detector has absorbed.
func (d *Detector) Samples() uint64 { return d.stats.Samples }

// Baseline returns the current smoothed mean.
func (d *Detector) Baseline() float64 { return d.stats.Mean }

// Spread returns the current smoothed standard deviation estimate.
func (d *Detector) Spread() float64 { return d.stats.StdDev() }

// History returns the retained raw samples, oldest first.
func (d *Detector) History() []float64 { return d.history.Values() }

// Config returns the parameters the detector was built with.
func (d *Detector) Config() Config { return d.cfg }
