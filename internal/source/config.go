package source

import (
	"fmt"
	"time"
)

// Config holds configuration for the source plugin. Per-stream generator and
// probe parameters live on the stream records themselves; this config covers
// the shared scheduling and probing machinery.
type Config struct {
	// TickInterval is how often the scheduler emits one sample per enabled
	// stream.
	TickInterval time.Duration `mapstructure:"tick_interval"`

	// MaxWorkers bounds how many streams are serviced concurrently per tick.
	MaxWorkers int `mapstructure:"max_workers"`

	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	ProbeCount   int           `mapstructure:"probe_count"`
}

// DefaultConfig returns sensible defaults for the source module.
func DefaultConfig() Config {
	return Config{
		TickInterval: time.Second,
		MaxWorkers:   8,
		ProbeTimeout: 3 * time.Second,
		ProbeCount:   1,
	}
}

// Validate checks the plugin configuration.
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %v", c.TickInterval)
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be at least 1, got %d", c.MaxWorkers)
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive, got %v", c.ProbeTimeout)
	}
	if c.ProbeCount < 1 {
		return fmt.Errorf("probe_count must be at least 1, got %d", c.ProbeCount)
	}
	return nil
}
