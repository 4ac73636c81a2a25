package detect

import (
	"fmt"
	"time"

	"github.com/driftwatch/driftwatch/internal/detect/anomaly"
)

// Config holds configuration for the detect plugin. Detector parameters apply
// to every stream; a fresh detector is built from them when a stream's first
// sample arrives.
type Config struct {
	Detector anomaly.Config `mapstructure:"detector"`

	// ConsecutiveForAlert is how many anomalous samples in a row open an
	// alert on a stream; the same count of normal samples resolves it.
	ConsecutiveForAlert int `mapstructure:"consecutive_for_alert"`

	// CUSUM drift tracking, a secondary signal alongside the z-score test.
	CUSUMSlack     float64 `mapstructure:"cusum_slack"`
	CUSUMThreshold float64 `mapstructure:"cusum_threshold"`

	// Holt-Winters seasonal baseline, maintained per stream when enabled and
	// exposed through the baseline endpoints. Secondary signal only.
	HWEnabled bool    `mapstructure:"hw_enabled"`
	HWAlpha   float64 `mapstructure:"hw_alpha"`
	HWBeta    float64 `mapstructure:"hw_beta"`
	HWGamma   float64 `mapstructure:"hw_gamma"`
	HWPeriod  int     `mapstructure:"hw_period"`

	AnomalyRetention    time.Duration `mapstructure:"anomaly_retention"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
}

// DefaultConfig returns sensible defaults for the detect module.
func DefaultConfig() Config {
	return Config{
		Detector:            anomaly.DefaultConfig(),
		ConsecutiveForAlert: 3,
		CUSUMSlack:          0.5,
		CUSUMThreshold:      5.0,
		HWEnabled:           false,
		HWAlpha:             0.3,
		HWBeta:              0.1,
		HWGamma:             0.3,
		HWPeriod:            24,
		AnomalyRetention:    30 * 24 * time.Hour,
		MaintenanceInterval: time.Hour,
	}
}

// Validate checks the plugin configuration, including the embedded detector
// parameters.
func (c Config) Validate() error {
	if err := c.Detector.Validate(); err != nil {
		return err
	}
	if c.ConsecutiveForAlert < 1 {
		return fmt.Errorf("consecutive_for_alert must be at least 1, got %d", c.ConsecutiveForAlert)
	}
	if c.AnomalyRetention <= 0 {
		return fmt.Errorf("anomaly_retention must be positive, got %v", c.AnomalyRetention)
	}
	if c.MaintenanceInterval <= 0 {
		return fmt.Errorf("maintenance_interval must be positive, got %v", c.MaintenanceInterval)
	}
	return nil
}
