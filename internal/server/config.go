package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the HTTP listener's slice of the configuration.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DataDir string `mapstructure:"data_dir"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setCoreDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/driftwatch.db")
}

func setPluginDefaults(v *viper.Viper) {
	v.SetDefault("plugins.source.tick_interval", "1s")
	v.SetDefault("plugins.source.max_workers", 8)
	v.SetDefault("plugins.source.probe_timeout", "3s")
	v.SetDefault("plugins.source.probe_count", 1)

	v.SetDefault("plugins.detect.detector.alpha", 0.2)
	v.SetDefault("plugins.detect.detector.threshold", 3.0)
	v.SetDefault("plugins.detect.detector.window_size", 100)
	v.SetDefault("plugins.detect.detector.epsilon", 0.001)
	v.SetDefault("plugins.detect.detector.min_samples", 0)
	v.SetDefault("plugins.detect.consecutive_for_alert", 3)
	v.SetDefault("plugins.detect.cusum_slack", 0.5)
	v.SetDefault("plugins.detect.cusum_threshold", 5.0)
	v.SetDefault("plugins.detect.hw_enabled", false)
	v.SetDefault("plugins.detect.hw_alpha", 0.3)
	v.SetDefault("plugins.detect.hw_beta", 0.1)
	v.SetDefault("plugins.detect.hw_gamma", 0.3)
	v.SetDefault("plugins.detect.hw_period", 24)
	v.SetDefault("plugins.detect.anomaly_retention", "720h")
	v.SetDefault("plugins.detect.maintenance_interval", "1h")

	v.SetDefault("plugins.webhook.enabled", true)
	v.SetDefault("plugins.webhook.url", "")
	v.SetDefault("plugins.webhook.timeout", "10s")
}

// LoadConfig reads configuration from a file and the environment. An empty
// configPath searches the usual locations; a missing file falls back to
// defaults.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setCoreDefaults(v)
	setPluginDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("driftwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/driftwatch")
	}

	// DW_SERVER_PORT=9090 overrides server.port, and so on.
	v.SetEnvPrefix("DW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return v, nil
}
