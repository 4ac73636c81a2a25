package config

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process root logger from Viper settings. It reads
// "logging.level" (debug, info, warn, error; default "info") and
// "logging.format" (json, console; default "json").
func NewLogger(v *viper.Viper) (*zap.Logger, error) {
	lvl := v.GetString("logging.level")
	if lvl == "" {
		lvl = "info"
	}
	parsed, err := zapcore.ParseLevel(lvl)
	if err != nil {
		return nil, fmt.Errorf("unknown log level %q: %w", lvl, err)
	}

	cfg, err := formatConfig(v.GetString("logging.format"))
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	return cfg.Build()
}

func formatConfig(format string) (zap.Config, error) {
	switch format {
	case "json", "":
		return zap.NewProductionConfig(), nil
	case "console":
		return zap.NewDevelopmentConfig(), nil
	default:
		return zap.Config{}, fmt.Errorf("invalid log format %q: must be \"json\" or \"console\"", format)
	}
}
