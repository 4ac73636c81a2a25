// Package config provides a Viper-backed implementation of the plugin.Config
// interface plus the root logger constructor.
package config

import (
	"github.com/driftwatch/driftwatch/pkg/plugin"
	"github.com/spf13/viper"
)

// Compile-time interface guard.
var _ plugin.Config = (*ViperConfig)(nil)

// ViperConfig adapts a Viper instance to plugin.Config. The getters are
// promoted straight from Viper; only Unmarshal and Sub need adapting
// because their Viper signatures differ from the interface.
type ViperConfig struct {
	*viper.Viper
}

// New wraps a Viper instance in the plugin.Config shape. It returns the
// concrete type; callers assign to the interface where needed.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{Viper: v}
}

// Unmarshal decodes the whole section into target.
func (c *ViperConfig) Unmarshal(target any) error {
	return c.Viper.Unmarshal(target)
}

// Sub returns the sub-tree rooted at key. A missing key yields a usable
// empty config, never nil.
func (c *ViperConfig) Sub(key string) plugin.Config {
	return New(c.Viper.Sub(key))
}
