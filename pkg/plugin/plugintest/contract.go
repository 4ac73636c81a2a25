// Package plugintest holds the behavioral contract every plugin.Plugin
// implementation must satisfy.
package plugintest

import (
	"context"
	"testing"

	"github.com/driftwatch/driftwatch/pkg/plugin"
	"go.uber.org/zap"
)

// TestPluginContract exercises the lifecycle guarantees shared by all
// plugins. Call it from each module's _test.go:
//
//	func TestContract(t *testing.T) {
//	    plugintest.TestPluginContract(t, func() plugin.Plugin { return detect.New() })
//	}
func TestPluginContract(t *testing.T, factory func() plugin.Plugin) {
	t.Helper()

	newInitialized := func(t *testing.T) plugin.Plugin {
		t.Helper()
		p := factory()
		if err := p.Init(context.Background(), depsFor(p.Info().Name)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		return p
	}

	t.Run("info metadata", func(t *testing.T) {
		info := factory().Info()
		if info.Name == "" {
			t.Error("empty Info().Name")
		}
		if info.Version == "" {
			t.Error("empty Info().Version")
		}
		if info.APIVersion < plugin.APIVersionMin {
			t.Errorf("APIVersion = %d, below minimum %d", info.APIVersion, plugin.APIVersionMin)
		}
	})

	t.Run("info is stable", func(t *testing.T) {
		p := factory()
		a, b := p.Info(), p.Info()
		if a.Name != b.Name || a.Version != b.Version {
			t.Error("Info() changed between calls")
		}
	})

	t.Run("init", func(t *testing.T) {
		newInitialized(t)
	})

	t.Run("start then stop", func(t *testing.T) {
		p := newInitialized(t)
		if err := p.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := p.Stop(context.Background()); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	})

	t.Run("stop without start", func(t *testing.T) {
		p := newInitialized(t)
		if err := p.Stop(context.Background()); err != nil {
			t.Fatalf("Stop() without Start error = %v", err)
		}
	})
}

// depsFor builds the minimal dependency set a plugin must accept: a named
// logger and nothing else.
func depsFor(name string) plugin.Dependencies {
	return plugin.Dependencies{
		Logger: zap.NewNop().Named(name),
	}
}
