// Package registry manages plugin lifecycle: registration, dependency
// resolution, initialization, and shutdown of driftwatch plugins.
package registry

import (
	"fmt"
	"slices"
	"sync"

	"github.com/driftwatch/driftwatch/pkg/plugin"
	"go.uber.org/zap"
)

// Registry owns every registered plugin and tracks which of them are
// active. A plugin becomes disabled instead of failing the boot when it is
// optional and something about it is broken.
type Registry struct {
	mu        sync.RWMutex
	impls     map[string]plugin.Plugin
	meta      map[string]plugin.PluginInfo
	bootOrder []string // start order, computed by Validate
	off       map[string]bool
	unsubs    map[string][]func() // per-plugin bus unsubscribe hooks
	logger    *zap.Logger
}

func New(logger *zap.Logger) *Registry {
	r := &Registry{logger: logger}
	r.impls = make(map[string]plugin.Plugin)
	r.meta = make(map[string]plugin.PluginInfo)
	r.off = make(map[string]bool)
	r.unsubs = make(map[string][]func())
	return r
}

// Register adds a plugin. Registration closes once Validate runs.
func (r *Registry) Register(p plugin.Plugin) error {
	info := p.Info()
	if info.Name == "" {
		return fmt.Errorf("plugin name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.impls[info.Name]; taken {
		return fmt.Errorf("plugin %q already registered", info.Name)
	}
	r.impls[info.Name] = p
	r.meta[info.Name] = info
	r.logger.Info("plugin registered", zap.String("name", info.Name),
		zap.String("version", info.Version), zap.Int("api_version", info.APIVersion))
	return nil
}

// disable marks a plugin inactive and records why. Callers hold the write
// lock.
func (r *Registry) disable(name, why string, err error) {
	r.logger.Warn(why, zap.String("name", name), zap.Error(err))
	r.off[name] = true
}

// activeNames returns the start-ordered plugin names that are not
// disabled. Callers hold at least the read lock.
func (r *Registry) activeNames() []string {
	names := make([]string, 0, len(r.bootOrder))
	for _, name := range r.bootOrder {
		if !r.off[name] {
			names = append(names, name)
		}
	}
	return names
}

// Get returns an active plugin by name.
func (r *Registry) Get(name string) (plugin.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.impls[name]; ok && !r.off[name] {
		return p, true
	}
	return nil, false
}

// All returns the active plugins in start order.
func (r *Registry) All() []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]plugin.Plugin, 0, len(r.bootOrder))
	for _, name := range r.activeNames() {
		active = append(active, r.impls[name])
	}
	return active
}

// AllRoutes collects HTTP routes from every active plugin that implements
// HTTPProvider, keyed by plugin name.
func (r *Registry) AllRoutes() map[string][]plugin.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byPlugin := make(map[string][]plugin.Route)
	for _, name := range r.activeNames() {
		hp, ok := r.impls[name].(plugin.HTTPProvider)
		if !ok {
			continue
		}
		if got := hp.Routes(); len(got) > 0 {
			byPlugin[name] = got
		}
	}
	return byPlugin
}

// Resolve is Get under the plugin.PluginResolver interface's name.
func (r *Registry) Resolve(name string) (plugin.Plugin, bool) { return r.Get(name) }

// ResolveByRole returns the active plugins that declare the given role.
func (r *Registry) ResolveByRole(role string) []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []plugin.Plugin
	for _, name := range r.activeNames() {
		if slices.Contains(r.meta[name].Roles, role) {
			matched = append(matched, r.impls[name])
		}
	}
	return matched
}

// IsDisabled reports whether a plugin has been disabled.
func (r *Registry) IsDisabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.off[name]
}
