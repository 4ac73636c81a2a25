package registry

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/driftwatch/driftwatch/pkg/plugin"
	"go.uber.org/zap"
)

// Validate checks API version compatibility and the dependency graph, then
// computes the start order. A broken optional plugin is disabled; a broken
// required plugin fails validation. Call once, after all Register calls.
func (r *Registry) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, info := range r.meta {
		err := checkAPIVersion(info)
		if err == nil {
			if info.APIVersion < plugin.APIVersionCurrent {
				r.logger.Warn("plugin targets an older API version", zap.String("name", name),
					zap.Int("plugin_api", info.APIVersion), zap.Int("current_api", plugin.APIVersionCurrent))
			}
			continue
		}
		if info.Required {
			return err
		}
		r.disable(name, "plugin disabled: incompatible API version", err)
	}

	for name, info := range r.meta {
		if r.off[name] {
			continue
		}
		for _, dep := range info.Dependencies {
			if _, found := r.impls[dep]; found {
				continue
			}
			err := fmt.Errorf("plugin %q requires %q, which is not registered", name, dep)
			if info.Required {
				return err
			}
			r.disable(name, "plugin disabled: missing dependency", err)
			break
		}
	}

	// Disabling propagates to dependents until nothing changes.
	for again := true; again; {
		again = false
		for name, info := range r.meta {
			if r.off[name] {
				continue
			}
			for _, dep := range info.Dependencies {
				if !r.off[dep] {
					continue
				}
				if info.Required {
					return fmt.Errorf("required plugin %q has disabled dependency %q", name, dep)
				}
				r.disable(name, "plugin disabled: depends on a disabled plugin",
					fmt.Errorf("dependency %q is disabled", dep))
				again = true
				break
			}
		}
	}

	order, err := r.startOrder()
	if err != nil {
		return err
	}
	r.bootOrder = order
	r.logger.Debug("plugin start order resolved", zap.Strings("order", order))
	return nil
}

// InitAll initializes active plugins in dependency order. depsFor builds the
// per-plugin dependency set. After a successful Init the plugin's
// ValidateConfig hook runs (if implemented) and its declared bus
// subscriptions are registered.
func (r *Registry) InitAll(ctx context.Context, depsFor func(name string) plugin.Dependencies) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.bootOrder {
		if r.off[name] {
			continue
		}
		p := r.impls[name]
		deps := depsFor(name)

		err := safeCall("Init", func() error { return p.Init(ctx, deps) })
		if err == nil {
			if v, ok := p.(plugin.Validator); ok {
				if cfgErr := v.ValidateConfig(); cfgErr != nil {
					err = fmt.Errorf("invalid config: %w", cfgErr)
				}
			}
		}
		if err != nil {
			if r.meta[name].Required {
				return fmt.Errorf("cannot init required plugin %q: %w", name, err)
			}
			r.disable(name, "plugin disabled: initialization failed", err)
			continue
		}

		if sub, ok := p.(plugin.EventSubscriber); ok && deps.Bus != nil {
			for _, s := range sub.Subscriptions() {
				r.unsubs[name] = append(r.unsubs[name], deps.Bus.Subscribe(s.Topic, s.Handler))
			}
		}
		r.logger.Info("plugin initialized", zap.String("name", name))
	}
	return nil
}

// StartAll starts active plugins in dependency order.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.bootOrder {
		if r.off[name] {
			continue
		}
		p := r.impls[name]
		if err := safeCall("Start", func() error { return p.Start(ctx) }); err != nil {
			if r.meta[name].Required {
				return fmt.Errorf("cannot start required plugin %q: %w", name, err)
			}
			r.disable(name, "plugin disabled: start failed", err)
			continue
		}
		r.logger.Info("plugin started", zap.String("name", name))
	}
	return nil
}

// StopAll stops active plugins in reverse start order so no plugin outlives
// its dependents. Bus subscriptions are removed before Stop runs. Errors are
// logged and do not block the remaining plugins.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range slices.Backward(r.bootOrder) {
		if r.off[name] {
			continue
		}
		for _, unsub := range r.unsubs[name] {
			unsub()
		}
		p := r.impls[name]
		if err := safeCall("Stop", func() error { return p.Stop(ctx) }); err != nil {
			r.logger.Error("plugin stop failed", zap.String("name", name), zap.Error(err))
			continue
		}
		r.logger.Info("plugin stopped", zap.String("name", name))
	}
}

// safeCall runs a lifecycle hook and converts a panic into an error so one
// misbehaving plugin cannot take down the host process.
func safeCall(phase string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("plugin panicked in %s: %v", phase, p)
		}
	}()
	return fn()
}

func checkAPIVersion(info plugin.PluginInfo) error {
	switch {
	case info.APIVersion > plugin.APIVersionCurrent:
		return fmt.Errorf("plugin %q targets API version %d, host supports up to %d",
			info.Name, info.APIVersion, plugin.APIVersionCurrent)
	case info.APIVersion < plugin.APIVersionMin:
		return fmt.Errorf("plugin %q targets API version %d, host requires at least %d",
			info.Name, info.APIVersion, plugin.APIVersionMin)
	}
	return nil
}

// startOrder orders plugins so every dependency comes before its dependents.
// Ties break alphabetically to keep boot order reproducible across runs.
// Edges to unregistered plugins are skipped; Validate has already disabled
// or rejected the plugins that declared them.
func (r *Registry) startOrder() ([]string, error) {
	unmet := make(map[string]int, len(r.impls))
	rdeps := make(map[string][]string, len(r.impls))
	for name := range r.impls {
		unmet[name] = 0
	}
	for name, info := range r.meta {
		for _, dep := range info.Dependencies {
			if _, found := r.impls[dep]; !found {
				continue
			}
			unmet[name]++
			rdeps[dep] = append(rdeps[dep], name)
		}
	}

	var ready []string
	for name, deg := range unmet {
		if deg == 0 {
			ready = append(ready, name)
		}
	}

	out := make([]string, 0, len(r.impls))
	for len(ready) > 0 {
		sort.Strings(ready)
		name := ready[0]
		ready = ready[1:]
		out = append(out, name)

		for _, d := range rdeps[name] {
			unmet[d]--
			if unmet[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(out) != len(r.impls) {
		var stuck []string
		for name, deg := range unmet {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("plugin dependency cycle: %v", stuck)
	}
	return out, nil
}
