// Package plugin is the contract between the driftwatch host and its
// modules. A module implements Plugin, opts into extras such as
// HTTPProvider or EventSubscriber by implementing them, and receives
// host services through Dependencies when Init runs. Out-of-tree
// plugins may import anything under pkg/; internal packages are not
// part of the contract.
package plugin

import (
	"context"

	"go.uber.org/zap"
)

// The plugin API is versioned so externally built plugins can declare
// which host contract they target. Validation rejects plugins outside
// the window: a required plugin aborts startup, an optional one is
// disabled.
const (
	// APIVersionMin is the oldest plugin API version the host accepts.
	APIVersionMin = 1

	// APIVersionCurrent is the version this SDK describes.
	APIVersionCurrent = 1
)

// Plugin is the lifecycle every driftwatch module implements. The
// registry drives the phases in dependency order: Init for every
// enabled plugin, then Start, and Stop in reverse order on shutdown.
type Plugin interface {
	// Info describes the plugin. It is read before Init and must
	// return the same value on every call.
	Info() PluginInfo

	// Init prepares the plugin: read config, run migrations, wire
	// collaborators. No background work may start here.
	Init(ctx context.Context, deps Dependencies) error

	// Start launches the plugin's background loops, if any.
	Start(ctx context.Context) error

	// Stop halts background work and releases resources.
	Stop(ctx context.Context) error
}

// PluginInfo is the static metadata a plugin reports through Info.
type PluginInfo struct {
	Name         string   // Registry key, unique across the process, e.g. "detect".
	Version      string   // Plugin's own semantic version.
	Description  string   // One-liner surfaced by GET /api/v1/plugins.
	Dependencies []string // Plugins that must initialize before this one.
	Required     bool     // Abort startup if this plugin fails any phase.
	Roles        []string // Role names from pkg/roles this plugin fills.
	APIVersion   int      // Plugin API version the plugin was built against.
}

// Dependencies carries the host services handed to Init. Each field is
// already scoped to the receiving plugin: Config is the plugin's own
// section, Logger is named after it, and Store migrations run under
// its name.
type Dependencies struct {
	Config  Config         // The plugin's slice of the server config.
	Logger  *zap.Logger    // Named logger.
	Store   Store          // Shared database plus migration runner.
	Bus     EventBus       // Inter-plugin publish/subscribe.
	Plugins PluginResolver // Lookup of sibling plugins by name or role.
}

// PluginResolver finds sibling plugins at runtime. Both methods see
// only plugins that registered successfully and are not disabled.
type PluginResolver interface {
	Resolve(name string) (Plugin, bool)
	ResolveByRole(role string) []Plugin
}
