// Package roles defines typed contracts for plugin roles.
// Plugins that fill a role (declared via PluginInfo.Roles) should implement
// the corresponding interface so callers can use type-safe access via
// PluginResolver.ResolveByRole followed by a type assertion.
//
// This package is Apache 2.0 licensed, part of the public plugin SDK.
package roles

import (
	"context"

	"github.com/driftwatch/driftwatch/pkg/stream"
)

// Role name constants match the strings used in PluginInfo.Roles.
const (
	RoleProducer = "producer"
	RoleDetector = "detector"
	RoleNotifier = "notifier"
	RoleRenderer = "renderer"
)

// StreamProvider is implemented by plugins that own the stream registry and
// produce samples. Resolve via PluginResolver.ResolveByRole(RoleProducer)
// then type-assert.
type StreamProvider interface {
	// Streams returns all registered streams.
	Streams(ctx context.Context) ([]stream.StreamInfo, error)

	// StreamByID returns a single stream by its ID.
	StreamByID(ctx context.Context, id string) (*stream.StreamInfo, error)
}

// DetectionProvider is implemented by plugins that classify samples and
// record anomalies. Resolve via PluginResolver.ResolveByRole(RoleDetector)
// then type-assert.
type DetectionProvider interface {
	// Anomalies returns recorded anomalies, newest first. Pass an empty
	// streamID to list across all streams.
	Anomalies(ctx context.Context, streamID string) ([]stream.Anomaly, error)

	// Baselines returns the current baseline estimates for a stream.
	Baselines(ctx context.Context, streamID string) ([]stream.Baseline, error)

	// Alerts returns alerts, newest first. Pass an empty state to list all.
	Alerts(ctx context.Context, state string) ([]stream.Alert, error)
}

// Notifier is implemented by plugins that deliver events to external
// endpoints (webhooks, chat, email).
type Notifier interface {
	// Notify delivers one event payload to the plugin's configured targets.
	Notify(ctx context.Context, topic string, payload any) error
}
