package plugin

import (
	"context"
	"net/http"
)

// Optional capabilities. The host discovers each one with a type
// assertion on the plugin value, so implementing the interface is the
// whole opt-in.

// HTTPProvider is implemented by plugins that serve HTTP. The server
// reads Routes once while building its mux and mounts each one under
// the plugin's prefix.
type HTTPProvider interface {
	Routes() []Route
}

// Route is one endpoint contributed by a plugin. A Path of "/streams"
// on the source plugin ends up served at /api/v1/source/streams.
type Route struct {
	Method  string // "GET", "POST", ...
	Path    string // Starts with "/", relative to the plugin prefix.
	Handler http.HandlerFunc
}

// HealthChecker is implemented by plugins that can report more than
// "process is running".
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// HealthStatus is one plugin's self-reported condition.
type HealthStatus struct {
	Status  string            `json:"status"`            // "healthy", "degraded" or "unhealthy".
	Message string            `json:"message,omitempty"` // Short explanation when not healthy.
	Details map[string]string `json:"details,omitempty"` // Free-form diagnostics.
}

// Validator is implemented by plugins that can sanity-check their
// configuration. The registry calls ValidateConfig directly after a
// successful Init and treats an error like an init failure.
type Validator interface {
	ValidateConfig() error
}

// EventSubscriber is implemented by plugins that consume bus events.
// The registry attaches the declared subscriptions once Init succeeds
// and detaches them again when the plugin stops.
type EventSubscriber interface {
	Subscriptions() []Subscription
}

// Subscription pairs a topic with the handler to attach to it.
type Subscription struct {
	Topic   string
	Handler EventHandler
}
