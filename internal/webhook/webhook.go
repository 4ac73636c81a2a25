// Package webhook implements the notifier plugin: anomaly and alert events
// are forwarded as JSON POST requests to a configured HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/driftwatch/driftwatch/internal/detect"
	"github.com/driftwatch/driftwatch/pkg/plugin"
	"github.com/driftwatch/driftwatch/pkg/roles"
)

// userAgent identifies driftwatch deliveries to receiving endpoints.
const userAgent = "driftwatch-webhook/0.1"

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ roles.Notifier         = (*Module)(nil)
)

// Config controls where deliveries go and whether they happen at all.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	Enabled  bool
}

// loadConfig reads the plugin's config section, falling back to defaults
// for anything unset.
func loadConfig(cfg plugin.Config) Config {
	out := Config{Timeout: 10 * time.Second, Enabled: true}
	if cfg == nil {
		return out
	}
	if u := cfg.GetString("url"); u != "" {
		out.Endpoint = u
	}
	if d := cfg.GetDuration("timeout"); d > 0 {
		out.Timeout = d
	}
	if cfg.IsSet("enabled") {
		out.Enabled = cfg.GetBool("enabled")
	}
	return out
}

// Module implements the webhook notifier plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config
	hc     *http.Client
}

// New creates a new webhook plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "webhook",
		Version:     "0.1.0",
		Description: "Sends HTTP POST notifications to a configured webhook URL on anomaly and alert events",
		Roles:       []string{roles.RoleNotifier},
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.cfg = loadConfig(deps.Config)
	m.hc = &http.Client{Timeout: m.cfg.Timeout}

	if m.cfg.Endpoint == "" {
		m.logger.Warn("no webhook URL configured, deliveries will be dropped")
	}
	m.logger.Info("webhook module initialized", zap.String("url", m.cfg.Endpoint),
		zap.Duration("timeout", m.cfg.Timeout), zap.Bool("enabled", m.cfg.Enabled))
	return nil
}

func (m *Module) Start(_ context.Context) error {
	m.logger.Info("webhook module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("webhook module stopped")
	return nil
}

// Subscriptions declares the forwarded topics.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: detect.TopicAnomalyDetected, Handler: m.onEvent},
		{Topic: detect.TopicAlertRaised, Handler: m.onEvent},
	}
}

// Payload is the JSON body sent to the webhook URL.
type Payload struct {
	Event     string `json:"event"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

func newPayload(topic, source string, ts time.Time, data any) Payload {
	return Payload{
		Event:     topic,
		Source:    source,
		Timestamp: ts.UTC().Format(time.RFC3339),
		Data:      data,
	}
}

// muted reports whether deliveries are switched off, either explicitly or
// because no URL is configured.
func (m *Module) muted() bool {
	return !m.cfg.Enabled || m.cfg.Endpoint == ""
}

// onEvent forwards one bus event to the configured endpoint. Failures are
// logged, not propagated: the bus does not retry, and a down receiver must
// not stall the pipeline.
func (m *Module) onEvent(ctx context.Context, event plugin.Event) {
	if m.muted() {
		return
	}
	if err := m.post(ctx, newPayload(event.Topic, event.Source, event.Timestamp, event.Payload)); err != nil {
		m.logger.Warn("webhook delivery failed", zap.String("url", m.cfg.Endpoint),
			zap.String("topic", event.Topic), zap.Error(err))
	}
}

// Notify implements roles.Notifier: a one-off delivery to the configured
// URL, independent of the bus subscriptions.
func (m *Module) Notify(ctx context.Context, topic string, payload any) error {
	if m.muted() {
		return nil
	}
	return m.post(ctx, newPayload(topic, "webhook", time.Now(), payload))
}

func (m *Module) post(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := m.hc.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the keep-alive connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}

	m.logger.Debug("webhook delivered", zap.String("topic", p.Event),
		zap.Int("status_code", resp.StatusCode))
	return nil
}
