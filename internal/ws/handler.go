package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/driftwatch/driftwatch/internal/auth"
	"github.com/driftwatch/driftwatch/internal/detect"
	"github.com/driftwatch/driftwatch/internal/source"
	"github.com/driftwatch/driftwatch/pkg/plugin"
	"github.com/driftwatch/driftwatch/pkg/stream"
)

// Handler owns the WebSocket endpoint for the live stream feed.
type Handler struct {
	hub    *Hub
	tokens *auth.TokenService
	events plugin.EventBus
	logger *zap.Logger
}

// Handler must satisfy the server's registrar interface without importing it.
var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler creates a WebSocket handler and subscribes it to the stream
// topics it relays. A nil bus is allowed; connections then see no traffic.
func NewHandler(tokens *auth.TokenService, bus plugin.EventBus, logger *zap.Logger) *Handler {
	h := &Handler{hub: NewHub(logger), tokens: tokens, events: bus, logger: logger}
	h.subscribe()
	return h
}

// RegisterRoutes mounts the feed endpoint on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws/stream", h.handleStreamFeed)
}

// queryClaims validates the ?token= JWT and answers 401 itself on failure.
// The token rides the query string because the browser WebSocket API cannot
// set headers.
func (h *Handler) queryClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		http.Error(w, "token query parameter required", http.StatusUnauthorized)
		return nil, false
	}
	claims, err := h.tokens.ValidateAccessToken(raw)
	if err != nil {
		http.Error(w, "token invalid or expired", http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

// handleStreamFeed upgrades the connection and streams classified readings,
// anomalies, and alert transitions until the client goes away.
func (h *Handler) handleStreamFeed(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.queryClaims(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origin checks add nothing here: the JWT already gates access.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	c := newClient(conn, claims.UserID, h.logger)
	h.hub.Register(c)

	ctx := r.Context()
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		c.writePump(ctx)
	}()

	// Blocks until the peer disconnects.
	c.readPump(ctx)

	h.hub.Unregister(c)
	conn.Close(websocket.StatusNormalClosure, "")
	<-writeDone
}

// subscribe wires the bus topics into hub broadcasts.
func (h *Handler) subscribe() {
	if h.events == nil {
		return
	}

	h.events.Subscribe(detect.TopicSampleClassified, relay(h, readingMessage))
	h.events.Subscribe(detect.TopicAnomalyDetected, relay(h, anomalyMessage))
	h.events.Subscribe(detect.TopicAlertRaised, relay(h, alertMessage(MessageAlertRaised)))
	h.events.Subscribe(detect.TopicAlertResolved, relay(h, alertMessage(MessageAlertResolved)))
	h.events.Subscribe(source.TopicStreamRemoved, relay(h, removalMessage))

	h.logger.Info("ws feed subscribed to stream topics")
}

// relay adapts a typed message builder to a bus handler. Events carrying a
// payload of the wrong type are dropped silently.
func relay[P any](h *Handler, build func(P, time.Time) Message) plugin.EventHandler {
	return func(_ context.Context, event plugin.Event) {
		if p, ok := event.Payload.(P); ok {
			h.hub.Broadcast(build(p, event.Timestamp))
		}
	}
}

func readingMessage(r stream.Reading, ts time.Time) Message {
	return Message{
		Type:      MessageReading,
		StreamID:  r.StreamID,
		Timestamp: ts,
		Data: ReadingData{
			Index:     r.Index,
			Value:     r.Value,
			IsAnomaly: r.IsAnomaly,
			Baseline:  r.Baseline,
			Spread:    r.Spread,
			ZScore:    r.ZScore,
		},
	}
}

func anomalyMessage(a *stream.Anomaly, ts time.Time) Message {
	return Message{
		Type:      MessageAnomaly,
		StreamID:  a.StreamID,
		Timestamp: ts,
		Data:      AnomalyData{Anomaly: a},
	}
}

// alertMessage builds for both transitions; raised and resolved differ only
// in the message type label.
func alertMessage(msgType MessageType) func(*stream.Alert, time.Time) Message {
	return func(a *stream.Alert, ts time.Time) Message {
		return Message{
			Type:      msgType,
			StreamID:  a.StreamID,
			Timestamp: ts,
			Data:      AlertData{Alert: a},
		}
	}
}

func removalMessage(info stream.StreamInfo, ts time.Time) Message {
	return Message{
		Type:      MessageStreamRemoved,
		StreamID:  info.ID,
		Timestamp: ts,
		Data:      StreamRemovedData{Name: info.Name, Kind: info.Kind},
	}
}
