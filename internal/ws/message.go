package ws

import (
	"time"

	"github.com/driftwatch/driftwatch/pkg/stream"
)

// MessageType discriminates WebSocket messages.
type MessageType string

const (
	MessageReading       MessageType = "stream.reading"
	MessageAnomaly       MessageType = "stream.anomaly"
	MessageAlertRaised   MessageType = "stream.alert_raised"
	MessageAlertResolved MessageType = "stream.alert_resolved"
	MessageStreamRemoved MessageType = "stream.removed"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      MessageType `json:"type"`
	StreamID  string      `json:"stream_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// ReadingData is the payload for stream.reading messages: one classified
// sample in production order.
type ReadingData struct {
	Index     uint64  `json:"index"`
	Value     float64 `json:"value"`
	IsAnomaly bool    `json:"is_anomaly"`
	Baseline  float64 `json:"baseline"`
	Spread    float64 `json:"spread"`
	ZScore    float64 `json:"z_score"`
}

// AnomalyData is the payload for stream.anomaly messages.
type AnomalyData struct {
	Anomaly *stream.Anomaly `json:"anomaly"`
}

// AlertData is the payload for stream.alert_raised and stream.alert_resolved
// messages.
type AlertData struct {
	Alert *stream.Alert `json:"alert"`
}

// StreamRemovedData is the payload for stream.removed messages.
type StreamRemovedData struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}
