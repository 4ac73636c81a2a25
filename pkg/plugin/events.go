package plugin

import (
	"context"
	"time"
)

// Event is one message on the bus.
type Event struct {
	Topic     string    // Routing key, e.g. "detect.anomaly.detected".
	Source    string    // Name of the publishing plugin.
	Timestamp time.Time // Set by the publisher.
	Payload   any       // Topic-specific body; subscribers type-assert.
}

// EventHandler consumes one event. The bus recovers and logs panics in
// handlers, so a misbehaving subscriber cannot take down a publisher.
type EventHandler func(ctx context.Context, event Event)

// Publisher is the emitting half of the bus. Code that only produces
// events should accept this instead of the full EventBus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber is the consuming half of the bus. The returned function
// removes the subscription; calling it twice is harmless.
type Subscriber interface {
	Subscribe(topic string, handler EventHandler) (unsubscribe func())
}

// EventBus is the full bus contract plugins receive through
// Dependencies. Publish runs handlers synchronously, PublishAsync
// returns before they run, and SubscribeAll sees every topic.
type EventBus interface {
	Publisher
	Subscriber
	PublishAsync(ctx context.Context, event Event)
	SubscribeAll(handler EventHandler) (unsubscribe func())
}
