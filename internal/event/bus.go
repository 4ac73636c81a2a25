// Package event provides the in-memory implementation of plugin.EventBus
// that carries samples, classifications, and alerts between driftwatch
// plugins inside one process.
package event

import (
	"context"
	"slices"
	"sync"

	"github.com/driftwatch/driftwatch/pkg/plugin"
	"go.uber.org/zap"
)

// wildcardTopic is the internal subscription key for SubscribeAll handlers.
const wildcardTopic = "*"

// Compile-time interface guard.
var _ plugin.EventBus = (*Bus)(nil)

// Bus is an in-memory event bus implementing plugin.EventBus. Publish runs
// handlers synchronously in the caller's goroutine, which preserves
// per-stream sample ordering through the pipeline; PublishAsync hands each
// handler its own goroutine.
type Bus struct {
	mu      sync.RWMutex
	lastID  uint64
	byTopic map[string][]entry // topic (or "*") -> handlers
	logger  *zap.Logger
}

// entry pairs a handler with the token its unsubscribe closure removes.
type entry struct {
	id uint64
	fn plugin.EventHandler
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		byTopic: make(map[string][]entry),
		logger:  logger,
	}
}

// Subscribe registers a handler for one topic. The returned function
// removes the subscription.
func (b *Bus) Subscribe(topic string, handler plugin.EventHandler) (unsubscribe func()) {
	return b.add(topic, handler)
}

// SubscribeAll registers a handler for every topic. The returned function
// removes the subscription.
func (b *Bus) SubscribeAll(handler plugin.EventHandler) (unsubscribe func()) {
	return b.add(wildcardTopic, handler)
}

func (b *Bus) add(topic string, fn plugin.EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastID++
	id := b.lastID
	b.byTopic[topic] = append(b.byTopic[topic], entry{id: id, fn: fn})
	return func() { b.remove(topic, id) }
}

func (b *Bus) remove(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byTopic[topic] = slices.DeleteFunc(b.byTopic[topic], func(e entry) bool {
		return e.id == id
	})
}

// Publish dispatches an event synchronously: topic handlers first, then
// wildcard handlers, each in subscription order.
func (b *Bus) Publish(ctx context.Context, event plugin.Event) error {
	for _, fn := range b.collect(event.Topic) {
		b.dispatch(ctx, fn, event)
	}
	return nil
}

// PublishAsync dispatches each matching handler in its own goroutine.
// Ordering across events is not guaranteed; sample delivery uses Publish.
func (b *Bus) PublishAsync(ctx context.Context, event plugin.Event) {
	for _, fn := range b.collect(event.Topic) {
		go b.dispatch(ctx, fn, event)
	}
}

// collect snapshots the matching handlers under the read lock so dispatch
// runs without holding it (handlers may subscribe or unsubscribe
// reentrantly).
func (b *Bus) collect(topic string) []plugin.EventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	matched := b.byTopic[topic]
	wild := b.byTopic[wildcardTopic]
	out := make([]plugin.EventHandler, 0, len(matched)+len(wild))
	for _, e := range matched {
		out = append(out, e.fn)
	}
	for _, e := range wild {
		out = append(out, e.fn)
	}
	return out
}

// dispatch runs one handler, containing panics so a broken subscriber
// cannot take down the publisher.
func (b *Bus) dispatch(ctx context.Context, fn plugin.EventHandler, event plugin.Event) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		b.logger.Error("event handler panicked",
			zap.String("topic", event.Topic), zap.String("source", event.Source),
			zap.Any("panic", p))
	}()
	fn(ctx, event)
}
