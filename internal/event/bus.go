// Package event carries telemetry and lifecycle notifications between
// HashFleet modules over an in-memory bus.
package event

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/hashfleet/hashfleet/pkg/plugin"
)

var _ plugin.EventBus = (*Bus)(nil)

// Bus implements plugin.EventBus in memory. Publish runs handlers in
// the caller's goroutine, PublishAsync in their own. A handler panic is
// logged and contained so one listener cannot take down a publisher.
type Bus struct {
	mu       sync.RWMutex
	byTopic  map[string][]subscription
	wildcard []subscription // listeners on every topic
	nextID   uint64
	logger   *zap.Logger
}

type subscription struct {
	id      uint64
	handler plugin.EventHandler
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		byTopic: make(map[string][]subscription),
		logger:  logger,
	}
}

// snapshot copies the handlers interested in topic so dispatch happens
// outside the lock. Wildcard listeners come after topic listeners.
func (b *Bus) snapshot(topic string) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := make([]subscription, 0, len(b.byTopic[topic])+len(b.wildcard))
	subs = append(subs, b.byTopic[topic]...)
	subs = append(subs, b.wildcard...)
	return subs
}

// Publish delivers the event to every matching handler before returning.
func (b *Bus) Publish(ctx context.Context, event plugin.Event) error {
	for _, sub := range b.snapshot(event.Topic) {
		b.dispatch(ctx, sub.handler, event)
	}
	return nil
}

// PublishAsync delivers the event without waiting for handlers.
func (b *Bus) PublishAsync(ctx context.Context, event plugin.Event) {
	for _, sub := range b.snapshot(event.Topic) {
		go b.dispatch(ctx, sub.handler, event)
	}
}

// Subscribe registers a handler for one topic and returns its
// unsubscribe function.
func (b *Bus) Subscribe(topic string, handler plugin.EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.byTopic[topic] = append(b.byTopic[topic], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.byTopic[topic] = removeSub(b.byTopic[topic], id)
	}
}

// SubscribeAll registers a handler for every topic and returns its
// unsubscribe function.
func (b *Bus) SubscribeAll(handler plugin.EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.wildcard = append(b.wildcard, subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.wildcard = removeSub(b.wildcard, id)
	}
}

func removeSub(subs []subscription, id uint64) []subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}

func (b *Bus) dispatch(ctx context.Context, handler plugin.EventHandler, event plugin.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", event.Topic),
				zap.String("source", event.Source),
				zap.Any("panic", r),
			)
		}
	}()
	handler(ctx, event)
}
