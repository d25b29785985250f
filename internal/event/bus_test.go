package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hashfleet/hashfleet/pkg/plugin"
)

func batchEvent() plugin.Event {
	return plugin.Event{
		Topic:     "telemetry.batch.received",
		Source:    "telemetry",
		Timestamp: time.Now(),
		Payload:   map[string]int{"devices": 12},
	}
}

func TestPublish_DeliversToTopicAndWildcard(t *testing.T) {
	b := NewBus(zap.NewNop())
	ctx := context.Background()

	var topicHits, wildcardHits int
	b.Subscribe("telemetry.batch.received", func(ctx context.Context, e plugin.Event) {
		topicHits++
	})
	b.Subscribe("telemetry.store.cleared", func(ctx context.Context, e plugin.Event) {
		t.Error("handler on another topic must not fire")
	})
	b.SubscribeAll(func(ctx context.Context, e plugin.Event) {
		wildcardHits++
	})

	if err := b.Publish(ctx, batchEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if topicHits != 1 || wildcardHits != 1 {
		t.Fatalf("topic=%d wildcard=%d, want 1 each", topicHits, wildcardHits)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus(zap.NewNop())
	ctx := context.Background()

	hits := 0
	unsub := b.Subscribe("telemetry.batch.received", func(ctx context.Context, e plugin.Event) {
		hits++
	})

	b.Publish(ctx, batchEvent())
	unsub()
	b.Publish(ctx, batchEvent())

	if hits != 1 {
		t.Fatalf("handler fired %d times, want 1", hits)
	}
}

func TestPublish_ContainsHandlerPanic(t *testing.T) {
	b := NewBus(zap.NewNop())
	ctx := context.Background()

	reached := false
	b.Subscribe("telemetry.batch.received", func(ctx context.Context, e plugin.Event) {
		panic("stale snapshot")
	})
	b.Subscribe("telemetry.batch.received", func(ctx context.Context, e plugin.Event) {
		reached = true
	})

	if err := b.Publish(ctx, batchEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !reached {
		t.Fatal("second handler should run despite the first one panicking")
	}
}

func TestPublishAsync_DeliversEventually(t *testing.T) {
	b := NewBus(zap.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	b.Subscribe("telemetry.batch.received", func(ctx context.Context, e plugin.Event) {
		wg.Done()
	})
	b.SubscribeAll(func(ctx context.Context, e plugin.Event) {
		wg.Done()
	})

	b.PublishAsync(ctx, batchEvent())

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handlers did not run")
	}
}
