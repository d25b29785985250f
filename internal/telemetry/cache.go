package telemetry

import (
	"sync"
	"time"

	"github.com/hashfleet/hashfleet/pkg/models"
)

// SnapshotCache holds the last received payload batch and a bounded list of
// recent batches, newest last. The core parser reads from it; eviction is
// handled here, not by callers. Safe for concurrent use -- ingestion is
// plain HTTP handler traffic.
type SnapshotCache struct {
	mu        sync.RWMutex
	batches   [][]models.RawTelemetry
	cap       int
	updatedAt time.Time
}

// NewSnapshotCache creates a cache bounded to cap batches. A cap below one
// is treated as one: the cache always retains at least the latest payload.
func NewSnapshotCache(cap int) *SnapshotCache {
	if cap < 1 {
		cap = 1
	}
	return &SnapshotCache{cap: cap}
}

// Put appends a batch received at the given time, evicting the oldest past
// the cap.
func (c *SnapshotCache) Put(batch []models.RawTelemetry, receivedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, batch)
	if len(c.batches) > c.cap {
		c.batches = c.batches[len(c.batches)-c.cap:]
	}
	c.updatedAt = receivedAt
}

// Last returns the most recent batch, or nil if none was received.
func (c *SnapshotCache) Last() []models.RawTelemetry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.batches) == 0 {
		return nil
	}
	return c.batches[len(c.batches)-1]
}

// Flatten returns all cached records in arrival order, oldest first. With
// the dedup rule (last occurrence wins) this yields the newest record per
// device across the retained batches.
func (c *SnapshotCache) Flatten() []models.RawTelemetry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var n int
	for _, b := range c.batches {
		n += len(b)
	}
	out := make([]models.RawTelemetry, 0, n)
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

// UpdatedAt returns when the cache last changed; zero time if never.
func (c *SnapshotCache) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Len returns the number of retained batches.
func (c *SnapshotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.batches)
}

// Clear drops all cached batches and stamps the change.
func (c *SnapshotCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = nil
	c.updatedAt = time.Now()
}
