package testutil

import (
	"context"
	"sync"

	"github.com/flexprice/planshift/internal/cache"
)

// RecordingCache wraps a SubscriptionCache and records invalidations
type RecordingCache struct {
	cache.SubscriptionCache

	mu            sync.Mutex
	invalidations []string
	// canceled counts invalidations attempted with an already canceled context
	canceled int
	// InvalidateErr, when set, is returned and the wrapped cache is left untouched
	InvalidateErr error
}

var _ cache.SubscriptionCache = (*RecordingCache)(nil)

func NewRecordingCache(inner cache.SubscriptionCache) *RecordingCache {
	return &RecordingCache{SubscriptionCache: inner}
}

func (c *RecordingCache) Invalidate(ctx context.Context, customerRef string) error {
	c.mu.Lock()
	c.invalidations = append(c.invalidations, customerRef)
	if ctx.Err() != nil {
		c.canceled++
	}
	failWith := c.InvalidateErr
	c.mu.Unlock()

	if failWith != nil {
		return failWith
	}
	return c.SubscriptionCache.Invalidate(ctx, customerRef)
}

func (c *RecordingCache) Invalidations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.invalidations))
	copy(out, c.invalidations)
	return out
}

func (c *RecordingCache) CanceledInvalidations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canceled
}
