package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flexprice/planshift/internal/config"
	"github.com/flexprice/planshift/internal/domain/subscription"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/logger"
	"github.com/flexprice/planshift/internal/types"
)

// SubscriptionCache is a read replica of provider subscriptions keyed by customer.
// An expired entry is never returned; Get deletes it and reports a miss.
type SubscriptionCache interface {
	Get(ctx context.Context, customerRef string) (*subscription.Subscription, bool)
	Set(ctx context.Context, customerRef string, sub *subscription.Subscription, strategy types.CacheStrategy) error
	Invalidate(ctx context.Context, customerRef string) error
}

// Entry is the stored form of a cached subscription. Entries are always replaced whole.
type Entry struct {
	Data      *subscription.Subscription `json:"data"`
	FetchedAt time.Time                  `json:"fetched_at"`
	Strategy  types.CacheStrategy        `json:"strategy"`
}

type subscriptionCache struct {
	store     Cache
	clock     types.Clock
	resetHour int
	shortTTL  time.Duration
	log       *logger.Logger
}

// SubscriptionCacheParams configures NewSubscriptionCache
type SubscriptionCacheParams struct {
	Store          Cache
	Clock          types.Clock
	DailyResetHour int
	ShortTTL       time.Duration
	Logger         *logger.Logger
}

func NewSubscriptionCache(p SubscriptionCacheParams) SubscriptionCache {
	clock := p.Clock
	if clock == nil {
		clock = types.NewSystemClock()
	}
	return &subscriptionCache{
		store:     p.Store,
		clock:     clock,
		resetHour: p.DailyResetHour,
		shortTTL:  p.ShortTTL,
		log:       p.Logger,
	}
}

// NewSubscriptionCacheFromConfig wires the cache from configuration
func NewSubscriptionCacheFromConfig(store Cache, clock types.Clock, cfg *config.Configuration, log *logger.Logger) SubscriptionCache {
	return NewSubscriptionCache(SubscriptionCacheParams{
		Store:          store,
		Clock:          clock,
		DailyResetHour: cfg.Cache.DailyResetHour,
		ShortTTL:       cfg.Cache.ShortTTL,
		Logger:         log,
	})
}

// ExpiresAt returns the instant an entry stops being valid
func (c *subscriptionCache) ExpiresAt(e Entry) time.Time {
	switch e.Strategy {
	case types.CacheStrategyShort:
		return e.FetchedAt.Add(c.shortTTL)
	default:
		return types.NextDailyBoundary(e.FetchedAt, c.resetHour)
	}
}

func (c *subscriptionCache) Get(ctx context.Context, customerRef string) (*subscription.Subscription, bool) {
	span := StartCacheSpan(ctx, "subscription", "get", map[string]interface{}{"customer_ref": customerRef})
	defer FinishSpan(span)

	key := GenerateKey(PrefixSubscription, customerRef)
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		SetSpanError(span, err)
		c.log.Warnw("subscription cache read failed", "customer_ref", customerRef, "error", err)
		return nil, false
	}
	if !ok {
		SetSpanSuccess(span)
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.Data == nil {
		c.log.Warnw("dropping undecodable subscription cache entry", "customer_ref", customerRef, "error", err)
		c.drop(ctx, key)
		return nil, false
	}

	if !c.clock.Now().Before(c.ExpiresAt(entry)) {
		c.drop(ctx, key)
		SetSpanSuccess(span)
		return nil, false
	}

	SetSpanSuccess(span)
	return entry.Data, true
}

func (c *subscriptionCache) Set(ctx context.Context, customerRef string, sub *subscription.Subscription, strategy types.CacheStrategy) error {
	if err := strategy.Validate(); err != nil {
		return err
	}
	if sub == nil {
		return ierr.NewError("nil subscription").
			WithHint("Cannot cache an empty subscription").
			Mark(ierr.ErrValidation)
	}

	span := StartCacheSpan(ctx, "subscription", "set", map[string]interface{}{
		"customer_ref": customerRef,
		"strategy":     strategy,
	})
	defer FinishSpan(span)

	now := c.clock.Now().UTC()
	entry := Entry{Data: sub, FetchedAt: now, Strategy: strategy}
	raw, err := json.Marshal(entry)
	if err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Could not encode subscription for cache").
			Mark(ierr.ErrSystem)
	}

	ttl := c.ExpiresAt(entry).Sub(now)
	if err := c.store.Set(ctx, GenerateKey(PrefixSubscription, customerRef), raw, ttl); err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Could not write subscription cache").
			Mark(ierr.ErrSystem)
	}
	SetSpanSuccess(span)
	return nil
}

func (c *subscriptionCache) Invalidate(ctx context.Context, customerRef string) error {
	span := StartCacheSpan(ctx, "subscription", "invalidate", map[string]interface{}{"customer_ref": customerRef})
	defer FinishSpan(span)

	if err := c.store.Delete(ctx, GenerateKey(PrefixSubscription, customerRef)); err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Could not invalidate subscription cache").
			Mark(ierr.ErrSystem)
	}
	SetSpanSuccess(span)
	return nil
}

func (c *subscriptionCache) drop(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.log.Warnw("failed to delete expired cache entry", "key", key, "error", err)
	}
}
