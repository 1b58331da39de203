package service

import (
	"context"

	"github.com/flexprice/planshift/internal/domain/subscription"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/types"
)

// SubscriptionService is the read path for provider subscriptions
type SubscriptionService interface {
	// GetFresh always asks the provider. Every mutation path reads through this.
	GetFresh(ctx context.Context, subscriptionRef string) (*subscription.Subscription, error)
	// GetForCustomer is the read-through path used for display
	GetForCustomer(ctx context.Context, customerRef, subscriptionRef string) (*subscription.Subscription, error)
	StrategyFor(sub *subscription.Subscription) types.CacheStrategy
}

type subscriptionService struct {
	ServiceParams
}

func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{ServiceParams: params}
}

func (s *subscriptionService) GetFresh(ctx context.Context, subscriptionRef string) (*subscription.Subscription, error) {
	if subscriptionRef == "" {
		return nil, ierr.NewError("subscription reference is required").
			WithHint("No active subscription").
			Mark(ierr.ErrNotFound)
	}
	return s.Provider.RetrieveSubscription(ctx, subscriptionRef)
}

func (s *subscriptionService) GetForCustomer(ctx context.Context, customerRef, subscriptionRef string) (*subscription.Subscription, error) {
	if customerRef == "" {
		return nil, ierr.NewError("customer reference is required").
			WithHint("No billing account found").
			Mark(ierr.ErrNotFound)
	}

	if sub, ok := s.Cache.Get(ctx, customerRef); ok {
		return sub, nil
	}

	var (
		sub *subscription.Subscription
		err error
	)
	if subscriptionRef != "" {
		sub, err = s.Provider.RetrieveSubscription(ctx, subscriptionRef)
	} else {
		sub, err = s.firstActive(ctx, customerRef)
	}
	if err != nil {
		return nil, err
	}

	strategy := s.StrategyFor(sub)
	if err := s.Cache.Set(ctx, customerRef, sub, strategy); err != nil {
		s.Logger.Warnw("failed to cache subscription",
			"customer_ref", customerRef,
			"subscription_ref", sub.ID,
			"error", err,
		)
	}
	return sub, nil
}

func (s *subscriptionService) firstActive(ctx context.Context, customerRef string) (*subscription.Subscription, error) {
	subs, err := s.Provider.ListActiveSubscriptions(ctx, customerRef)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, ierr.NewError("no active subscription").
			WithHint("No active subscription").
			WithReportableDetails(map[string]any{"customer_ref": customerRef}).
			Mark(ierr.ErrNotFound)
	}
	return subs[0], nil
}

// StrategyFor picks the short window while a payment outcome can still flip the status
func (s *subscriptionService) StrategyFor(sub *subscription.Subscription) types.CacheStrategy {
	if sub != nil && sub.Status.IsPaymentSensitive() {
		return types.CacheStrategyShort
	}
	return types.CacheStrategyDaily
}
