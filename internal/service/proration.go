package service

import (
	"context"

	"github.com/flexprice/planshift/internal/domain/proration"
	"github.com/flexprice/planshift/internal/domain/subscription"
	ierr "github.com/flexprice/planshift/internal/errors"
)

// ProrationService answers "what would this swap cost now" without touching the subscription
type ProrationService interface {
	PreviewUpgrade(ctx context.Context, subscriptionRef, newPriceRef string) (*proration.Preview, error)
	PreviewForSubscription(ctx context.Context, sub *subscription.Subscription, newPriceRef string) (*proration.Preview, error)
}

type prorationService struct {
	ServiceParams
}

func NewProrationService(params ServiceParams) ProrationService {
	return &prorationService{ServiceParams: params}
}

func (s *prorationService) PreviewUpgrade(ctx context.Context, subscriptionRef, newPriceRef string) (*proration.Preview, error) {
	sub, err := s.Provider.RetrieveSubscription(ctx, subscriptionRef)
	if err != nil {
		return nil, s.unavailable(subscriptionRef, "subscription could not be retrieved", err)
	}
	return s.PreviewForSubscription(ctx, sub, newPriceRef)
}

// PreviewForSubscription previews against an already fetched subscription. Every
// failure is reported as ErrPreviewUnavailable so callers can degrade gracefully.
func (s *prorationService) PreviewForSubscription(ctx context.Context, sub *subscription.Subscription, newPriceRef string) (*proration.Preview, error) {
	item, ok := sub.SoleItem()
	if !ok {
		return nil, s.unavailable(sub.ID, "subscription has no single active item", nil)
	}

	invoice, err := s.Provider.PreviewInvoice(ctx, subscription.PreviewParams{
		SubscriptionRef: sub.ID,
		CustomerRef:     sub.CustomerRef,
		ItemID:          item.ID,
		PriceRef:        newPriceRef,
		ProrationDate:   s.Clock.Now(),
	})
	if err != nil {
		return nil, s.unavailable(sub.ID, "provider rejected the preview", err)
	}

	preview := proration.Summarize(invoice)
	if preview.Currency == "" {
		preview.Currency = sub.Currency
	}
	return &preview, nil
}

// unavailable replaces the cause so the preview never inherits a 404 or 500 status
func (s *prorationService) unavailable(subscriptionRef, reason string, cause error) error {
	s.Logger.Warnw("proration preview unavailable",
		"subscription_ref", subscriptionRef,
		"reason", reason,
		"error", cause,
	)
	return ierr.NewError(reason).
		WithHint("A price preview is not available right now").
		Mark(ierr.ErrPreviewUnavailable)
}
