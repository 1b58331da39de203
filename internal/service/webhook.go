package service

import (
	"context"
	"time"

	"github.com/flexprice/planshift/internal/domain/audit"
	"github.com/flexprice/planshift/internal/domain/profile"
	"github.com/flexprice/planshift/internal/domain/subscription"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/types"
)

// WebhookParser verifies and decodes a provider notification
type WebhookParser interface {
	ParseWebhookEvent(payload []byte, signature string) (*subscription.Event, error)
}

// WebhookService keeps profiles and the cache in line with provider side changes
// that did not originate here (checkout completion, portal edits, renewals, cancels).
type WebhookService interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	HandleEvent(ctx context.Context, event *subscription.Event) error
}

type webhookService struct {
	ServiceParams
	parser WebhookParser
}

func NewWebhookService(params ServiceParams, parser WebhookParser) WebhookService {
	return &webhookService{ServiceParams: params, parser: parser}
}

func (s *webhookService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.parser.ParseWebhookEvent(payload, signature)
	if err != nil {
		return err
	}
	return s.HandleEvent(ctx, event)
}

func (s *webhookService) HandleEvent(ctx context.Context, event *subscription.Event) error {
	s.Logger.Infow("handling billing webhook",
		"event_id", event.ID,
		"event_type", event.Type,
	)

	switch event.Type {
	case subscription.EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case subscription.EventSubscriptionUpdated, subscription.EventSubscriptionCreated:
		return s.handleSubscriptionUpdated(ctx, event)
	case subscription.EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event)
	default:
		s.Logger.Debugw("ignoring billing webhook", "event_type", event.Type)
		return nil
	}
}

func (s *webhookService) handleCheckoutCompleted(ctx context.Context, event *subscription.Event) error {
	checkout := event.Checkout
	if checkout == nil || checkout.SubscriptionRef == "" {
		s.Logger.Warnw("checkout completed without a subscription", "event_id", event.ID)
		return nil
	}

	p, err := s.findProfile(ctx, checkout.ClientRef, checkout.CustomerRef)
	if err != nil {
		return err
	}
	if p == nil {
		now := s.Clock.Now()
		p = &profile.Profile{
			UserID:    checkout.ClientRef,
			Email:     checkout.CustomerEmail,
			CreatedAt: now,
		}
		if p.UserID == "" {
			s.Logger.Warnw("checkout completed for an unknown user",
				"event_id", event.ID,
				"customer_ref", checkout.CustomerRef,
			)
			return nil
		}
	}

	sub, err := s.Provider.RetrieveSubscription(ctx, checkout.SubscriptionRef)
	if err != nil {
		return err
	}

	now := s.Clock.Now()
	priceRef := sub.ActivePriceRef(now)
	planID, _, _ := s.Catalog.Resolve(priceRef)

	p.CustomerRef = checkout.CustomerRef
	p.ActiveSubscriptionRef = sub.ID
	p.CachedPlanID = string(planID)
	p.UpdatedAt = now
	if err := s.ProfileRepo.Upsert(ctx, p); err != nil {
		return err
	}

	s.invalidate(ctx, checkout.CustomerRef)
	s.appendAudit(ctx, audit.NewRecordForEvent(event.ID, types.AuditEventCreated, sub.ID, checkout.CustomerRef,
		string(planID), priceRef, occurredAt(event, now)), p.UserID)
	return nil
}

func (s *webhookService) handleSubscriptionUpdated(ctx context.Context, event *subscription.Event) error {
	sub := event.Subscription
	if sub == nil {
		return nil
	}

	p, err := s.findProfile(ctx, "", sub.CustomerRef)
	if err != nil {
		return err
	}

	// Invalidation is unconditional; the profile may not be linked yet
	defer s.invalidate(ctx, sub.CustomerRef)

	if p == nil || (p.ActiveSubscriptionRef != "" && p.ActiveSubscriptionRef != sub.ID) {
		return nil
	}

	planID, _, _ := s.Catalog.Resolve(sub.ActivePriceRef(s.Clock.Now()))
	if p.ActiveSubscriptionRef == sub.ID && p.CachedPlanID == string(planID) {
		return nil
	}
	if !sub.Status.IsLive() {
		return nil
	}

	p.ActiveSubscriptionRef = sub.ID
	p.CachedPlanID = string(planID)
	p.UpdatedAt = s.Clock.Now()
	return s.ProfileRepo.Upsert(ctx, p)
}

func (s *webhookService) handleSubscriptionDeleted(ctx context.Context, event *subscription.Event) error {
	sub := event.Subscription
	if sub == nil {
		return nil
	}

	p, err := s.findProfile(ctx, "", sub.CustomerRef)
	if err != nil {
		return err
	}
	defer s.invalidate(ctx, sub.CustomerRef)

	if p == nil || p.ActiveSubscriptionRef != sub.ID {
		return nil
	}

	now := s.Clock.Now()
	var priceRef string
	if item, ok := sub.SoleItem(); ok {
		priceRef = item.PriceRef
	}
	planID, _, _ := s.Catalog.Resolve(priceRef)

	p.ActiveSubscriptionRef = ""
	p.CachedPlanID = ""
	p.UpdatedAt = now
	if err := s.ProfileRepo.Upsert(ctx, p); err != nil {
		return err
	}

	s.appendAudit(ctx, audit.NewRecordForEvent(event.ID, types.AuditEventCanceled, sub.ID, sub.CustomerRef,
		string(planID), priceRef, occurredAt(event, now)), p.UserID)
	return nil
}

// findProfile prefers the user id set on checkout, then the customer link. A missing
// profile is not an error for webhooks.
func (s *webhookService) findProfile(ctx context.Context, userID, customerRef string) (*profile.Profile, error) {
	if userID != "" {
		p, err := s.ProfileRepo.Get(ctx, userID)
		if err == nil {
			return p, nil
		}
		if !ierr.IsNotFound(err) {
			return nil, err
		}
	}
	if customerRef == "" {
		return nil, nil
	}

	p, err := s.ProfileRepo.GetByCustomerRef(ctx, customerRef)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// occurredAt prefers the provider's event time so a redelivery stores the same record
func occurredAt(event *subscription.Event, now time.Time) time.Time {
	if event.CreatedAt.IsZero() {
		return now
	}
	return event.CreatedAt
}

func (s *webhookService) invalidate(ctx context.Context, customerRef string) {
	if customerRef == "" {
		return
	}
	if err := s.Cache.Invalidate(ctx, customerRef); err != nil {
		s.Logger.Warnw("failed to invalidate subscription cache",
			"customer_ref", customerRef,
			"error", err,
		)
	}
}

func (s *webhookService) appendAudit(ctx context.Context, record *audit.Record, userID string) {
	record.UserID = userID
	auditService := NewAuditService(s.ServiceParams)
	if err := auditService.Append(ctx, record); err != nil {
		s.Logger.Warnw("failed to append audit record",
			"subscription_ref", record.SubscriptionRef,
			"event_type", record.EventType,
			"error", err,
		)
	}
}
