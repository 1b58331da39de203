package service

import (
	"context"
	"fmt"
	"time"

	"github.com/flexprice/planshift/internal/domain/audit"
	"github.com/flexprice/planshift/internal/domain/plan"
	"github.com/flexprice/planshift/internal/domain/subscription"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/idempotency"
	"github.com/flexprice/planshift/internal/types"
)

// ChangeRequest asks to move a subscription from CurrentPlan to TargetPlan.
// Subscription must be a fresh provider read, never a cache entry.
type ChangeRequest struct {
	Subscription *subscription.Subscription
	CurrentPlan  plan.PlanID
	TargetPlan   plan.PlanID
	Period       plan.Period
	// RequestKey is the caller supplied Idempotency-Key, if any
	RequestKey string
}

type ChangeResult struct {
	Type          types.AuditEventType
	Message       string
	EffectiveDate *time.Time
	Subscription  *subscription.Subscription
}

// CancelRequest restores ActivePlan, the plan in force for the current period as
// derived from a fresh provider read.
type CancelRequest struct {
	Subscription *subscription.Subscription
	ActivePlan   plan.PlanID
	Period       plan.Period
	RequestKey   string
}

type CancelResult struct {
	Success          bool
	HadPendingChange bool
	Subscription     *subscription.Subscription
}

// PlanChangeService moves a subscription between tiers. Each operation runs
// provider mutation, then cache invalidation, then audit append, in that order.
type PlanChangeService interface {
	ChangePlan(ctx context.Context, req ChangeRequest) (*ChangeResult, error)
	ImmediateUpgrade(ctx context.Context, req ChangeRequest) (*ChangeResult, error)
	ScheduleDowngrade(ctx context.Context, req ChangeRequest) (*ChangeResult, error)
	CancelScheduledChange(ctx context.Context, req CancelRequest) (*CancelResult, error)
}

type planChangeService struct {
	ServiceParams
}

func NewPlanChangeService(params ServiceParams) PlanChangeService {
	return &planChangeService{ServiceParams: params}
}

// ChangePlan classifies before any I/O and dispatches to the matching transition
func (s *planChangeService) ChangePlan(ctx context.Context, req ChangeRequest) (*ChangeResult, error) {
	classification, err := s.classify(req)
	if err != nil {
		return nil, err
	}

	switch classification.Change {
	case plan.ChangeUpgrade:
		return s.ImmediateUpgrade(ctx, req)
	default:
		return s.ScheduleDowngrade(ctx, req)
	}
}

func (s *planChangeService) ImmediateUpgrade(ctx context.Context, req ChangeRequest) (*ChangeResult, error) {
	classification, err := s.classify(req)
	if err != nil {
		return nil, err
	}
	if classification.Change != plan.ChangeUpgrade {
		return nil, ierr.NewErrorf("%s to %s is not an upgrade", req.CurrentPlan, req.TargetPlan).
			WithHint("The selected plan is not an upgrade").
			WithReportableDetails(map[string]any{"change": classification.Change}).
			Mark(ierr.ErrInvalidPlanChange)
	}

	sub := req.Subscription
	item, err := s.verifySnapshot(sub, req.CurrentPlan)
	if err != nil {
		return nil, err
	}

	targetPrice, err := s.Catalog.PriceRef(req.TargetPlan, req.Period)
	if err != nil {
		return nil, err
	}

	// An upgrade supersedes any scheduled downgrade
	metadata := map[string]string{
		subscription.MetadataChangeRevision: sub.NextChangeRevision(),
	}
	if sub.HasPendingMetadata() {
		for _, k := range subscription.PendingChangeMetadataKeys {
			metadata[k] = ""
		}
	}

	updated, err := s.mutate(ctx, sub, subscription.UpdateItemParams{
		SubscriptionRef: sub.ID,
		ItemID:          item.ID,
		PriceRef:        targetPrice,
		ProrationMode:   types.ProrationBehaviorCreateProrations,
		Metadata:        metadata,
		IdempotencyKey: s.idempotencyKey(idempotency.ScopePlanChange, req.RequestKey, sub, item,
			targetPrice, types.ProrationBehaviorCreateProrations),
	})
	if err != nil {
		return nil, err
	}

	record := audit.NewRecord(types.AuditEventUpgradeImmediate, sub.ID, sub.CustomerRef,
		string(req.TargetPlan), targetPrice, s.Clock.Now())
	s.appendAudit(ctx, record)

	s.Logger.Infow("subscription upgraded",
		"subscription_ref", sub.ID,
		"from_plan", req.CurrentPlan,
		"to_plan", req.TargetPlan,
		"billing_period", req.Period,
	)

	return &ChangeResult{
		Type:         types.AuditEventUpgradeImmediate,
		Message:      fmt.Sprintf("Upgraded to %s. The prorated difference has been invoiced.", req.TargetPlan),
		Subscription: updated,
	}, nil
}

// ScheduleDowngrade swaps the price without proration and records the pending change
// on the provider. The provider applies it at the period end; nothing is scheduled here.
func (s *planChangeService) ScheduleDowngrade(ctx context.Context, req ChangeRequest) (*ChangeResult, error) {
	classification, err := s.classify(req)
	if err != nil {
		return nil, err
	}
	if classification.Change != plan.ChangeDowngrade {
		return nil, ierr.NewErrorf("%s to %s is not a downgrade", req.CurrentPlan, req.TargetPlan).
			WithHint("The selected plan is not a downgrade").
			WithReportableDetails(map[string]any{"change": classification.Change}).
			Mark(ierr.ErrInvalidPlanChange)
	}

	sub := req.Subscription
	item, err := s.verifySnapshot(sub, req.CurrentPlan)
	if err != nil {
		return nil, err
	}

	targetPrice, err := s.Catalog.PriceRef(req.TargetPlan, req.Period)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	effectiveAt := sub.CurrentPeriodEnd.UTC()
	activePrice := sub.ActivePriceRef(now)

	updated, err := s.mutate(ctx, sub, subscription.UpdateItemParams{
		SubscriptionRef: sub.ID,
		ItemID:          item.ID,
		PriceRef:        targetPrice,
		ProrationMode:   types.ProrationBehaviorNone,
		Metadata: map[string]string{
			subscription.MetadataScheduledPlanID:      string(req.TargetPlan),
			subscription.MetadataScheduledPriceRef:    targetPrice,
			subscription.MetadataScheduledEffectiveAt: effectiveAt.Format(time.RFC3339),
			subscription.MetadataEffectivePriceRef:    activePrice,
			subscription.MetadataChangeRevision:       sub.NextChangeRevision(),
		},
		IdempotencyKey: s.idempotencyKey(idempotency.ScopeScheduledChange, req.RequestKey, sub, item,
			targetPrice, types.ProrationBehaviorNone),
	})
	if err != nil {
		return nil, err
	}

	record := audit.NewRecord(types.AuditEventDowngradeScheduled, sub.ID, sub.CustomerRef,
		string(req.TargetPlan), targetPrice, now)
	record.EffectiveAt = &effectiveAt
	s.appendAudit(ctx, record)

	s.Logger.Infow("subscription downgrade scheduled",
		"subscription_ref", sub.ID,
		"from_plan", req.CurrentPlan,
		"to_plan", req.TargetPlan,
		"effective_at", effectiveAt,
	)

	return &ChangeResult{
		Type: types.AuditEventDowngradeScheduled,
		Message: fmt.Sprintf("Your plan will change to %s on %s.",
			req.TargetPlan, effectiveAt.Format("January 2, 2006")),
		EffectiveDate: &effectiveAt,
		Subscription:  updated,
	}, nil
}

// CancelScheduledChange writes the active plan's price back. Running it again after
// a successful cancel writes the same price and is a no-op for the provider.
func (s *planChangeService) CancelScheduledChange(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	sub := req.Subscription
	if sub == nil {
		return nil, ierr.NewError("subscription snapshot is required").
			WithHint("No active subscription").
			Mark(ierr.ErrNotFound)
	}

	if !s.Catalog.Has(req.ActivePlan) {
		return nil, ierr.NewErrorf("active plan %q is not in the catalog", req.ActivePlan).
			WithHint("The current plan cannot be restored").
			Mark(ierr.ErrInvalidPlanChange)
	}

	restorePrice, err := s.Catalog.PriceRef(req.ActivePlan, req.Period)
	if err != nil {
		return nil, err
	}

	item, ok := sub.SoleItem()
	if !ok {
		return nil, ierr.NewError("subscription does not have exactly one item").
			WithHint("This subscription cannot be changed here").
			WithReportableDetails(map[string]any{"items": len(sub.Items)}).
			Mark(ierr.ErrVersionConflict)
	}

	_, hadPending := sub.PendingChange(s.Clock.Now())

	metadata := map[string]string{
		subscription.MetadataChangeRevision: sub.NextChangeRevision(),
	}
	for _, k := range subscription.PendingChangeMetadataKeys {
		metadata[k] = ""
	}

	updated, err := s.mutate(ctx, sub, subscription.UpdateItemParams{
		SubscriptionRef: sub.ID,
		ItemID:          item.ID,
		PriceRef:        restorePrice,
		ProrationMode:   types.ProrationBehaviorNone,
		Metadata:        metadata,
		IdempotencyKey: s.idempotencyKey(idempotency.ScopeCancelChange, req.RequestKey, sub, item,
			restorePrice, types.ProrationBehaviorNone),
	})
	if err != nil {
		return nil, err
	}

	if hadPending {
		record := audit.NewRecord(types.AuditEventScheduledChangeCanceled, sub.ID, sub.CustomerRef,
			string(req.ActivePlan), restorePrice, s.Clock.Now())
		s.appendAudit(ctx, record)
	}

	s.Logger.Infow("scheduled plan change canceled",
		"subscription_ref", sub.ID,
		"restored_plan", req.ActivePlan,
		"had_pending_change", hadPending,
	)

	return &CancelResult{
		Success:          true,
		HadPendingChange: hadPending,
		Subscription:     updated,
	}, nil
}

func (s *planChangeService) classify(req ChangeRequest) (plan.Classification, error) {
	if req.Subscription == nil {
		return plan.Classification{}, ierr.NewError("subscription snapshot is required").
			WithHint("No active subscription").
			Mark(ierr.ErrNotFound)
	}

	classification := s.Catalog.Classify(req.CurrentPlan, req.TargetPlan)
	if !classification.IsValid() {
		return classification, ierr.NewErrorf("invalid plan change %s to %s", req.CurrentPlan, req.TargetPlan).
			WithHint(invalidChangeHint(classification.Reason)).
			WithReportableDetails(map[string]any{
				"current_plan_id": req.CurrentPlan,
				"target_plan_id":  req.TargetPlan,
				"reason":          classification.Reason,
			}).
			Mark(ierr.ErrInvalidPlanChange)
	}

	if err := req.Period.Validate(); err != nil {
		return classification, err
	}
	return classification, nil
}

func invalidChangeHint(reason plan.InvalidReason) string {
	switch reason {
	case plan.ReasonSamePlan:
		return "You are already on this plan"
	case plan.ReasonUnknownPlan:
		return "The selected plan does not exist"
	default:
		return "This plan change is not allowed"
	}
}

// verifySnapshot rejects a request built against a plan the subscription is no longer on
func (s *planChangeService) verifySnapshot(sub *subscription.Subscription, current plan.PlanID) (subscription.Item, error) {
	item, ok := sub.SoleItem()
	if !ok {
		return subscription.Item{}, ierr.NewError("subscription does not have exactly one item").
			WithHint("This subscription cannot be changed here").
			WithReportableDetails(map[string]any{"items": len(sub.Items)}).
			Mark(ierr.ErrVersionConflict)
	}

	active := sub.ActivePriceRef(s.Clock.Now())
	planID, _, ok := s.Catalog.Resolve(active)
	if !ok || planID != current {
		return subscription.Item{}, ierr.NewErrorf("subscription is on %q, request expected %q", planID, current).
			WithHint("Your subscription changed since this page was loaded. Refresh and try again.").
			WithReportableDetails(map[string]any{"expected_plan_id": current}).
			Mark(ierr.ErrVersionConflict)
	}
	return item, nil
}

// mutate performs the single provider write. On an unknown outcome the cache is still
// dropped so the next read goes to the provider.
func (s *planChangeService) mutate(ctx context.Context, sub *subscription.Subscription, params subscription.UpdateItemParams) (*subscription.Subscription, error) {
	updated, err := s.Provider.UpdateSubscriptionItem(ctx, params)
	if err != nil {
		if ierr.IsAmbiguousOutcome(err) {
			s.Logger.Warnw("plan change outcome unknown; refetch before retrying",
				"subscription_ref", sub.ID,
				"price_ref", params.PriceRef,
			)
			// the request may have been canceled; the entry must still go
			s.invalidate(context.WithoutCancel(ctx), sub.CustomerRef)
		}
		return nil, err
	}

	s.invalidate(ctx, sub.CustomerRef)
	return updated, nil
}

func (s *planChangeService) invalidate(ctx context.Context, customerRef string) {
	if err := s.Cache.Invalidate(ctx, customerRef); err != nil {
		s.Logger.Warnw("failed to invalidate subscription cache",
			"customer_ref", customerRef,
			"error", err,
		)
	}
}

func (s *planChangeService) appendAudit(ctx context.Context, record *audit.Record) {
	auditService := NewAuditService(s.ServiceParams)
	if err := auditService.Append(ctx, record); err != nil {
		s.Logger.Warnw("failed to append audit record",
			"subscription_ref", record.SubscriptionRef,
			"event_type", record.EventType,
			"error", err,
		)
	}
}

// idempotencyKey collapses duplicate submissions built from the same snapshot. Every
// engine write bumps the change revision, so a later identical transition (ex downgrade,
// cancel, downgrade again) starts from a new revision and gets a new key.
func (s *planChangeService) idempotencyKey(scope idempotency.Scope, requestKey string, sub *subscription.Subscription, item subscription.Item, targetPrice string, mode types.ProrationBehavior) string {
	params := map[string]interface{}{
		"subscription":   sub.ID,
		"item":           item.ID,
		"revision":       sub.ChangeRevision(),
		"snapshot_price": item.PriceRef,
		"target_price":   targetPrice,
		"proration":      mode,
	}
	if requestKey != "" {
		params["request"] = requestKey
	}
	return s.Idempotency.GenerateKey(scope, params)
}
