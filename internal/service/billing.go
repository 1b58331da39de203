package service

import (
	"context"

	"github.com/flexprice/planshift/internal/api/dto"
	"github.com/flexprice/planshift/internal/domain/plan"
	"github.com/flexprice/planshift/internal/domain/profile"
	"github.com/flexprice/planshift/internal/domain/subscription"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/types"
	"github.com/samber/lo"
)

// BillingService serves the signed in user's plan management surface
type BillingService interface {
	ListPlans(ctx context.Context) (*dto.ListPlansResponse, error)
	GetSubscription(ctx context.Context) (*dto.SubscriptionResponse, error)
	ChangePlan(ctx context.Context, req dto.ChangePlanRequest, requestKey string) (*dto.ChangePlanResponse, error)
	PreviewChange(ctx context.Context, req dto.ChangePlanRequest) (*dto.PreviewResponse, error)
	CancelScheduledChange(ctx context.Context, requestKey string) (*dto.SuccessResponse, error)
	ListHistory(ctx context.Context, limit int) (*dto.ListHistoryResponse, error)
}

type billingService struct {
	ServiceParams
}

func NewBillingService(params ServiceParams) BillingService {
	return &billingService{ServiceParams: params}
}

// activeState is a fresh provider read resolved against the catalog
type activeState struct {
	profile      *profile.Profile
	subscription *subscription.Subscription
	plan         plan.PlanID
	period       plan.Period
}

func (s *billingService) ListPlans(ctx context.Context) (*dto.ListPlansResponse, error) {
	resp := dto.NewListPlansResponse(s.Catalog.Tiers())

	// The profile hint is display only; missing profiles are fine here
	if p, err := s.currentProfile(ctx); err == nil && p.CachedPlanID != "" {
		for i := range resp.Plans {
			resp.Plans[i].Current = string(resp.Plans[i].ID) == p.CachedPlanID
		}
	}
	return resp, nil
}

func (s *billingService) GetSubscription(ctx context.Context) (*dto.SubscriptionResponse, error) {
	p, err := s.currentProfile(ctx)
	if err != nil {
		return nil, err
	}
	if p.CustomerRef == "" {
		return nil, ierr.NewError("profile has no customer reference").
			WithHint("No active subscription").
			Mark(ierr.ErrNotFound)
	}

	subscriptionService := NewSubscriptionService(s.ServiceParams)
	sub, err := subscriptionService.GetForCustomer(ctx, p.CustomerRef, p.ActiveSubscriptionRef)
	if err != nil {
		return nil, err
	}
	return dto.NewSubscriptionResponse(sub, s.Catalog, s.Clock.Now()), nil
}

func (s *billingService) ChangePlan(ctx context.Context, req dto.ChangePlanRequest, requestKey string) (*dto.ChangePlanResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireKnownPlan(req.TargetPlanID); err != nil {
		return nil, err
	}

	state, err := s.loadActive(ctx)
	if err != nil {
		return nil, err
	}
	if req.ExpectedPlanID != "" && req.ExpectedPlanID != state.plan {
		return nil, ierr.NewErrorf("expected plan %s, subscription is on %s", req.ExpectedPlanID, state.plan).
			WithHint("Your subscription changed since this page was loaded. Refresh and try again.").
			WithReportableDetails(map[string]any{"current_plan_id": state.plan}).
			Mark(ierr.ErrVersionConflict)
	}

	planChangeService := NewPlanChangeService(s.ServiceParams)
	result, err := planChangeService.ChangePlan(ctx, ChangeRequest{
		Subscription: state.subscription,
		CurrentPlan:  state.plan,
		TargetPlan:   req.TargetPlanID,
		Period:       req.BillingPeriod,
		RequestKey:   requestKey,
	})
	if err != nil {
		return nil, err
	}

	if result.Type == types.AuditEventUpgradeImmediate {
		s.refreshCachedPlan(ctx, state.profile, req.TargetPlanID)
	}

	return &dto.ChangePlanResponse{
		Type:          result.Type,
		Message:       result.Message,
		EffectiveDate: result.EffectiveDate,
	}, nil
}

// PreviewChange never fails because the preview itself failed; the response says so instead
func (s *billingService) PreviewChange(ctx context.Context, req dto.ChangePlanRequest) (*dto.PreviewResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireKnownPlan(req.TargetPlanID); err != nil {
		return nil, err
	}

	state, err := s.loadActive(ctx)
	if err != nil {
		return nil, err
	}

	classification := s.Catalog.Classify(state.plan, req.TargetPlanID)
	if !classification.IsValid() {
		return nil, ierr.NewErrorf("invalid plan change %s to %s", state.plan, req.TargetPlanID).
			WithHint(invalidChangeHint(classification.Reason)).
			WithReportableDetails(map[string]any{"reason": classification.Reason}).
			Mark(ierr.ErrInvalidPlanChange)
	}

	if classification.Change == plan.ChangeDowngrade {
		effectiveAt := state.subscription.CurrentPeriodEnd.UTC()
		return &dto.PreviewResponse{
			PreviewAvailable: false,
			ChangeType:       plan.ChangeDowngrade,
			EffectiveDate:    &effectiveAt,
			Details:          "Downgrades take effect at the end of the current billing period. Nothing is charged now.",
		}, nil
	}

	targetPrice, err := s.Catalog.PriceRef(req.TargetPlanID, req.BillingPeriod)
	if err != nil {
		return nil, err
	}

	prorationService := NewProrationService(s.ServiceParams)
	preview, err := prorationService.PreviewForSubscription(ctx, state.subscription, targetPrice)
	if err != nil {
		if ierr.IsPreviewUnavailable(err) {
			return &dto.PreviewResponse{
				PreviewAvailable: false,
				ChangeType:       plan.ChangeUpgrade,
				Details:          ierr.DisplayMessage(err, "A price preview is not available right now"),
			}, nil
		}
		return nil, err
	}
	return dto.NewPreviewResponse(preview), nil
}

func (s *billingService) CancelScheduledChange(ctx context.Context, requestKey string) (*dto.SuccessResponse, error) {
	state, err := s.loadActive(ctx)
	if err != nil {
		return nil, err
	}

	planChangeService := NewPlanChangeService(s.ServiceParams)
	result, err := planChangeService.CancelScheduledChange(ctx, CancelRequest{
		Subscription: state.subscription,
		ActivePlan:   state.plan,
		Period:       state.period,
		RequestKey:   requestKey,
	})
	if err != nil {
		return nil, err
	}
	return &dto.SuccessResponse{Success: result.Success}, nil
}

func (s *billingService) ListHistory(ctx context.Context, limit int) (*dto.ListHistoryResponse, error) {
	p, err := s.currentProfile(ctx)
	if err != nil {
		return nil, err
	}
	if !p.HasActiveSubscription() {
		return nil, ierr.NewError("profile has no active subscription").
			WithHint("No active subscription").
			Mark(ierr.ErrNotFound)
	}

	auditService := NewAuditService(s.ServiceParams)
	records, err := auditService.ListForSubscription(ctx, p.ActiveSubscriptionRef, limit)
	if err != nil {
		return nil, err
	}
	return dto.NewListHistoryResponse(records), nil
}

func (s *billingService) currentProfile(ctx context.Context) (*profile.Profile, error) {
	userID := types.GetUserID(ctx)
	if userID == "" {
		return nil, ierr.NewError("no user in context").
			WithHint("Please sign in").
			Mark(ierr.ErrUnauthenticated)
	}

	p, err := s.ProfileRepo.Get(ctx, userID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, ierr.WithError(err).
				WithHint("No billing profile found").
				Mark(ierr.ErrNotFound)
		}
		return nil, err
	}
	return p, nil
}

// loadActive reads the subscription from the provider, bypassing the cache, and
// resolves the plan in force for the current period.
func (s *billingService) loadActive(ctx context.Context) (*activeState, error) {
	p, err := s.currentProfile(ctx)
	if err != nil {
		return nil, err
	}
	if !p.HasActiveSubscription() {
		return nil, ierr.NewError("profile has no active subscription").
			WithHint("No active subscription").
			Mark(ierr.ErrNotFound)
	}

	subscriptionService := NewSubscriptionService(s.ServiceParams)
	sub, err := subscriptionService.GetFresh(ctx, p.ActiveSubscriptionRef)
	if err != nil {
		return nil, err
	}
	if !sub.Status.IsLive() {
		return nil, ierr.NewErrorf("subscription status is %s", sub.Status).
			WithHint("No active subscription").
			WithReportableDetails(map[string]any{"status": sub.Status}).
			Mark(ierr.ErrNotFound)
	}

	planID, period, ok := s.Catalog.Resolve(sub.ActivePriceRef(s.Clock.Now()))
	if !ok {
		s.Logger.Warnw("subscription price is not in the catalog",
			"subscription_ref", sub.ID,
			"price_ref", sub.ActivePriceRef(s.Clock.Now()),
		)
		return nil, ierr.NewError("subscription price is not in the catalog").
			WithHint("This subscription cannot be changed here. Please contact support.").
			Mark(ierr.ErrVersionConflict)
	}

	return &activeState{
		profile:      p,
		subscription: sub,
		plan:         planID,
		period:       period,
	}, nil
}

func (s *billingService) requireKnownPlan(id plan.PlanID) error {
	if s.Catalog.Has(id) {
		return nil
	}
	return ierr.NewErrorf("unknown plan %q", id).
		WithHint(invalidChangeHint(plan.ReasonUnknownPlan)).
		WithReportableDetails(map[string]any{
			"target_plan_id": id,
			"reason":         plan.ReasonUnknownPlan,
			"allowed":        lo.Map(s.Catalog.Tiers(), func(t plan.Tier, _ int) plan.PlanID { return t.ID }),
		}).
		Mark(ierr.ErrInvalidPlanChange)
}

func (s *billingService) refreshCachedPlan(ctx context.Context, p *profile.Profile, planID plan.PlanID) {
	p.CachedPlanID = string(planID)
	p.UpdatedAt = s.Clock.Now()
	if err := s.ProfileRepo.Upsert(ctx, p); err != nil {
		s.Logger.Warnw("failed to refresh cached plan on profile",
			"user_id", p.UserID,
			"plan_id", planID,
			"error", err,
		)
	}
}
