package service

import (
	"context"

	"github.com/flexprice/planshift/internal/api/dto"
	"github.com/flexprice/planshift/internal/domain/profile"
	"github.com/flexprice/planshift/internal/domain/subscription"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/types"
)

// Checkout metadata keys read back by the webhook handler
const (
	CheckoutMetadataUserID        = "user_id"
	CheckoutMetadataPlanID        = "plan_id"
	CheckoutMetadataBillingPeriod = "billing_period"
)

// CheckoutService starts new subscriptions and hands users to the provider portal
type CheckoutService interface {
	CreateCheckoutSession(ctx context.Context, req dto.CreateCheckoutRequest) (*dto.SessionResponse, error)
	CreatePortalSession(ctx context.Context, req dto.CreatePortalRequest) (*dto.SessionResponse, error)
}

type checkoutService struct {
	ServiceParams
}

func NewCheckoutService(params ServiceParams) CheckoutService {
	return &checkoutService{ServiceParams: params}
}

// CreateCheckoutSession refuses to start a second live subscription; plan changes
// for existing subscribers go through the plan change surface instead.
func (s *checkoutService) CreateCheckoutSession(ctx context.Context, req dto.CreateCheckoutRequest) (*dto.SessionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	priceRef, err := s.Catalog.PriceRef(req.PlanID, req.BillingPeriod)
	if err != nil {
		return nil, err
	}

	p, err := s.getOrCreateProfile(ctx)
	if err != nil {
		return nil, err
	}

	if p.CustomerRef != "" {
		active, err := s.Provider.ListActiveSubscriptions(ctx, p.CustomerRef)
		if err != nil {
			return nil, err
		}
		if len(active) > 0 {
			return nil, ierr.NewError("customer already has an active subscription").
				WithHint("You already have an active subscription. Change your plan instead.").
				WithReportableDetails(map[string]any{"subscription_ref": active[0].ID}).
				Mark(ierr.ErrAlreadyExists)
		}
	}

	params := subscription.CheckoutParams{
		CustomerRef: p.CustomerRef,
		PriceRef:    priceRef,
		SuccessURL:  firstNonEmpty(req.SuccessURL, s.Config.Stripe.CheckoutSuccessURL),
		CancelURL:   firstNonEmpty(req.CancelURL, s.Config.Stripe.CheckoutCancelURL),
		ClientRef:   p.UserID,
		Metadata: map[string]string{
			CheckoutMetadataUserID:        p.UserID,
			CheckoutMetadataPlanID:        string(req.PlanID),
			CheckoutMetadataBillingPeriod: string(req.BillingPeriod),
		},
	}
	if params.CustomerRef == "" {
		params.CustomerEmail = p.Email
	}
	if params.SuccessURL == "" || params.CancelURL == "" {
		return nil, ierr.NewError("checkout redirect urls are not configured").
			WithHint("Checkout is temporarily unavailable").
			Mark(ierr.ErrConfiguration)
	}

	session, err := s.Provider.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("checkout session created",
		"user_id", p.UserID,
		"plan_id", req.PlanID,
		"billing_period", req.BillingPeriod,
		"session_id", session.ID,
	)
	return &dto.SessionResponse{SessionID: session.ID, URL: session.URL}, nil
}

func (s *checkoutService) CreatePortalSession(ctx context.Context, req dto.CreatePortalRequest) (*dto.SessionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	userID := types.GetUserID(ctx)
	if userID == "" {
		return nil, ierr.NewError("no user in context").
			WithHint("Please sign in").
			Mark(ierr.ErrUnauthenticated)
	}

	p, err := s.ProfileRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p.CustomerRef == "" {
		return nil, ierr.NewError("profile has no customer reference").
			WithHint("No billing account found").
			Mark(ierr.ErrNotFound)
	}

	session, err := s.Provider.CreatePortalSession(ctx, subscription.PortalParams{
		CustomerRef: p.CustomerRef,
		ReturnURL:   firstNonEmpty(req.ReturnURL, s.Config.Stripe.PortalReturnURL),
	})
	if err != nil {
		return nil, err
	}
	return &dto.SessionResponse{SessionID: session.ID, URL: session.URL}, nil
}

func (s *checkoutService) getOrCreateProfile(ctx context.Context) (*profile.Profile, error) {
	userID := types.GetUserID(ctx)
	if userID == "" {
		return nil, ierr.NewError("no user in context").
			WithHint("Please sign in").
			Mark(ierr.ErrUnauthenticated)
	}

	p, err := s.ProfileRepo.Get(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !ierr.IsNotFound(err) {
		return nil, err
	}

	now := s.Clock.Now()
	p = &profile.Profile{
		UserID:    userID,
		Email:     types.GetUserEmail(ctx),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.ProfileRepo.Upsert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
