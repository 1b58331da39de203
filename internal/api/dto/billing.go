package dto

import (
	"time"

	"github.com/flexprice/planshift/internal/domain/audit"
	"github.com/flexprice/planshift/internal/domain/plan"
	"github.com/flexprice/planshift/internal/domain/proration"
	"github.com/flexprice/planshift/internal/domain/subscription"
	"github.com/flexprice/planshift/internal/types"
	"github.com/flexprice/planshift/internal/validator"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ChangePlanRequest is the body of a plan change or preview. An unknown plan id is
// not a validation error; it is rejected as an invalid plan change.
type ChangePlanRequest struct {
	TargetPlanID  plan.PlanID `json:"target_plan_id" validate:"required"`
	BillingPeriod plan.Period `json:"billing_period" validate:"required"`
	// ExpectedPlanID, when set, must match the plan currently in force
	ExpectedPlanID plan.PlanID `json:"expected_plan_id,omitempty"`
}

func (r *ChangePlanRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.BillingPeriod.Validate()
}

type ChangePlanResponse struct {
	Type          types.AuditEventType `json:"type"`
	Message       string               `json:"message"`
	EffectiveDate *time.Time           `json:"effective_date,omitempty"`
}

// PreviewResponse carries amounts in major currency units. When the preview could
// not be computed PreviewAvailable is false and no amounts are sent.
type PreviewResponse struct {
	PreviewAvailable bool             `json:"preview_available"`
	ChangeType       plan.ChangeType  `json:"change_type"`
	ImmediateCharge  *decimal.Decimal `json:"immediate_charge,omitempty"`
	ProrationCredit  *decimal.Decimal `json:"proration_credit,omitempty"`
	NewPlanCharge    *decimal.Decimal `json:"new_plan_charge,omitempty"`
	Currency         string           `json:"currency,omitempty"`
	EffectiveDate    *time.Time       `json:"effective_date,omitempty"`
	Details          string           `json:"details,omitempty"`
}

// NewPreviewResponse converts minor units at the response boundary
func NewPreviewResponse(p *proration.Preview) *PreviewResponse {
	return &PreviewResponse{
		PreviewAvailable: true,
		ChangeType:       plan.ChangeUpgrade,
		ImmediateCharge:  lo.ToPtr(types.FromMinorUnits(p.ImmediateCharge, p.Currency)),
		ProrationCredit:  lo.ToPtr(types.FromMinorUnits(p.ProrationCredit, p.Currency)),
		NewPlanCharge:    lo.ToPtr(types.FromMinorUnits(p.NewPlanCharge, p.Currency)),
		Currency:         p.Currency,
	}
}

type PlanResponse struct {
	ID      plan.PlanID   `json:"id"`
	Rank    int           `json:"rank"`
	Periods []plan.Period `json:"periods"`
	Current bool          `json:"current,omitempty"`
}

type ListPlansResponse struct {
	Plans []PlanResponse `json:"plans"`
}

func NewListPlansResponse(tiers []plan.Tier) *ListPlansResponse {
	plans := lo.Map(tiers, func(t plan.Tier, _ int) PlanResponse {
		return PlanResponse{
			ID:   t.ID,
			Rank: t.Rank,
			Periods: lo.Filter(plan.Periods, func(p plan.Period, _ int) bool {
				_, ok := t.PriceRefs[p]
				return ok
			}),
		}
	})
	return &ListPlansResponse{Plans: plans}
}

type PendingChangeResponse struct {
	TargetPlanID plan.PlanID `json:"target_plan_id"`
	EffectiveAt  time.Time   `json:"effective_at"`
}

type SubscriptionResponse struct {
	ID                string                   `json:"id"`
	PlanID            plan.PlanID              `json:"plan_id,omitempty"`
	BillingPeriod     plan.Period              `json:"billing_period,omitempty"`
	Status            types.SubscriptionStatus `json:"status"`
	CurrentPeriodEnd  time.Time                `json:"current_period_end"`
	CancelAtPeriodEnd bool                     `json:"cancel_at_period_end"`
	PendingChange     *PendingChangeResponse   `json:"pending_change,omitempty"`
}

// NewSubscriptionResponse derives the displayed plan from the active price
func NewSubscriptionResponse(sub *subscription.Subscription, catalog *plan.Catalog, now time.Time) *SubscriptionResponse {
	resp := &SubscriptionResponse{
		ID:                sub.ID,
		Status:            sub.Status,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if planID, period, ok := catalog.Resolve(sub.ActivePriceRef(now)); ok {
		resp.PlanID = planID
		resp.BillingPeriod = period
	}
	if pending, ok := sub.PendingChange(now); ok {
		resp.PendingChange = &PendingChangeResponse{
			TargetPlanID: plan.PlanID(pending.TargetPlanID),
			EffectiveAt:  pending.EffectiveAt,
		}
	}
	return resp
}

type AuditRecordResponse struct {
	*audit.Record
}

type ListHistoryResponse struct {
	Items []AuditRecordResponse `json:"items"`
}

func NewListHistoryResponse(records []*audit.Record) *ListHistoryResponse {
	return &ListHistoryResponse{
		Items: lo.Map(records, func(r *audit.Record, _ int) AuditRecordResponse {
			return AuditRecordResponse{Record: r}
		}),
	}
}

type CreateCheckoutRequest struct {
	PlanID        plan.PlanID `json:"plan_id" validate:"required"`
	BillingPeriod plan.Period `json:"billing_period" validate:"required"`
	SuccessURL    string      `json:"success_url,omitempty" validate:"omitempty,url"`
	CancelURL     string      `json:"cancel_url,omitempty" validate:"omitempty,url"`
}

func (r *CreateCheckoutRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.BillingPeriod.Validate()
}

type CreatePortalRequest struct {
	ReturnURL string `json:"return_url,omitempty" validate:"omitempty,url"`
}

func (r *CreatePortalRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type SessionResponse struct {
	SessionID string `json:"session_id,omitempty"`
	URL       string `json:"url"`
}

type WebhookResponse struct {
	Received bool `json:"received"`
}
