package plan

import (
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/samber/lo"
)

// PlanID is the stable identifier of a tier, ex "pro"
type PlanID string

const (
	PlanStarter  PlanID = "starter"
	PlanBasic    PlanID = "basic"
	PlanPro      PlanID = "pro"
	PlanPlus     PlanID = "plus"
	PlanAdvanced PlanID = "advanced"
)

// CanonicalOrder lists the tiers in ascending capability order; a tier's rank
// is its position in this slice plus one.
var CanonicalOrder = []PlanID{PlanStarter, PlanBasic, PlanPro, PlanPlus, PlanAdvanced}

func (p PlanID) String() string {
	return string(p)
}

// Period is a billing period a price can be configured for
type Period string

const (
	PeriodMonthly Period = "monthly"
	PeriodAnnual  Period = "annual"
)

var Periods = []Period{PeriodMonthly, PeriodAnnual}

func (p Period) String() string {
	return string(p)
}

func (p Period) Validate() error {
	if !lo.Contains(Periods, p) {
		return ierr.NewError("invalid billing period").
			WithHint("Billing period must be monthly or annual").
			WithReportableDetails(map[string]any{
				"billing_period": p,
				"allowed":        Periods,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Tier is one entry of the catalog
type Tier struct {
	ID        PlanID            `json:"id"`
	Rank      int               `json:"rank"`
	PriceRefs map[Period]string `json:"-"`
}

// ChangeType is the outcome of classifying a transition
type ChangeType string

const (
	ChangeUpgrade   ChangeType = "upgrade"
	ChangeDowngrade ChangeType = "downgrade"
	ChangeInvalid   ChangeType = "invalid"
)

// InvalidReason explains an invalid classification
type InvalidReason string

const (
	ReasonNone        InvalidReason = ""
	ReasonSamePlan    InvalidReason = "same_plan"
	ReasonUnknownPlan InvalidReason = "unknown_plan"
)

type Classification struct {
	Change ChangeType
	Reason InvalidReason
}

func (c Classification) IsValid() bool {
	return c.Change != ChangeInvalid
}
