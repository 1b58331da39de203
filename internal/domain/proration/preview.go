package proration

import (
	"github.com/flexprice/planshift/internal/domain/subscription"
)

// Preview is the outcome of a hypothetical mid-period price swap, in minor units
type Preview struct {
	ImmediateCharge int64  `json:"immediate_charge"`
	ProrationCredit int64  `json:"proration_credit"`
	NewPlanCharge   int64  `json:"new_plan_charge"`
	Currency        string `json:"currency"`
}

// Summarize folds the proration lines of a draft invoice into a Preview.
// Negative proration lines are the credit for unused time on the old price;
// positive proration lines are the charge for the remaining time on the new one.
// Non-proration lines belong to the next regular invoice and are ignored.
func Summarize(preview *subscription.InvoicePreview) Preview {
	var credit, charge int64
	for _, line := range preview.Lines {
		if !line.Proration {
			continue
		}
		if line.Amount < 0 {
			credit += -line.Amount
		} else {
			charge += line.Amount
		}
	}
	return NewPreview(charge, credit, preview.Currency)
}

// NewPreview derives the immediate charge, clamped at zero
func NewPreview(newPlanCharge, prorationCredit int64, currency string) Preview {
	immediate := newPlanCharge - prorationCredit
	if immediate < 0 {
		immediate = 0
	}
	return Preview{
		ImmediateCharge: immediate,
		ProrationCredit: prorationCredit,
		NewPlanCharge:   newPlanCharge,
		Currency:        currency,
	}
}
