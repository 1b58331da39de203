package types

import (
	"github.com/samber/lo"
)

// SubscriptionStatus mirrors the provider's subscription lifecycle
// https://stripe.com/docs/api/subscriptions/object#subscription_object-status
type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsLive reports whether the subscription still bills the customer
func (s SubscriptionStatus) IsLive() bool {
	return lo.Contains([]SubscriptionStatus{
		SubscriptionStatusActive,
		SubscriptionStatusTrialing,
		SubscriptionStatusPastDue,
	}, s)
}

// IsPaymentSensitive reports statuses that can flip after a payment attempt,
// which are cached with the short strategy.
func (s SubscriptionStatus) IsPaymentSensitive() bool {
	return lo.Contains([]SubscriptionStatus{
		SubscriptionStatusPastDue,
		SubscriptionStatusIncomplete,
		SubscriptionStatusUnpaid,
	}, s)
}
