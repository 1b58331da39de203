package subscription

import "time"

// EventType is a provider notification we act on
type EventType string

const (
	EventCheckoutCompleted   EventType = "checkout.session.completed"
	EventSubscriptionUpdated EventType = "customer.subscription.updated"
	EventSubscriptionDeleted EventType = "customer.subscription.deleted"
	EventSubscriptionCreated EventType = "customer.subscription.created"
)

// Event is a verified provider notification decoded into domain types.
// Exactly one of Subscription or Checkout is set for the handled types.
type Event struct {
	ID           string
	Type         EventType
	CreatedAt    time.Time
	Subscription *Subscription
	Checkout     *CompletedCheckout
}

// CompletedCheckout is the part of a finished checkout session needed to link a profile
type CompletedCheckout struct {
	SessionID       string
	CustomerRef     string
	SubscriptionRef string
	ClientRef       string
	CustomerEmail   string
}
