package profile

import (
	"context"
	"time"
)

// Profile links an application user to their billing provider identities.
// CachedPlanID is a denormalized display hint and never drives a decision.
type Profile struct {
	UserID                string    `db:"user_id" json:"user_id"`
	Email                 string    `db:"email" json:"email"`
	CustomerRef           string    `db:"customer_ref" json:"customer_ref"`
	ActiveSubscriptionRef string    `db:"active_subscription_ref" json:"active_subscription_ref"`
	CachedPlanID          string    `db:"cached_plan_id" json:"cached_plan_id"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// HasActiveSubscription reports whether the profile points at a subscription
func (p *Profile) HasActiveSubscription() bool {
	return p != nil && p.ActiveSubscriptionRef != ""
}

type Repository interface {
	// Get returns the profile for a user or an error marked ErrNotFound
	Get(ctx context.Context, userID string) (*Profile, error)
	// GetByCustomerRef returns the profile linked to a provider customer
	GetByCustomerRef(ctx context.Context, customerRef string) (*Profile, error)
	// Upsert inserts or replaces the profile keyed by user id
	Upsert(ctx context.Context, p *Profile) error
}
