package audit

import (
	"context"
	"time"

	"github.com/flexprice/planshift/internal/types"
)

// Record is an immutable entry in the billing history. It is never updated after insert.
type Record struct {
	ID              string               `db:"id" json:"id" dynamodbav:"id"`
	SubscriptionRef string               `db:"subscription_ref" json:"subscription_ref" dynamodbav:"subscription_ref"`
	CustomerRef     string               `db:"customer_ref" json:"customer_ref" dynamodbav:"customer_ref"`
	UserID          string               `db:"user_id" json:"user_id,omitempty" dynamodbav:"user_id,omitempty"`
	PriceRef        string               `db:"price_ref" json:"price_ref" dynamodbav:"price_ref"`
	PlanID          string               `db:"plan_id" json:"plan_id" dynamodbav:"plan_id"`
	EventType       types.AuditEventType `db:"event_type" json:"event_type" dynamodbav:"event_type"`
	EffectiveAt     *time.Time           `db:"effective_at" json:"effective_at,omitempty" dynamodbav:"effective_at,omitempty"`
	OccurredAt      time.Time            `db:"occurred_at" json:"occurred_at" dynamodbav:"occurred_at"`
}

// NewRecord stamps a record with a fresh id
func NewRecord(eventType types.AuditEventType, subscriptionRef, customerRef, planID, priceRef string, occurredAt time.Time) *Record {
	return &Record{
		ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_AUDIT),
		SubscriptionRef: subscriptionRef,
		CustomerRef:     customerRef,
		PriceRef:        priceRef,
		PlanID:          planID,
		EventType:       eventType,
		OccurredAt:      occurredAt.UTC(),
	}
}

// NewRecordForEvent derives the id from a provider notification id, so a redelivered
// notification maps to the record already stored.
func NewRecordForEvent(eventID string, eventType types.AuditEventType, subscriptionRef, customerRef, planID, priceRef string, occurredAt time.Time) *Record {
	record := NewRecord(eventType, subscriptionRef, customerRef, planID, priceRef, occurredAt)
	record.ID = types.UUID_PREFIX_AUDIT + "_" + eventID
	return record
}

type Repository interface {
	// Append stores a new record. Records are append only; an existing id is
	// reported as ErrAlreadyExists.
	Append(ctx context.Context, record *Record) error
	// ListBySubscription returns records newest first
	ListBySubscription(ctx context.Context, subscriptionRef string, limit int) ([]*Record, error)
}
