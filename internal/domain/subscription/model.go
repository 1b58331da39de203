package subscription

import (
	"strconv"
	"time"

	"github.com/flexprice/planshift/internal/types"
)

// Metadata keys used to encode a scheduled change on the provider subscription.
// The provider is the only store of a pending change; nothing is persisted locally.
const (
	MetadataScheduledPlanID      = "scheduled_plan_id"
	MetadataScheduledPriceRef    = "scheduled_price_ref"
	MetadataScheduledEffectiveAt = "scheduled_effective_at"
	MetadataEffectivePriceRef    = "effective_price_ref"

	// MetadataChangeRevision is bumped on every write made by the plan change engine
	MetadataChangeRevision = "change_revision"
)

// PendingChangeMetadataKeys lists every key cleared when a pending change is removed
var PendingChangeMetadataKeys = []string{
	MetadataScheduledPlanID,
	MetadataScheduledPriceRef,
	MetadataScheduledEffectiveAt,
	MetadataEffectivePriceRef,
}

// Subscription is the provider's view of a customer's paid relationship.
// Local copies are cache entries and are never treated as authoritative.
type Subscription struct {
	ID                string                   `json:"id"`
	CustomerRef       string                   `json:"customer_ref"`
	Status            types.SubscriptionStatus `json:"status"`
	CurrentPeriodEnd  time.Time                `json:"current_period_end"`
	CancelAtPeriodEnd bool                     `json:"cancel_at_period_end"`
	Currency          string                   `json:"currency,omitempty"`
	Items             []Item                   `json:"items"`
	Metadata          map[string]string        `json:"metadata,omitempty"`
}

// Item is a single price and quantity pair on a subscription
type Item struct {
	ID       string `json:"id"`
	PriceRef string `json:"price_ref"`
	Quantity int64  `json:"quantity"`
}

// PendingChange is a downgrade recorded on the provider that has not taken effect yet
type PendingChange struct {
	TargetPlanID      string    `json:"target_plan_id"`
	TargetPriceRef    string    `json:"target_price_ref"`
	EffectiveAt       time.Time `json:"effective_at"`
	EffectivePriceRef string    `json:"effective_price_ref"`
}

// SoleItem returns the only item of the subscription. It reports false when the
// subscription carries zero or several items.
func (s *Subscription) SoleItem() (Item, bool) {
	if s == nil || len(s.Items) != 1 {
		return Item{}, false
	}
	return s.Items[0], true
}

// PendingChange decodes the scheduled change from metadata. A change whose
// effective instant has passed has been applied by the provider and is ignored.
func (s *Subscription) PendingChange(now time.Time) (*PendingChange, bool) {
	if s == nil || s.Metadata == nil {
		return nil, false
	}
	raw, ok := s.Metadata[MetadataScheduledEffectiveAt]
	if !ok || raw == "" {
		return nil, false
	}
	effectiveAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, false
	}
	if !now.Before(effectiveAt) {
		return nil, false
	}
	return &PendingChange{
		TargetPlanID:      s.Metadata[MetadataScheduledPlanID],
		TargetPriceRef:    s.Metadata[MetadataScheduledPriceRef],
		EffectiveAt:       effectiveAt.UTC(),
		EffectivePriceRef: s.Metadata[MetadataEffectivePriceRef],
	}, true
}

// ActivePriceRef is the price in force for the current period: the pre-downgrade
// price while a change is pending, otherwise the item price.
func (s *Subscription) ActivePriceRef(now time.Time) string {
	if pending, ok := s.PendingChange(now); ok && pending.EffectivePriceRef != "" {
		return pending.EffectivePriceRef
	}
	item, ok := s.SoleItem()
	if !ok {
		return ""
	}
	return item.PriceRef
}

// HasPendingMetadata reports whether any pending change key is set, expired or not
func (s *Subscription) HasPendingMetadata() bool {
	if s == nil {
		return false
	}
	for _, k := range PendingChangeMetadataKeys {
		if s.Metadata[k] != "" {
			return true
		}
	}
	return false
}

// ChangeRevision is the number of engine writes applied so far. Missing or
// unreadable values count as zero.
func (s *Subscription) ChangeRevision() int {
	if s == nil || s.Metadata == nil {
		return 0
	}
	n, err := strconv.Atoi(s.Metadata[MetadataChangeRevision])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// NextChangeRevision is the revision value the next engine write stores
func (s *Subscription) NextChangeRevision() string {
	return strconv.Itoa(s.ChangeRevision() + 1)
}
