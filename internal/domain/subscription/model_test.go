package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPendingChange(t *testing.T) {
	periodEnd := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	sub := &Subscription{
		ID:    "sub_1",
		Items: []Item{{ID: "si_1", PriceRef: "price_basic_monthly", Quantity: 1}},
		Metadata: map[string]string{
			MetadataScheduledPlanID:      "basic",
			MetadataScheduledPriceRef:    "price_basic_monthly",
			MetadataScheduledEffectiveAt: periodEnd.Format(time.RFC3339),
			MetadataEffectivePriceRef:    "price_plus_monthly",
		},
	}

	t.Run("before effective instant", func(t *testing.T) {
		now := periodEnd.Add(-time.Hour)
		pending, ok := sub.PendingChange(now)
		assert.True(t, ok)
		assert.Equal(t, "basic", pending.TargetPlanID)
		assert.True(t, periodEnd.Equal(pending.EffectiveAt))
		assert.Equal(t, "price_plus_monthly", sub.ActivePriceRef(now))
	})

	t.Run("after effective instant", func(t *testing.T) {
		now := periodEnd.Add(time.Second)
		_, ok := sub.PendingChange(now)
		assert.False(t, ok)
		assert.Equal(t, "price_basic_monthly", sub.ActivePriceRef(now))
		assert.True(t, sub.HasPendingMetadata())
	})

	t.Run("no metadata", func(t *testing.T) {
		plain := &Subscription{Items: []Item{{ID: "si_1", PriceRef: "price_pro_annual"}}}
		_, ok := plain.PendingChange(periodEnd)
		assert.False(t, ok)
		assert.Equal(t, "price_pro_annual", plain.ActivePriceRef(periodEnd))
		assert.False(t, plain.HasPendingMetadata())
	})

	t.Run("multiple items have no sole item", func(t *testing.T) {
		multi := &Subscription{Items: []Item{{ID: "a"}, {ID: "b"}}}
		_, ok := multi.SoleItem()
		assert.False(t, ok)
		assert.Equal(t, "", multi.ActivePriceRef(periodEnd))
	})
}

func TestChangeRevision(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]string
		want     int
		next     string
	}{
		{name: "missing", metadata: nil, want: 0, next: "1"},
		{name: "set", metadata: map[string]string{MetadataChangeRevision: "4"}, want: 4, next: "5"},
		{name: "garbage", metadata: map[string]string{MetadataChangeRevision: "x"}, want: 0, next: "1"},
		{name: "negative", metadata: map[string]string{MetadataChangeRevision: "-2"}, want: 0, next: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &Subscription{ID: "sub_1", Metadata: tt.metadata}
			assert.Equal(t, tt.want, sub.ChangeRevision())
			assert.Equal(t, tt.next, sub.NextChangeRevision())
		})
	}
}
