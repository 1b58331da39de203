package stripe

import (
	"context"
	"time"

	"github.com/flexprice/planshift/internal/domain/subscription"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/types"
	"github.com/stripe/stripe-go/v82"
)

// RetrieveSubscription fetches the live subscription, bypassing any cache
func (c *Client) RetrieveSubscription(ctx context.Context, subscriptionRef string) (*subscription.Subscription, error) {
	ctx, finish := c.startSpan(ctx, "stripe.retrieve_subscription", map[string]interface{}{
		"subscription_id": subscriptionRef,
	})
	defer finish()

	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := &stripe.SubscriptionRetrieveParams{}
	params.AddExpand("items.data.price")

	stripeSub, err := c.api.V1Subscriptions.Retrieve(callCtx, subscriptionRef, params)
	if err != nil {
		return nil, c.mapError(callCtx, "retrieve_subscription", err, false, "subscription_id", subscriptionRef)
	}
	return toSubscription(stripeSub), nil
}

// UpdateSubscriptionItem swaps the price of one item and rewrites the given
// metadata keys in a single provider call. The billing anchor is left untouched.
func (c *Client) UpdateSubscriptionItem(ctx context.Context, p subscription.UpdateItemParams) (*subscription.Subscription, error) {
	if p.SubscriptionRef == "" || p.ItemID == "" || p.PriceRef == "" {
		return nil, ierr.NewError("subscription, item and price are required").
			WithHint("Invalid subscription update").
			Mark(ierr.ErrValidation)
	}

	ctx, finish := c.startSpan(ctx, "stripe.update_subscription_item", map[string]interface{}{
		"subscription_id":    p.SubscriptionRef,
		"proration_behavior": p.ProrationMode,
	})
	defer finish()

	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := &stripe.SubscriptionUpdateParams{
		Items: []*stripe.SubscriptionUpdateItemParams{
			{
				ID:    stripe.String(p.ItemID),
				Price: stripe.String(p.PriceRef),
			},
		},
		ProrationBehavior: stripe.String(string(p.ProrationMode)),
	}
	// an empty value unsets the key on the provider
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	params.AddExpand("items.data.price")

	stripeSub, err := c.api.V1Subscriptions.Update(callCtx, p.SubscriptionRef, params)
	if err != nil {
		return nil, c.mapError(callCtx, "update_subscription_item", err, true,
			"subscription_id", p.SubscriptionRef,
			"item_id", p.ItemID,
			"price_id", p.PriceRef,
			"proration_behavior", p.ProrationMode,
		)
	}

	c.logger.Infow("updated stripe subscription item",
		"subscription_id", p.SubscriptionRef,
		"item_id", p.ItemID,
		"price_id", p.PriceRef,
		"proration_behavior", p.ProrationMode,
	)
	if c.sentry != nil {
		c.sentry.AddBreadcrumb("stripe", "subscription item updated", map[string]interface{}{
			"subscription_id": p.SubscriptionRef,
			"price_id":        p.PriceRef,
		})
	}
	return toSubscription(stripeSub), nil
}

// ListActiveSubscriptions returns the customer's subscriptions that still bill
func (c *Client) ListActiveSubscriptions(ctx context.Context, customerRef string) ([]*subscription.Subscription, error) {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerRef),
	}
	params.AddExpand("data.items.data.price")

	var out []*subscription.Subscription
	for stripeSub, err := range c.api.V1Subscriptions.List(callCtx, params) {
		if err != nil {
			return nil, c.mapError(callCtx, "list_subscriptions", err, false, "customer_id", customerRef)
		}
		sub := toSubscription(stripeSub)
		if sub.Status.IsLive() {
			out = append(out, sub)
		}
	}
	return out, nil
}

func toSubscription(s *stripe.Subscription) *subscription.Subscription {
	if s == nil {
		return nil
	}

	sub := &subscription.Subscription{
		ID:                s.ID,
		Status:            types.SubscriptionStatus(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Currency:          string(s.Currency),
		Metadata:          s.Metadata,
	}
	if s.Customer != nil {
		sub.CustomerRef = s.Customer.ID
	}

	var periodEnd int64
	if s.Items != nil {
		for _, item := range s.Items.Data {
			if item == nil {
				continue
			}
			si := subscription.Item{ID: item.ID, Quantity: item.Quantity}
			if item.Price != nil {
				si.PriceRef = item.Price.ID
			}
			if item.CurrentPeriodEnd > periodEnd {
				periodEnd = item.CurrentPeriodEnd
			}
			sub.Items = append(sub.Items, si)
		}
	}
	if periodEnd > 0 {
		sub.CurrentPeriodEnd = time.Unix(periodEnd, 0).UTC()
	}
	return sub
}
