package stripe

import (
	"context"

	"github.com/flexprice/planshift/internal/domain/subscription"
	"github.com/stripe/stripe-go/v82"
)

// CreateCheckoutSession opens a hosted checkout for a new subscription
func (c *Client) CreateCheckoutSession(ctx context.Context, p subscription.CheckoutParams) (*subscription.Session, error) {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(p.PriceRef),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:          stripe.String(p.SuccessURL),
		CancelURL:           stripe.String(p.CancelURL),
		AllowPromotionCodes: stripe.Bool(true),
		SubscriptionData: &stripe.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: p.Metadata,
		},
		Metadata: p.Metadata,
	}
	if p.ClientRef != "" {
		params.ClientReferenceID = stripe.String(p.ClientRef)
	}
	if p.CustomerRef != "" {
		params.Customer = stripe.String(p.CustomerRef)
	} else if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	session, err := c.api.V1CheckoutSessions.Create(callCtx, params)
	if err != nil {
		return nil, c.mapError(callCtx, "create_checkout_session", err, false,
			"customer_id", p.CustomerRef,
			"price_id", p.PriceRef,
		)
	}
	return &subscription.Session{ID: session.ID, URL: session.URL}, nil
}

// CreatePortalSession opens the hosted billing portal for an existing customer
func (c *Client) CreatePortalSession(ctx context.Context, p subscription.PortalParams) (*subscription.Session, error) {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := &stripe.BillingPortalSessionCreateParams{
		Customer: stripe.String(p.CustomerRef),
	}
	if p.ReturnURL != "" {
		params.ReturnURL = stripe.String(p.ReturnURL)
	}

	session, err := c.api.V1BillingPortalSessions.Create(callCtx, params)
	if err != nil {
		return nil, c.mapError(callCtx, "create_portal_session", err, false, "customer_id", p.CustomerRef)
	}
	return &subscription.Session{ID: session.ID, URL: session.URL}, nil
}
