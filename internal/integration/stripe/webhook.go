package stripe

import (
	"encoding/json"
	"time"

	"github.com/flexprice/planshift/internal/domain/subscription"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ParseWebhookEvent verifies the Stripe-Signature header and decodes the events we
// act on. Unhandled event types are returned with only ID and Type set.
func (c *Client) ParseWebhookEvent(payload []byte, signature string) (*subscription.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		c.logger.Errorw("stripe webhook verification failed", "error", err)
		return nil, ierr.NewError("failed to verify webhook signature").
			WithHint("Invalid webhook signature or payload").
			Mark(ierr.ErrValidation)
	}

	out := &subscription.Event{
		ID:        event.ID,
		Type:      subscription.EventType(event.Type),
		CreatedAt: time.Unix(event.Created, 0).UTC(),
	}

	switch out.Type {
	case subscription.EventSubscriptionCreated,
		subscription.EventSubscriptionUpdated,
		subscription.EventSubscriptionDeleted:
		var s stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, c.decodeError(event, err)
		}
		out.Subscription = toSubscription(&s)

	case subscription.EventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, c.decodeError(event, err)
		}
		checkout := &subscription.CompletedCheckout{
			SessionID: session.ID,
			ClientRef: session.ClientReferenceID,
		}
		if session.Customer != nil {
			checkout.CustomerRef = session.Customer.ID
		}
		if session.Subscription != nil {
			checkout.SubscriptionRef = session.Subscription.ID
		}
		if session.CustomerDetails != nil {
			checkout.CustomerEmail = session.CustomerDetails.Email
		}
		out.Checkout = checkout
	}

	return out, nil
}

func (c *Client) decodeError(event stripe.Event, err error) error {
	c.logger.Errorw("failed to decode stripe webhook payload",
		"event_id", event.ID,
		"event_type", event.Type,
		"error", err,
	)
	return ierr.WithError(err).
		WithHint("Invalid webhook payload").
		Mark(ierr.ErrValidation)
}
