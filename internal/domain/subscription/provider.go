package subscription

import (
	"context"
	"time"

	"github.com/flexprice/planshift/internal/types"
)

// Provider is the capability set consumed from the billing provider
type Provider interface {
	RetrieveSubscription(ctx context.Context, subscriptionRef string) (*Subscription, error)
	UpdateSubscriptionItem(ctx context.Context, params UpdateItemParams) (*Subscription, error)
	ListActiveSubscriptions(ctx context.Context, customerRef string) ([]*Subscription, error)
	PreviewInvoice(ctx context.Context, params PreviewParams) (*InvoicePreview, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*Session, error)
	CreatePortalSession(ctx context.Context, params PortalParams) (*Session, error)
}

// UpdateItemParams swaps the price of one subscription item. Metadata entries with
// an empty value are removed from the subscription.
type UpdateItemParams struct {
	SubscriptionRef string
	ItemID          string
	PriceRef        string
	ProrationMode   types.ProrationBehavior
	Metadata        map[string]string
	IdempotencyKey  string
}

type PreviewParams struct {
	SubscriptionRef string
	CustomerRef     string
	ItemID          string
	PriceRef        string
	ProrationDate   time.Time
}

// InvoicePreview is the subset of a draft invoice needed for proration math
type InvoicePreview struct {
	Currency string
	Lines    []InvoiceLine
}

type InvoiceLine struct {
	Amount    int64
	Proration bool
	PriceRef  string
}

type CheckoutParams struct {
	CustomerRef    string
	CustomerEmail  string
	PriceRef       string
	SuccessURL     string
	CancelURL      string
	ClientRef      string
	Metadata       map[string]string
	IdempotencyKey string
}

type PortalParams struct {
	CustomerRef string
	ReturnURL   string
}

type Session struct {
	ID  string
	URL string
}
