package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flexprice/planshift/internal/domain/subscription"
	ierr "github.com/flexprice/planshift/internal/errors"
)

// FakeProvider is an in-memory billing provider that records every call
type FakeProvider struct {
	mu            sync.Mutex
	subscriptions map[string]*subscription.Subscription
	calls         map[string]int

	UpdateCalls   []subscription.UpdateItemParams
	PreviewCalls  []subscription.PreviewParams
	CheckoutCalls []subscription.CheckoutParams
	PortalCalls   []subscription.PortalParams

	// Preview is returned by PreviewInvoice
	Preview *subscription.InvoicePreview

	RetrieveErr error
	UpdateErr   error
	// UpdateAppliedErr is returned after the update has been applied, as when a
	// request times out after the provider committed it
	UpdateAppliedErr error
	PreviewErr       error
	ListErr          error
	CheckoutErr      error
}

var _ subscription.Provider = (*FakeProvider)(nil)

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		subscriptions: make(map[string]*subscription.Subscription),
		calls:         make(map[string]int),
	}
}

// Put stores a copy of sub
func (p *FakeProvider) Put(sub *subscription.Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscriptions[sub.ID] = clone(sub)
}

// Snapshot reads the stored subscription without counting a call
func (p *FakeProvider) Snapshot(id string) *subscription.Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sub, ok := p.subscriptions[id]; ok {
		return clone(sub)
	}
	return nil
}

func (p *FakeProvider) Calls(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[method]
}

func (p *FakeProvider) TotalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, n := range p.calls {
		total += n
	}
	return total
}

func (p *FakeProvider) RetrieveSubscription(ctx context.Context, subscriptionRef string) (*subscription.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["RetrieveSubscription"]++

	if p.RetrieveErr != nil {
		return nil, p.RetrieveErr
	}
	sub, ok := p.subscriptions[subscriptionRef]
	if !ok {
		return nil, notFound(subscriptionRef)
	}
	return clone(sub), nil
}

func (p *FakeProvider) UpdateSubscriptionItem(ctx context.Context, params subscription.UpdateItemParams) (*subscription.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["UpdateSubscriptionItem"]++
	p.UpdateCalls = append(p.UpdateCalls, params)

	if p.UpdateErr != nil {
		return nil, p.UpdateErr
	}
	sub, ok := p.subscriptions[params.SubscriptionRef]
	if !ok {
		return nil, notFound(params.SubscriptionRef)
	}

	found := false
	for i := range sub.Items {
		if sub.Items[i].ID == params.ItemID {
			sub.Items[i].PriceRef = params.PriceRef
			found = true
		}
	}
	if !found {
		return nil, ierr.NewError("no such subscription item").
			Mark(ierr.ErrProvider)
	}

	for k, v := range params.Metadata {
		if sub.Metadata == nil {
			sub.Metadata = map[string]string{}
		}
		if v == "" {
			delete(sub.Metadata, k)
			continue
		}
		sub.Metadata[k] = v
	}

	if p.UpdateAppliedErr != nil {
		return nil, p.UpdateAppliedErr
	}
	return clone(sub), nil
}

func (p *FakeProvider) ListActiveSubscriptions(ctx context.Context, customerRef string) ([]*subscription.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["ListActiveSubscriptions"]++

	if p.ListErr != nil {
		return nil, p.ListErr
	}
	out := make([]*subscription.Subscription, 0)
	for _, sub := range p.subscriptions {
		if sub.CustomerRef == customerRef && sub.Status.IsLive() {
			out = append(out, clone(sub))
		}
	}
	return out, nil
}

func (p *FakeProvider) PreviewInvoice(ctx context.Context, params subscription.PreviewParams) (*subscription.InvoicePreview, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["PreviewInvoice"]++
	p.PreviewCalls = append(p.PreviewCalls, params)

	if p.PreviewErr != nil {
		return nil, p.PreviewErr
	}
	if p.Preview == nil {
		return &subscription.InvoicePreview{Currency: "usd"}, nil
	}
	return p.Preview, nil
}

func (p *FakeProvider) CreateCheckoutSession(ctx context.Context, params subscription.CheckoutParams) (*subscription.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["CreateCheckoutSession"]++
	p.CheckoutCalls = append(p.CheckoutCalls, params)

	if p.CheckoutErr != nil {
		return nil, p.CheckoutErr
	}
	return &subscription.Session{ID: "cs_test_1", URL: "https://checkout.example.com/cs_test_1"}, nil
}

func (p *FakeProvider) CreatePortalSession(ctx context.Context, params subscription.PortalParams) (*subscription.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["CreatePortalSession"]++
	p.PortalCalls = append(p.PortalCalls, params)
	return &subscription.Session{ID: "bps_test_1", URL: "https://billing.example.com/session/bps_test_1"}, nil
}

func notFound(ref string) error {
	return ierr.NewErrorf("subscription %s not found", ref).
		WithHint("Subscription was not found").
		Mark(ierr.ErrNotFound)
}

// clone deep copies through JSON so callers never share maps or slices with the store
func clone(sub *subscription.Subscription) *subscription.Subscription {
	raw, _ := json.Marshal(sub)
	var out subscription.Subscription
	_ = json.Unmarshal(raw, &out)
	return &out
}
