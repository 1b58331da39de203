package stripe

import (
	"context"

	"github.com/flexprice/planshift/internal/domain/subscription"
	"github.com/flexprice/planshift/internal/types"
	"github.com/stripe/stripe-go/v82"
)

// PreviewInvoice asks Stripe for the upcoming invoice as if the item price had been
// swapped with prorations at ProrationDate. Nothing is written on the provider.
func (c *Client) PreviewInvoice(ctx context.Context, p subscription.PreviewParams) (*subscription.InvoicePreview, error) {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	details := &stripe.InvoiceCreatePreviewSubscriptionDetailsParams{
		Items: []*stripe.InvoiceCreatePreviewSubscriptionDetailsItemParams{
			{
				ID:    stripe.String(p.ItemID),
				Price: stripe.String(p.PriceRef),
			},
		},
		ProrationBehavior: stripe.String(string(types.ProrationBehaviorCreateProrations)),
	}
	if !p.ProrationDate.IsZero() {
		details.ProrationDate = stripe.Int64(p.ProrationDate.Unix())
	}

	params := &stripe.InvoiceCreatePreviewParams{
		Subscription:        stripe.String(p.SubscriptionRef),
		SubscriptionDetails: details,
	}
	if p.CustomerRef != "" {
		params.Customer = stripe.String(p.CustomerRef)
	}

	inv, err := c.api.V1Invoices.CreatePreview(callCtx, params)
	if err != nil {
		return nil, c.mapError(callCtx, "preview_invoice", err, false,
			"subscription_id", p.SubscriptionRef,
			"price_id", p.PriceRef,
		)
	}

	preview := &subscription.InvoicePreview{Currency: string(inv.Currency)}
	if inv.Lines == nil {
		return preview, nil
	}
	for _, line := range inv.Lines.Data {
		if line == nil {
			continue
		}
		preview.Lines = append(preview.Lines, subscription.InvoiceLine{
			Amount:    line.Amount,
			Proration: isProration(line),
		})
	}
	return preview, nil
}

func isProration(line *stripe.InvoiceLineItem) bool {
	if line.Parent == nil {
		return false
	}
	if d := line.Parent.SubscriptionItemDetails; d != nil && d.Proration {
		return true
	}
	if d := line.Parent.InvoiceItemDetails; d != nil && d.Proration {
		return true
	}
	return false
}
