package stripe

import (
	"context"

	"github.com/cockroachdb/errors"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/httpclient"
	"github.com/stripe/stripe-go/v82"
)

// mapError converts a Stripe failure into the service error taxonomy. The provider
// message is logged and attached as an internal message only; callers see a hint.
// A mutation that timed out or was canceled in flight is an unknown outcome because
// Stripe may have applied it.
func (c *Client) mapError(ctx context.Context, op string, err error, mutation bool, fields ...interface{}) error {
	if mutation && httpclient.IsInterrupted(ctx, err) {
		c.logger.Errorw("stripe mutation interrupted, outcome unknown",
			append([]interface{}{"operation", op, "error", err}, fields...)...)
		if c.sentry != nil {
			c.sentry.CaptureException(err)
		}
		return ierr.WithError(err).
			WithMessagef("stripe %s interrupted", op).
			WithHint("The billing provider did not respond in time. Refresh your subscription before retrying.").
			Mark(ierr.ErrAmbiguousOutcome)
	}

	details := map[string]any{"operation": op}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		details["provider_status"] = stripeErr.HTTPStatusCode
		details["provider_code"] = string(stripeErr.Code)
		details["provider_request_id"] = stripeErr.RequestID
	}

	c.logger.Errorw("stripe call failed",
		append([]interface{}{"operation", op, "error", err, "details", details}, fields...)...)

	if stripeErr != nil && stripeErr.HTTPStatusCode == 404 {
		return ierr.WithError(err).
			WithMessagef("stripe %s", op).
			WithHint("The billing record could not be found").
			WithReportableDetails(details).
			Mark(ierr.ErrNotFound)
	}

	return ierr.WithError(err).
		WithMessagef("stripe %s", op).
		WithHint("The billing provider could not complete the request").
		WithReportableDetails(details).
		Mark(ierr.ErrProvider)
}
