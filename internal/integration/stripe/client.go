package stripe

import (
	"context"
	"time"

	"github.com/flexprice/planshift/internal/config"
	"github.com/flexprice/planshift/internal/httpclient"
	"github.com/flexprice/planshift/internal/logger"
	"github.com/flexprice/planshift/internal/sentry"
	"github.com/stripe/stripe-go/v82"
)

const defaultTimeout = 10 * time.Second

// Client implements subscription.Provider against the Stripe API
type Client struct {
	api           *stripe.Client
	webhookSecret string
	timeout       time.Duration
	logger        *logger.Logger
	sentry        *sentry.Service
}

// NewClient builds the Stripe client. Stripe's own network retries are disabled;
// reads are retried by the transport and mutations are sent once.
func NewClient(cfg *config.Configuration, log *logger.Logger) *Client {
	timeout := cfg.Stripe.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	// the per call context deadline is the effective bound; the transport limit is a backstop
	httpClient := httpclient.NewClient(httpclient.ClientConfig{
		Timeout:    timeout + time.Second,
		MaxRetries: cfg.Stripe.MaxRetries,
	}, log)

	backendConfig := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &leveledLogger{log: log},
	}
	if cfg.Stripe.APIBase != "" {
		backendConfig.URL = stripe.String(cfg.Stripe.APIBase)
	}

	return &Client{
		api:           stripe.NewClient(cfg.Stripe.SecretKey, stripe.WithBackends(stripe.NewBackendsWithConfig(backendConfig))),
		webhookSecret: cfg.Stripe.WebhookSecret,
		timeout:       timeout,
		logger:        log,
	}
}

// WithSentry records a span per provider call and a breadcrumb per mutation
func (c *Client) WithSentry(svc *sentry.Service) *Client {
	c.sentry = svc
	return c
}

func (c *Client) startSpan(ctx context.Context, operation string, params map[string]interface{}) (context.Context, func()) {
	if c.sentry == nil || !c.sentry.Enabled() {
		return ctx, func() {}
	}
	span, spanCtx := c.sentry.StartProviderSpan(ctx, operation, params)
	return spanCtx, func() { sentry.FinishSpan(span) }
}

// withTimeout bounds every provider call
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// leveledLogger adapts our Logger to stripe.LeveledLoggerInterface
type leveledLogger struct {
	log *logger.Logger
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) { l.log.Debugf(format, v...) }
func (l *leveledLogger) Infof(format string, v ...interface{})  { l.log.Debugf(format, v...) }
func (l *leveledLogger) Warnf(format string, v ...interface{})  { l.log.Warnf(format, v...) }
func (l *leveledLogger) Errorf(format string, v ...interface{}) { l.log.Errorf(format, v...) }
