package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/flexprice/planshift/internal/logger"
	"github.com/hashicorp/go-retryablehttp"
)

// ClientConfig holds configuration for outbound provider HTTP clients
type ClientConfig struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// NewClient returns an http.Client that retries idempotent reads with backoff and
// sends every other method exactly once. A mutation that times out must surface
// to the caller as an unknown outcome, never be replayed here.
func NewClient(cfg ClientConfig, log *logger.Logger) *http.Client {
	retrying := retryablehttp.NewClient()
	retrying.RetryMax = cfg.MaxRetries
	if cfg.RetryWaitMin > 0 {
		retrying.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		retrying.RetryWaitMax = cfg.RetryWaitMax
	}
	retrying.Logger = leveledLogger{log: log}
	retrying.CheckRetry = retryablehttp.DefaultRetryPolicy
	retrying.HTTPClient.Timeout = cfg.Timeout

	direct := &http.Client{Timeout: cfg.Timeout}

	return &http.Client{
		Transport: &readRetryTransport{
			retrying: &retryablehttp.RoundTripper{Client: retrying},
			direct:   direct.Transport,
		},
		Timeout: cfg.Timeout,
	}
}

type readRetryTransport struct {
	retrying http.RoundTripper
	direct   http.RoundTripper
}

func (t *readRetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		return t.retrying.RoundTrip(req)
	}
	if t.direct == nil {
		return http.DefaultTransport.RoundTrip(req)
	}
	return t.direct.RoundTrip(req)
}

// IsTimeout reports whether err is a deadline or client timeout
func IsTimeout(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx.Err() == context.DeadlineExceeded {
		return true
	}
	type timeout interface{ Timeout() bool }
	for e := err; e != nil; {
		if t, ok := e.(timeout); ok && t.Timeout() {
			return true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return false
}

// IsInterrupted reports whether the call ended before a response was read, either
// through a timeout or because the caller's context was canceled. A write sent this
// way may or may not have been applied.
func IsInterrupted(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if IsTimeout(ctx, err) {
		return true
	}
	return errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled)
}

// leveledLogger adapts our Logger to retryablehttp.LeveledLogger
type leveledLogger struct {
	log *logger.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warnw(msg, keysAndValues...)
}
