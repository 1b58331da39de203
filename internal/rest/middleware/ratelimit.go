package middleware

import (
	"sync"

	"github.com/flexprice/planshift/internal/config"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/types"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware applies a token bucket per authenticated user. It must run
// after AuthenticateMiddleware; anonymous requests share one bucket.
func RateLimitMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	perMinute := cfg.RateLimit.RequestsPerMinute
	if perMinute <= 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	burst := cfg.RateLimit.Burst
	if burst <= 0 {
		burst = perMinute
	}

	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)
	limiterFor := func(userID string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[userID]
		if !ok {
			l = rate.NewLimiter(rate.Limit(float64(perMinute)/60), burst)
			limiters[userID] = l
		}
		return l
	}

	return func(c *gin.Context) {
		userID := types.GetUserID(c.Request.Context())
		if !limiterFor(userID).Allow() {
			_ = c.Error(ierr.NewError("rate limit exceeded").
				WithHint("Too many requests. Please wait a moment and try again.").
				WithReportableDetails(map[string]any{"requests_per_minute": perMinute}).
				Mark(ierr.ErrRateLimited))
			c.Abort()
			return
		}
		c.Next()
	}
}
