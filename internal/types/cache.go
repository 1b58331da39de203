package types

import (
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/samber/lo"
)

// CacheStrategy selects how long a cached subscription stays valid
type CacheStrategy string

const (
	// CacheStrategyDaily keeps the entry until the next configured reset hour
	CacheStrategyDaily CacheStrategy = "daily"
	// CacheStrategyShort keeps the entry for the configured short TTL
	CacheStrategyShort CacheStrategy = "short"
)

func (s CacheStrategy) Validate() error {
	allowed := []CacheStrategy{CacheStrategyDaily, CacheStrategyShort}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid cache strategy").
			WithHint("Cache strategy must be daily or short").
			WithReportableDetails(map[string]any{
				"allowed":  allowed,
				"provided": s,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// CacheBackend selects the store behind the cache
type CacheBackend string

const (
	CacheBackendMemory CacheBackend = "memory"
	CacheBackendRedis  CacheBackend = "redis"
)
