package cache

import (
	"context"

	"github.com/flexprice/planshift/internal/config"
	"github.com/flexprice/planshift/internal/logger"
	"github.com/flexprice/planshift/internal/types"
)

// Initialize builds the configured cache backend
func Initialize(cfg *config.Configuration, log *logger.Logger) (Cache, error) {
	log.Infow("initializing cache", "backend", cfg.Cache.Backend)

	switch cfg.Cache.Backend {
	case types.CacheBackendRedis:
		c, err := NewRedisCache(context.Background(), cfg.Cache.Redis)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return NewInMemoryCache(), nil
	}
}
