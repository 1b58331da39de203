package service

import (
	"github.com/flexprice/planshift/internal/cache"
	"github.com/flexprice/planshift/internal/config"
	"github.com/flexprice/planshift/internal/domain/audit"
	"github.com/flexprice/planshift/internal/domain/plan"
	"github.com/flexprice/planshift/internal/domain/profile"
	"github.com/flexprice/planshift/internal/domain/subscription"
	"github.com/flexprice/planshift/internal/idempotency"
	"github.com/flexprice/planshift/internal/logger"
	"github.com/flexprice/planshift/internal/publisher"
	"github.com/flexprice/planshift/internal/types"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	Clock  types.Clock

	Catalog  *plan.Catalog
	Provider subscription.Provider
	Cache    cache.SubscriptionCache

	// Repositories
	ProfileRepo profile.Repository
	AuditRepo   audit.Repository

	// Publishers
	AuditPublisher publisher.AuditPublisher

	Idempotency *idempotency.Generator
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	clock types.Clock,
	catalog *plan.Catalog,
	provider subscription.Provider,
	subscriptionCache cache.SubscriptionCache,
	profileRepo profile.Repository,
	auditRepo audit.Repository,
	auditPublisher publisher.AuditPublisher,
) ServiceParams {
	return ServiceParams{
		Logger:         logger,
		Config:         config,
		Clock:          clock,
		Catalog:        catalog,
		Provider:       provider,
		Cache:          subscriptionCache,
		ProfileRepo:    profileRepo,
		AuditRepo:      auditRepo,
		AuditPublisher: auditPublisher,
		Idempotency:    idempotency.NewGenerator(),
	}
}
