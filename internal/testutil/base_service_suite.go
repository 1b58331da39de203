package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/flexprice/planshift/internal/cache"
	"github.com/flexprice/planshift/internal/config"
	"github.com/flexprice/planshift/internal/domain/plan"
	"github.com/flexprice/planshift/internal/domain/profile"
	"github.com/flexprice/planshift/internal/domain/subscription"
	"github.com/flexprice/planshift/internal/logger"
	"github.com/flexprice/planshift/internal/types"
	"github.com/flexprice/planshift/internal/validator"
	"github.com/stretchr/testify/suite"
)

const (
	DefaultCustomerRef     = "cus_test"
	DefaultSubscriptionRef = "sub_test"
	DefaultItemID          = "si_test"
)

// Stores holds all the repository fakes for testing
type Stores struct {
	ProfileRepo *InMemoryProfileStore
	AuditRepo   *InMemoryAuditStore
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	stores    Stores
	provider  *FakeProvider
	cache     *RecordingCache
	publisher *InMemoryAuditPublisher
	catalog   *plan.Catalog
	clock     *ManualClock
	logger    *logger.Logger
	config    *config.Configuration
	now       time.Time
}

// TestPriceRef is the price reference configured for (plan, period) in tests
func TestPriceRef(id plan.PlanID, period plan.Period) string {
	return fmt.Sprintf("price_%s_%s", id, period)
}

// TestPrices configures every tier for both periods
func TestPrices() map[string]map[string]string {
	prices := make(map[string]map[string]string)
	for _, id := range plan.CanonicalOrder {
		prices[string(id)] = map[string]string{}
		for _, period := range plan.Periods {
			prices[string(id)][string(period)] = TestPriceRef(id, period)
		}
	}
	return prices
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	cfg := config.GetDefaultConfig()
	cfg.Logging.Level = types.LogLevelInfo
	cfg.Stripe.Prices = TestPrices()
	cfg.Stripe.CheckoutSuccessURL = "https://app.example.com/billing/success"
	cfg.Stripe.CheckoutCancelURL = "https://app.example.com/billing"
	cfg.Stripe.PortalReturnURL = "https://app.example.com/billing"
	s.config = cfg
	s.logger = logger.NewNoopLogger()
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.now = time.Date(2025, time.February, 10, 12, 0, 0, 0, time.UTC)
	s.ctx = SetupContext()
	s.clock = NewManualClock(s.now)
	s.stores = Stores{
		ProfileRepo: NewInMemoryProfileStore(),
		AuditRepo:   NewInMemoryAuditStore(),
	}
	s.provider = NewFakeProvider()
	s.publisher = NewInMemoryAuditPublisher()
	s.catalog = plan.NewCatalogFromPrices(s.config.Stripe.Prices, s.logger)
	s.cache = NewRecordingCache(cache.NewSubscriptionCacheFromConfig(
		cache.NewInMemoryCache(), s.clock, s.config, s.logger))
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.stores.ProfileRepo.Clear()
	s.stores.AuditRepo.Clear()
}

func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

func (s *BaseServiceTestSuite) GetProvider() *FakeProvider {
	return s.provider
}

func (s *BaseServiceTestSuite) GetCache() *RecordingCache {
	return s.cache
}

func (s *BaseServiceTestSuite) GetPublisher() *InMemoryAuditPublisher {
	return s.publisher
}

func (s *BaseServiceTestSuite) GetCatalog() *plan.Catalog {
	return s.catalog
}

func (s *BaseServiceTestSuite) GetClock() *ManualClock {
	return s.clock
}

func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now
}

// SeedSubscription stores a single item subscription on the fake provider and links
// it to the default user's profile.
func (s *BaseServiceTestSuite) SeedSubscription(id plan.PlanID, period plan.Period, periodEnd time.Time) *subscription.Subscription {
	sub := &subscription.Subscription{
		ID:               DefaultSubscriptionRef,
		CustomerRef:      DefaultCustomerRef,
		Status:           types.SubscriptionStatusActive,
		CurrentPeriodEnd: periodEnd.UTC(),
		Currency:         "usd",
		Items: []subscription.Item{
			{ID: DefaultItemID, PriceRef: TestPriceRef(id, period), Quantity: 1},
		},
		Metadata: map[string]string{},
	}
	s.provider.Put(sub)

	err := s.stores.ProfileRepo.Upsert(s.ctx, &profile.Profile{
		UserID:                DefaultUserID,
		Email:                 DefaultUserEmail,
		CustomerRef:           DefaultCustomerRef,
		ActiveSubscriptionRef: DefaultSubscriptionRef,
		CachedPlanID:          string(id),
		CreatedAt:             s.now,
		UpdatedAt:             s.now,
	})
	s.Require().NoError(err)
	return sub
}
