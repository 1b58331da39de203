package service

import (
	"github.com/flexprice/planshift/internal/idempotency"
	"github.com/flexprice/planshift/internal/testutil"
)

func newTestParams(b *testutil.BaseServiceTestSuite) ServiceParams {
	return ServiceParams{
		Logger:         b.GetLogger(),
		Config:         b.GetConfig(),
		Clock:          b.GetClock(),
		Catalog:        b.GetCatalog(),
		Provider:       b.GetProvider(),
		Cache:          b.GetCache(),
		ProfileRepo:    b.GetStores().ProfileRepo,
		AuditRepo:      b.GetStores().AuditRepo,
		AuditPublisher: b.GetPublisher(),
		Idempotency:    idempotency.NewGenerator(),
	}
}
