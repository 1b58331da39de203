package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	v1 "github.com/flexprice/planshift/internal/api/v1"
	"github.com/flexprice/planshift/internal/auth"
	"github.com/flexprice/planshift/internal/domain/plan"
	"github.com/flexprice/planshift/internal/domain/subscription"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/idempotency"
	"github.com/flexprice/planshift/internal/service"
	"github.com/flexprice/planshift/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
)

type stubParser struct {
	event *subscription.Event
}

func (p *stubParser) ParseWebhookEvent(payload []byte, signature string) (*subscription.Event, error) {
	if signature != "valid" {
		return nil, ierr.NewError("signature mismatch").
			WithHint("Invalid webhook signature").
			Mark(ierr.ErrValidation)
	}
	return p.event, nil
}

type RouterSuite struct {
	testutil.BaseServiceTestSuite
	router    *gin.Engine
	parser    *stubParser
	token     string
	periodEnd time.Time
}

func TestRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	cfg := s.GetConfig()
	cfg.Auth.Secret = "router-test-secret"
	cfg.RateLimit.RequestsPerMinute = 0
	s.periodEnd = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	s.router = s.buildRouter()

	token, err := auth.GenerateToken(cfg, testutil.DefaultUserID, testutil.DefaultUserEmail, time.Hour)
	s.Require().NoError(err)
	s.token = token
}

func (s *RouterSuite) buildRouter() *gin.Engine {
	params := service.ServiceParams{
		Logger:         s.GetLogger(),
		Config:         s.GetConfig(),
		Clock:          s.GetClock(),
		Catalog:        s.GetCatalog(),
		Provider:       s.GetProvider(),
		Cache:          s.GetCache(),
		ProfileRepo:    s.GetStores().ProfileRepo,
		AuditRepo:      s.GetStores().AuditRepo,
		AuditPublisher: s.GetPublisher(),
		Idempotency:    idempotency.NewGenerator(),
	}
	s.parser = &stubParser{}
	handlers := Handlers{
		Health: v1.NewHealthHandler(s.GetLogger()),
		Billing: v1.NewBillingHandler(
			service.NewBillingService(params),
			service.NewCheckoutService(params),
			s.GetLogger(),
		),
		Webhook: v1.NewWebhookHandler(service.NewWebhookService(params, s.parser), s.GetLogger()),
	}
	return NewRouter(handlers, s.GetConfig(), s.GetLogger(), auth.NewProvider(s.GetConfig()))
}

func (s *RouterSuite) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RouterSuite) decode(w *httptest.ResponseRecorder, out any) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), out))
}

func (s *RouterSuite) TestHealth() {
	s.token = ""
	w := s.do(http.MethodGet, "/v1/health", nil, nil)
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"status":"ok"}`, w.Body.String())
	s.NotEmpty(w.Header().Get("X-Request-ID"))
}

func (s *RouterSuite) TestUnknownPlanIsRejectedWithoutProviderCalls() {
	s.SeedSubscription(plan.PlanBasic, plan.PeriodMonthly, s.periodEnd)

	w := s.do(http.MethodPost, "/v1/billing/plan-change", map[string]string{
		"target_plan_id": "enterprise",
		"billing_period": "monthly",
	}, nil)

	s.Equal(http.StatusBadRequest, w.Code)
	var body ierr.ErrorResponse
	s.decode(w, &body)
	s.NotEmpty(body.Error)
	s.Contains(body.Details, "unknown_plan")
	s.Equal(0, s.GetProvider().TotalCalls())
}

func (s *RouterSuite) TestMissingTokenIsUnauthorized() {
	s.token = ""
	w := s.do(http.MethodPost, "/v1/billing/plan-change", map[string]string{
		"target_plan_id": "pro",
		"billing_period": "monthly",
	}, nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	var body ierr.ErrorResponse
	s.decode(w, &body)
	s.NotEmpty(body.Error)
	s.Equal(0, s.GetProvider().TotalCalls())
}

func (s *RouterSuite) TestInvalidTokenIsUnauthorized() {
	s.token = "not-a-jwt"
	w := s.do(http.MethodGet, "/v1/billing/subscription", nil, nil)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *RouterSuite) TestMalformedBodyIsBadRequest() {
	req := httptest.NewRequest(http.MethodPost, "/v1/billing/plan-change", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterSuite) TestUpgrade() {
	s.SeedSubscription(plan.PlanBasic, plan.PeriodMonthly, s.periodEnd)

	w := s.do(http.MethodPost, "/v1/billing/plan-change", map[string]string{
		"target_plan_id": "advanced",
		"billing_period": "monthly",
	}, map[string]string{v1.HeaderIdempotencyKey: "abc"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var body map[string]any
	s.decode(w, &body)
	s.Equal("upgrade_immediate", body["type"])
	s.NotContains(body, "effective_date")
	s.Len(s.GetProvider().UpdateCalls, 1)
}

func (s *RouterSuite) TestDowngrade() {
	s.SeedSubscription(plan.PlanPlus, plan.PeriodMonthly, s.periodEnd)

	w := s.do(http.MethodPost, "/v1/billing/plan-change", map[string]string{
		"target_plan_id": "basic",
		"billing_period": "monthly",
	}, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var body map[string]any
	s.decode(w, &body)
	s.Equal("downgrade_scheduled", body["type"])
	s.Equal("2025-03-01T00:00:00Z", body["effective_date"])
}

func (s *RouterSuite) TestStalePlanIsConflict() {
	s.SeedSubscription(plan.PlanPro, plan.PeriodMonthly, s.periodEnd)

	w := s.do(http.MethodPost, "/v1/billing/plan-change", map[string]string{
		"target_plan_id":   "advanced",
		"billing_period":   "monthly",
		"expected_plan_id": "basic",
	}, nil)
	s.Equal(http.StatusConflict, w.Code)
	s.Empty(s.GetProvider().UpdateCalls)
}

func (s *RouterSuite) TestNoSubscriptionIsNotFound() {
	w := s.do(http.MethodPost, "/v1/billing/plan-change/cancel", nil, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *RouterSuite) TestAmbiguousOutcomeHidesDetails() {
	s.SeedSubscription(plan.PlanBasic, plan.PeriodMonthly, s.periodEnd)
	s.GetProvider().UpdateAppliedErr = ierr.NewError("read tcp: i/o timeout").
		WithHint("The change may or may not have been applied. Refresh before retrying.").
		WithReportableDetails(map[string]any{"provider_request": "req_123"}).
		Mark(ierr.ErrAmbiguousOutcome)

	w := s.do(http.MethodPost, "/v1/billing/plan-change", map[string]string{
		"target_plan_id": "pro",
		"billing_period": "monthly",
	}, nil)
	s.Equal(http.StatusInternalServerError, w.Code)

	var body ierr.ErrorResponse
	s.decode(w, &body)
	s.NotContains(body.Error, "tcp")
	s.Empty(body.Details)
}

func (s *RouterSuite) TestPreviewDowngrade() {
	s.SeedSubscription(plan.PlanAdvanced, plan.PeriodAnnual, s.periodEnd)

	w := s.do(http.MethodPost, "/v1/billing/plan-change/preview", map[string]string{
		"target_plan_id": "starter",
		"billing_period": "annual",
	}, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var body map[string]any
	s.decode(w, &body)
	s.Equal(false, body["preview_available"])
	s.Equal("downgrade", body["change_type"])
	s.NotContains(body, "immediate_charge")
}

func (s *RouterSuite) TestPreviewUpgradeInMajorUnits() {
	s.SeedSubscription(plan.PlanBasic, plan.PeriodMonthly, s.periodEnd)
	s.GetProvider().Preview = &subscription.InvoicePreview{
		Currency: "usd",
		Lines: []subscription.InvoiceLine{
			{Amount: -1200, Proration: true},
			{Amount: 5000, Proration: true},
		},
	}

	w := s.do(http.MethodPost, "/v1/billing/plan-change/preview", map[string]string{
		"target_plan_id": "pro",
		"billing_period": "monthly",
	}, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var body map[string]any
	s.decode(w, &body)
	s.Equal(true, body["preview_available"])
	s.Equal("38", body["immediate_charge"])
	s.Equal("usd", body["currency"])
}

func (s *RouterSuite) TestHistoryLimitValidation() {
	s.SeedSubscription(plan.PlanBasic, plan.PeriodMonthly, s.periodEnd)

	w := s.do(http.MethodGet, "/v1/billing/history?limit=abc", nil, nil)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/v1/billing/history?limit=5", nil, nil)
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"items":[]}`, w.Body.String())
}

func (s *RouterSuite) TestCheckoutConflictsWithLiveSubscription() {
	s.SeedSubscription(plan.PlanBasic, plan.PeriodMonthly, s.periodEnd)

	w := s.do(http.MethodPost, "/v1/billing/checkout", map[string]string{
		"plan_id":        "pro",
		"billing_period": "monthly",
	}, nil)
	s.Equal(http.StatusConflict, w.Code)
	s.Empty(s.GetProvider().CheckoutCalls)
}

func (s *RouterSuite) TestWebhookSignature() {
	s.token = ""
	w := s.do(http.MethodPost, "/v1/webhooks/stripe", map[string]string{"id": "evt_1"}, nil)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/v1/webhooks/stripe", map[string]string{"id": "evt_1"},
		map[string]string{"Stripe-Signature": "forged"})
	s.Equal(http.StatusBadRequest, w.Code)

	s.parser.event = &subscription.Event{ID: "evt_1", Type: "invoice.paid"}
	w = s.do(http.MethodPost, "/v1/webhooks/stripe", map[string]string{"id": "evt_1"},
		map[string]string{"Stripe-Signature": "valid"})
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"received":true}`, w.Body.String())
}

func (s *RouterSuite) TestMutationsAreRateLimited() {
	s.GetConfig().RateLimit.RequestsPerMinute = 1
	s.GetConfig().RateLimit.Burst = 1
	s.router = s.buildRouter()
	s.SeedSubscription(plan.PlanBasic, plan.PeriodMonthly, s.periodEnd)

	body := map[string]string{"target_plan_id": "enterprise", "billing_period": "monthly"}
	first := s.do(http.MethodPost, "/v1/billing/plan-change", body, nil)
	s.Equal(http.StatusBadRequest, first.Code)

	second := s.do(http.MethodPost, "/v1/billing/plan-change", body, nil)
	s.Equal(http.StatusTooManyRequests, second.Code)

	// Reads are not limited
	read := s.do(http.MethodGet, "/v1/billing/plans", nil, nil)
	s.Equal(http.StatusOK, read.Code)
}
