package v1

import (
	"net/http"
	"strconv"

	"github.com/flexprice/planshift/internal/api/dto"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/logger"
	"github.com/flexprice/planshift/internal/service"
	"github.com/flexprice/planshift/internal/types"
	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey lets clients make a retried submission replay the original
const HeaderIdempotencyKey = "Idempotency-Key"

const defaultHistoryLimit = 50

type BillingHandler struct {
	billingService  service.BillingService
	checkoutService service.CheckoutService
	log             *logger.Logger
}

func NewBillingHandler(
	billingService service.BillingService,
	checkoutService service.CheckoutService,
	log *logger.Logger,
) *BillingHandler {
	return &BillingHandler{
		billingService:  billingService,
		checkoutService: checkoutService,
		log:             log,
	}
}

// @Summary List plans
// @Description List the plan tiers in ascending order with their configured billing periods
// @Tags Billing
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.ListPlansResponse
// @Router /billing/plans [get]
func (h *BillingHandler) ListPlans(c *gin.Context) {
	resp, err := h.billingService.ListPlans(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Get subscription
// @Description Get the signed in user's subscription summary, served from cache when fresh
// @Tags Billing
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /billing/subscription [get]
func (h *BillingHandler) GetSubscription(c *gin.Context) {
	resp, err := h.billingService.GetSubscription(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Change plan
// @Description Upgrade immediately with proration, or schedule a downgrade for the end of the period
// @Tags Billing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.ChangePlanRequest true "Plan change request"
// @Success 200 {object} dto.ChangePlanResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /billing/plan-change [post]
func (h *BillingHandler) ChangePlan(c *gin.Context) {
	var req dto.ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidBody(err))
		return
	}

	log := h.log.With(
		"user_id", types.GetUserID(c.Request.Context()),
		"target_plan_id", req.TargetPlanID,
		"billing_period", req.BillingPeriod,
		"operation", "change_plan",
	)
	log.Infow("processing plan change request")

	resp, err := h.billingService.ChangePlan(c.Request.Context(), req, c.GetHeader(HeaderIdempotencyKey))
	if err != nil {
		log.Warnw("plan change failed", "error", err)
		c.Error(err)
		return
	}

	log.Infow("plan change completed", "type", resp.Type)
	c.JSON(http.StatusOK, resp)
}

// @Summary Preview plan change
// @Description Preview the prorated charge of an upgrade. Downgrades and unavailable previews return preview_available=false
// @Tags Billing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.ChangePlanRequest true "Plan change request"
// @Success 200 {object} dto.PreviewResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /billing/plan-change/preview [post]
func (h *BillingHandler) PreviewChange(c *gin.Context) {
	var req dto.ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidBody(err))
		return
	}

	resp, err := h.billingService.PreviewChange(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Cancel scheduled change
// @Description Remove a pending downgrade. Succeeds when nothing is pending.
// @Tags Billing
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.SuccessResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /billing/plan-change/cancel [post]
func (h *BillingHandler) CancelScheduledChange(c *gin.Context) {
	resp, err := h.billingService.CancelScheduledChange(c.Request.Context(), c.GetHeader(HeaderIdempotencyKey))
	if err != nil {
		h.log.Warnw("cancel scheduled change failed",
			"user_id", types.GetUserID(c.Request.Context()),
			"error", err,
		)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary List billing history
// @Description List audit records for the active subscription, newest first
// @Tags Billing
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum number of records"
// @Success 200 {object} dto.ListHistoryResponse
// @Router /billing/history [get]
func (h *BillingHandler) ListHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.Error(ierr.NewErrorf("invalid limit %q", raw).
				WithHint("limit must be a positive integer").
				Mark(ierr.ErrValidation))
			return
		}
		limit = n
	}

	resp, err := h.billingService.ListHistory(c.Request.Context(), limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Create checkout session
// @Tags Billing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreateCheckoutRequest true "Checkout request"
// @Success 200 {object} dto.SessionResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Router /billing/checkout [post]
func (h *BillingHandler) CreateCheckoutSession(c *gin.Context) {
	var req dto.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidBody(err))
		return
	}

	resp, err := h.checkoutService.CreateCheckoutSession(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Create billing portal session
// @Tags Billing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreatePortalRequest false "Portal request"
// @Success 200 {object} dto.SessionResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /billing/portal [post]
func (h *BillingHandler) CreatePortalSession(c *gin.Context) {
	var req dto.CreatePortalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(invalidBody(err))
			return
		}
	}

	resp, err := h.checkoutService.CreatePortalSession(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func invalidBody(err error) error {
	return ierr.WithError(err).
		WithHint("Invalid request format").
		Mark(ierr.ErrValidation)
}
