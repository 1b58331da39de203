package v1

import (
	"io"
	"net/http"

	"github.com/flexprice/planshift/internal/api/dto"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/logger"
	"github.com/flexprice/planshift/internal/service"
	"github.com/flexprice/planshift/internal/types"
	"github.com/gin-gonic/gin"
)

// maxWebhookBody matches the provider's documented payload ceiling
const maxWebhookBody = 64 << 10

// WebhookHandler receives provider notifications
type WebhookHandler struct {
	webhookService service.WebhookService
	logger         *logger.Logger
}

func NewWebhookHandler(webhookService service.WebhookService, logger *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
		logger:         logger,
	}
}

// @Summary Handle Stripe webhook
// @Description Verify and process a Stripe event
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Stripe signature"
// @Success 200 {object} dto.WebhookResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /webhooks/stripe [post]
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	signature := c.GetHeader(types.HeaderStripeSignature)
	if signature == "" {
		c.Error(ierr.NewError("missing stripe signature header").
			WithHint("Missing Stripe-Signature header").
			Mark(ierr.ErrValidation))
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Could not read request body").
			Mark(ierr.ErrValidation))
		return
	}

	if err := h.webhookService.HandleWebhook(c.Request.Context(), body, signature); err != nil {
		h.logger.Errorw("failed to process stripe webhook", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.WebhookResponse{Received: true})
}
