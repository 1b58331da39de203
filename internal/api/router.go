package api

import (
	v1 "github.com/flexprice/planshift/internal/api/v1"
	"github.com/flexprice/planshift/internal/auth"
	"github.com/flexprice/planshift/internal/config"
	"github.com/flexprice/planshift/internal/logger"
	"github.com/flexprice/planshift/internal/rest/middleware"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health  *v1.HealthHandler
	Billing *v1.BillingHandler
	Webhook *v1.WebhookHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger, authProvider auth.Provider) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware,
		middleware.SentryMiddleware(cfg),
		middleware.ErrorHandler(logger),
	)

	router.GET("/health", handlers.Health.Health)

	public := router.Group("/v1")
	public.GET("/health", handlers.Health.Health)

	webhooks := public.Group("/webhooks")
	{
		webhooks.POST("/stripe", handlers.Webhook.HandleStripeWebhook)
	}

	private := public.Group("/")
	private.Use(middleware.AuthenticateMiddleware(authProvider, logger))

	billing := private.Group("/billing")
	{
		billing.GET("/plans", handlers.Billing.ListPlans)
		billing.GET("/subscription", handlers.Billing.GetSubscription)
		billing.GET("/history", handlers.Billing.ListHistory)

		mutations := billing.Group("/")
		mutations.Use(middleware.RateLimitMiddleware(cfg))
		mutations.POST("/plan-change", handlers.Billing.ChangePlan)
		mutations.POST("/plan-change/preview", handlers.Billing.PreviewChange)
		mutations.POST("/plan-change/cancel", handlers.Billing.CancelScheduledChange)
		mutations.POST("/checkout", handlers.Billing.CreateCheckoutSession)
		mutations.POST("/portal", handlers.Billing.CreatePortalSession)
	}

	return router
}
