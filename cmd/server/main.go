package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/flexprice/planshift/internal/api"
	v1 "github.com/flexprice/planshift/internal/api/v1"
	"github.com/flexprice/planshift/internal/auth"
	"github.com/flexprice/planshift/internal/cache"
	"github.com/flexprice/planshift/internal/config"
	"github.com/flexprice/planshift/internal/domain/audit"
	"github.com/flexprice/planshift/internal/domain/plan"
	"github.com/flexprice/planshift/internal/domain/subscription"
	"github.com/flexprice/planshift/internal/dynamodb"
	"github.com/flexprice/planshift/internal/integration/stripe"
	"github.com/flexprice/planshift/internal/logger"
	"github.com/flexprice/planshift/internal/postgres"
	"github.com/flexprice/planshift/internal/publisher"
	"github.com/flexprice/planshift/internal/pubsub"
	"github.com/flexprice/planshift/internal/pubsub/kafka"
	"github.com/flexprice/planshift/internal/pubsub/memory"
	ddbrepo "github.com/flexprice/planshift/internal/repository/dynamodb"
	pgrepo "github.com/flexprice/planshift/internal/repository/postgres"
	"github.com/flexprice/planshift/internal/sentry"
	"github.com/flexprice/planshift/internal/service"
	"github.com/flexprice/planshift/internal/types"
	"github.com/flexprice/planshift/internal/validator"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

func init() {
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	opts = append(opts,
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Clock
			types.NewSystemClock,

			// Catalog
			plan.NewCatalog,

			// Cache
			cache.Initialize,
			cache.NewSubscriptionCacheFromConfig,

			// Postgres
			postgres.NewDB,

			// Billing provider
			provideStripeClient,
			provideProvider,
			provideWebhookParser,

			// Identity
			auth.NewProvider,

			// Repositories
			pgrepo.NewProfileRepository,
			provideAuditRepository,

			// Event bus
			providePubSub,
			providePublisher,
			publisher.NewAuditPublisher,
		),
	)

	opts = append(opts, sentry.Module())

	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,

			service.NewBillingService,
			service.NewCheckoutService,
			provideWebhookService,
		),
	)

	opts = append(opts,
		fx.Provide(
			provideHandlers,
			provideRouter,
		),
		fx.Invoke(
			registerCloseHooks,
			startServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideStripeClient(cfg *config.Configuration, log *logger.Logger, sentryService *sentry.Service) *stripe.Client {
	return stripe.NewClient(cfg, log).WithSentry(sentryService)
}

func provideProvider(client *stripe.Client) subscription.Provider {
	return client
}

func provideWebhookParser(client *stripe.Client) service.WebhookParser {
	return client
}

func provideWebhookService(params service.ServiceParams, parser service.WebhookParser) service.WebhookService {
	return service.NewWebhookService(params, parser)
}

// provideAuditRepository selects the audit backend. The DynamoDB client is only
// built when it is the configured store.
func provideAuditRepository(cfg *config.Configuration, db *postgres.DB, log *logger.Logger) (audit.Repository, error) {
	switch cfg.Audit.Store {
	case types.AuditStoreDynamoDB:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client, err := dynamodb.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		log.Infow("using dynamodb audit store", "table", cfg.DynamoDB.AuditTableName)
		return ddbrepo.NewAuditRepository(client.DB(), cfg.DynamoDB.AuditTableName, log), nil
	default:
		return pgrepo.NewAuditRepository(db, log), nil
	}
}

func providePubSub(cfg *config.Configuration, log *logger.Logger) (pubsub.PubSub, error) {
	switch cfg.EventBus.PubSub {
	case types.KafkaPubSub:
		return kafka.NewPubSub(cfg, log)
	default:
		return memory.NewPubSub(log), nil
	}
}

func providePublisher(ps pubsub.PubSub) pubsub.Publisher {
	return ps
}

func provideHandlers(
	logger *logger.Logger,
	billingService service.BillingService,
	checkoutService service.CheckoutService,
	webhookService service.WebhookService,
) api.Handlers {
	return api.Handlers{
		Health:  v1.NewHealthHandler(logger),
		Billing: v1.NewBillingHandler(billingService, checkoutService, logger),
		Webhook: v1.NewWebhookHandler(webhookService, logger),
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration, logger *logger.Logger, authProvider auth.Provider) *gin.Engine {
	return api.NewRouter(handlers, cfg, logger, authProvider)
}

func registerCloseHooks(lc fx.Lifecycle, db *postgres.DB, ps pubsub.PubSub, log *logger.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := ps.Close(); err != nil {
				log.Warnw("failed to close event bus", "error", err)
			}
			db.Close()
			return nil
		},
	})
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	ps pubsub.PubSub,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal:
		startAPIServer(lc, r, cfg, log)
		startAuditLogConsumer(lc, ps, cfg, log)
	case types.ModeAPI:
		startAPIServer(lc, r, cfg, log)
	case types.ModeAWSLambdaAPI:
		startAWSLambdaAPI(r)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	log.Info("Registering API server start hook")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting API server...")
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return nil
		},
	})
}

// startAuditLogConsumer tails the audit topic in local mode so published plan
// changes are visible without a downstream consumer
func startAuditLogConsumer(
	lc fx.Lifecycle,
	subscriber pubsub.Subscriber,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			messages, err := subscriber.Subscribe(ctx, cfg.Audit.Topic)
			if err != nil {
				cancel()
				return err
			}

			go func() {
				for msg := range messages {
					var record audit.Record
					if err := json.Unmarshal(msg.Payload, &record); err != nil {
						log.Warnw("dropping malformed audit event", "message_id", msg.UUID, "error", err)
						msg.Ack()
						continue
					}
					log.Infow("audit event",
						"audit_id", record.ID,
						"event_type", record.EventType,
						"subscription_ref", record.SubscriptionRef,
						"plan_id", record.PlanID,
					)
					msg.Ack()
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func startAWSLambdaAPI(r *gin.Engine) {
	ginLambda := ginadapter.New(r)
	lambda.Start(ginLambda.ProxyWithContext)
}
