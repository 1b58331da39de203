package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
	"github.com/flexprice/planshift/internal/config"
	"github.com/flexprice/planshift/internal/domain/audit"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/logger"
	"github.com/flexprice/planshift/internal/pubsub"
	"github.com/flexprice/planshift/internal/types"
)

// Publishing runs after the provider change committed, inside the request. The
// budget bounds how long a slow broker can hold that response.
const (
	maxPublishElapsed      = 750 * time.Millisecond
	initialPublishInterval = 50 * time.Millisecond
)

// AuditPublisher fans committed audit records out to the event bus
type AuditPublisher interface {
	Publish(ctx context.Context, record *audit.Record) error
}

type auditPublisher struct {
	pubsub pubsub.Publisher
	topic  string
	logger *logger.Logger
}

func NewAuditPublisher(ps pubsub.Publisher, cfg *config.Configuration, logger *logger.Logger) AuditPublisher {
	return &auditPublisher{
		pubsub: ps,
		topic:  cfg.Audit.Topic,
		logger: logger,
	}
}

// Publish retries with exponential backoff until the budget runs out. A canceled
// request does not stop delivery of a record that is already stored.
func (p *auditPublisher) Publish(ctx context.Context, record *audit.Record) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), maxPublishElapsed)
	defer cancel()

	payload, err := json.Marshal(record)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Could not encode audit event").
			Mark(ierr.ErrSystem)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initialPublishInterval
	policy.MaxElapsedTime = maxPublishElapsed

	attempt := 0
	operation := func() error {
		attempt++
		msg := message.NewMessage(types.GenerateUUIDWithPrefix(types.UUID_PREFIX_EVENT), payload)
		msg.Metadata.Set("event_type", string(record.EventType))
		msg.Metadata.Set("subscription_ref", record.SubscriptionRef)
		msg.Metadata.Set("audit_id", record.ID)
		return p.pubsub.Publish(ctx, p.topic, msg)
	}

	err = backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		p.logger.Warnw("retrying audit event publish",
			"audit_id", record.ID,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Could not publish audit event").
			WithReportableDetails(map[string]any{"audit_id": record.ID, "topic": p.topic}).
			Mark(ierr.ErrSystem)
	}

	p.logger.Debugw("published audit event",
		"audit_id", record.ID,
		"event_type", record.EventType,
		"topic", p.topic,
	)
	return nil
}
