package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/planshift/internal/config"
	"github.com/flexprice/planshift/internal/domain/audit"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/logger"
	"github.com/flexprice/planshift/internal/pubsub/memory"
	"github.com/flexprice/planshift/internal/types"
	"github.com/stretchr/testify/suite"
)

type AuditPublisherSuite struct {
	suite.Suite
}

func TestAuditPublisher(t *testing.T) {
	suite.Run(t, new(AuditPublisherSuite))
}

func (s *AuditPublisherSuite) TestPublishDeliversRecord() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := config.GetDefaultConfig()
	ps := memory.NewPubSub(logger.NewNoopLogger())
	defer ps.Close()

	messages, err := ps.Subscribe(ctx, cfg.Audit.Topic)
	s.Require().NoError(err)

	record := audit.NewRecord(types.AuditEventDowngradeScheduled, "sub_1", "cus_1", "basic", "price_basic_monthly", time.Now())
	pub := NewAuditPublisher(ps, cfg, logger.NewNoopLogger())
	s.Require().NoError(pub.Publish(ctx, record))

	select {
	case msg := <-messages:
		msg.Ack()
		s.Equal(string(types.AuditEventDowngradeScheduled), msg.Metadata.Get("event_type"))
		s.Equal(record.ID, msg.Metadata.Get("audit_id"))

		var got audit.Record
		s.Require().NoError(json.Unmarshal(msg.Payload, &got))
		s.Equal(record.SubscriptionRef, got.SubscriptionRef)
		s.Equal(record.PlanID, got.PlanID)
	case <-ctx.Done():
		s.Fail("audit event was not delivered")
	}
}

// downBroker rejects every publish
type downBroker struct {
	attempts int32
}

func (b *downBroker) Publish(ctx context.Context, topic string, msg *message.Message) error {
	atomic.AddInt32(&b.attempts, 1)
	return errors.New("broker unavailable")
}

func (b *downBroker) Close() error { return nil }

func (s *AuditPublisherSuite) TestPublishGivesUpWithinBudget() {
	broker := &downBroker{}
	pub := NewAuditPublisher(broker, config.GetDefaultConfig(), logger.NewNoopLogger())
	record := audit.NewRecord(types.AuditEventUpgradeImmediate, "sub_1", "cus_1", "pro", "price_pro_monthly", time.Now())

	started := time.Now()
	err := pub.Publish(context.Background(), record)
	elapsed := time.Since(started)

	s.Require().Error(err)
	s.True(ierr.Is(err, ierr.ErrSystem))
	s.Less(elapsed, 2*time.Second)
	s.Greater(atomic.LoadInt32(&broker.attempts), int32(1))
}

func (s *AuditPublisherSuite) TestPublishSurvivesCanceledRequest() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := config.GetDefaultConfig()
	ps := memory.NewPubSub(logger.NewNoopLogger())
	defer ps.Close()

	messages, err := ps.Subscribe(ctx, cfg.Audit.Topic)
	s.Require().NoError(err)

	requestCtx, cancelRequest := context.WithCancel(context.Background())
	cancelRequest()

	record := audit.NewRecord(types.AuditEventCreated, "sub_1", "cus_1", "pro", "price_pro_monthly", time.Now())
	s.Require().NoError(NewAuditPublisher(ps, cfg, logger.NewNoopLogger()).Publish(requestCtx, record))

	select {
	case msg := <-messages:
		msg.Ack()
		s.Equal(record.ID, msg.Metadata.Get("audit_id"))
	case <-ctx.Done():
		s.Fail("audit event was not delivered")
	}
}
