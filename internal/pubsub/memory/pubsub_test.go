package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/planshift/internal/logger"
	"github.com/stretchr/testify/suite"
)

type MemoryPubSubSuite struct {
	suite.Suite
}

func TestMemoryPubSub(t *testing.T) {
	suite.Run(t, new(MemoryPubSubSuite))
}

func (s *MemoryPubSubSuite) TestMessagesWithoutSubscriberAreNotRetained() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ps := NewPubSub(logger.NewNoopLogger())
	defer ps.Close()

	s.Require().NoError(ps.Publish(ctx, "audit", message.NewMessage(watermill.NewUUID(), []byte("early"))))

	messages, err := ps.Subscribe(ctx, "audit")
	s.Require().NoError(err)

	s.Require().NoError(ps.Publish(ctx, "audit", message.NewMessage(watermill.NewUUID(), []byte("late"))))

	select {
	case msg := <-messages:
		msg.Ack()
		s.Equal("late", string(msg.Payload))
	case <-time.After(2 * time.Second):
		s.Fail("message was not delivered")
	}

	select {
	case msg := <-messages:
		s.Failf("unexpected message", "payload %s", msg.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}
