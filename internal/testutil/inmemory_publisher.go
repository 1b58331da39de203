package testutil

import (
	"context"
	"sync"

	"github.com/flexprice/planshift/internal/domain/audit"
	"github.com/flexprice/planshift/internal/publisher"
)

// InMemoryAuditPublisher records published audit events
type InMemoryAuditPublisher struct {
	mu        sync.RWMutex
	published []*audit.Record
}

var _ publisher.AuditPublisher = (*InMemoryAuditPublisher)(nil)

func NewInMemoryAuditPublisher() *InMemoryAuditPublisher {
	return &InMemoryAuditPublisher{}
}

func (p *InMemoryAuditPublisher) Publish(ctx context.Context, record *audit.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, record)
	return nil
}

func (p *InMemoryAuditPublisher) Published() []*audit.Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*audit.Record, len(p.published))
	copy(out, p.published)
	return out
}
