package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/flexprice/planshift/internal/domain/audit"
	ierr "github.com/flexprice/planshift/internal/errors"
)

type InMemoryAuditStore struct {
	mu      sync.RWMutex
	records []*audit.Record
	// FailWith, when set, is returned by Append
	FailWith error
}

var _ audit.Repository = (*InMemoryAuditStore)(nil)

func NewInMemoryAuditStore() *InMemoryAuditStore {
	return &InMemoryAuditStore{}
}

func (s *InMemoryAuditStore) Append(ctx context.Context, record *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}
	for _, r := range s.records {
		if r.ID == record.ID {
			return ierr.NewError("audit record already exists").
				Mark(ierr.ErrAlreadyExists)
		}
	}
	clone := *record
	s.records = append(s.records, &clone)
	return nil
}

func (s *InMemoryAuditStore) ListBySubscription(ctx context.Context, subscriptionRef string, limit int) ([]*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*audit.Record, 0)
	for _, r := range s.records {
		if r.SubscriptionRef == subscriptionRef {
			clone := *r
			out = append(out, &clone)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Records returns everything appended, oldest first
func (s *InMemoryAuditStore) Records() []*audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*audit.Record, len(s.records))
	copy(out, s.records)
	return out
}

func (s *InMemoryAuditStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.FailWith = nil
}
