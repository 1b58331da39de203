package testutil

import (
	"context"
	"sync"

	"github.com/flexprice/planshift/internal/domain/profile"
	ierr "github.com/flexprice/planshift/internal/errors"
)

type InMemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*profile.Profile
}

var _ profile.Repository = (*InMemoryProfileStore)(nil)

func NewInMemoryProfileStore() *InMemoryProfileStore {
	return &InMemoryProfileStore{profiles: make(map[string]*profile.Profile)}
}

func (s *InMemoryProfileStore) Get(ctx context.Context, userID string) (*profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ierr.NewError("profile not found").
			WithHintf("Profile for user %s was not found", userID).
			Mark(ierr.ErrNotFound)
	}
	clone := *p
	return &clone, nil
}

func (s *InMemoryProfileStore) GetByCustomerRef(ctx context.Context, customerRef string) (*profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.profiles {
		if p.CustomerRef == customerRef {
			clone := *p
			return &clone, nil
		}
	}
	return nil, ierr.NewError("profile not found").
		WithHint("Profile was not found").
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryProfileStore) Upsert(ctx context.Context, p *profile.Profile) error {
	if p == nil || p.UserID == "" {
		return ierr.NewError("profile user id is required").
			Mark(ierr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *p
	s.profiles[p.UserID] = &clone
	return nil
}

func (s *InMemoryProfileStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = make(map[string]*profile.Profile)
}
