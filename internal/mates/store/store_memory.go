package store

import (
	"context"
	"fmt"
	"sync"

	"mandate/internal/mates"
	"mandate/pkg/sentinel"
)

// InMemoryStore keeps trust registry entries in memory for tests/dev.
type InMemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*mates.Mate
}

// NewMemory constructs an empty in-memory mates store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{byID: make(map[string]*mates.Mate)}
}

func (s *InMemoryStore) Upsert(_ context.Context, mate *mates.Mate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *mate
	s.byID[mate.ID] = &copied
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*mates.Mate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if mate, ok := s.byID[id]; ok {
		copied := *mate
		return &copied, nil
	}
	return nil, fmt.Errorf("mate not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) FindByToken(_ context.Context, token string) (*mates.Mate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, mate := range s.byID {
		if mate.Token == token {
			copied := *mate
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("mate not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) List(_ context.Context) ([]*mates.Mate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*mates.Mate, 0, len(s.byID))
	for _, mate := range s.byID {
		copied := *mate
		out = append(out, &copied)
	}
	return out, nil
}
