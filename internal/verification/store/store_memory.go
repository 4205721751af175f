package store

import (
	"context"
	"fmt"
	"sync"

	"mandate/internal/verification"
	"mandate/pkg/sentinel"
)

// InMemoryStore keeps verification sessions in memory for tests/dev.
type InMemoryStore struct {
	mu        sync.RWMutex
	byState   map[string]*verification.Session
	stateByID map[string]string
}

// NewMemory constructs an empty in-memory session store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{
		byState:   make(map[string]*verification.Session),
		stateByID: make(map[string]string),
	}
}

func (s *InMemoryStore) Create(_ context.Context, session *verification.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byState[session.State]; ok {
		return fmt.Errorf("verification session exists: %w", sentinel.ErrConflict)
	}
	copied := *session
	s.byState[session.State] = &copied
	s.stateByID[session.ID] = session.State
	return nil
}

func (s *InMemoryStore) FindByState(_ context.Context, state string) (*verification.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if session, ok := s.byState[state]; ok {
		copied := *session
		return &copied, nil
	}
	return nil, fmt.Errorf("verification session not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) FindByID(ctx context.Context, id string) (*verification.Session, error) {
	s.mu.RLock()
	state, ok := s.stateByID[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("verification session not found: %w", sentinel.ErrNotFound)
	}
	return s.FindByState(ctx, state)
}

func (s *InMemoryStore) Update(_ context.Context, session *verification.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byState[session.State]; !ok {
		return fmt.Errorf("verification session not found: %w", sentinel.ErrNotFound)
	}
	copied := *session
	s.byState[session.State] = &copied
	return nil
}
