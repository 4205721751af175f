package store

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"

	"mandate/internal/negotiation"
	"mandate/pkg/sentinel"
)

// InMemoryRequestStore keeps negotiations in memory for tests/dev.
type InMemoryRequestStore struct {
	mu   sync.RWMutex
	byID map[string]*negotiation.Request
}

func NewMemoryRequests() *InMemoryRequestStore {
	return &InMemoryRequestStore{byID: make(map[string]*negotiation.Request)}
}

func (s *InMemoryRequestStore) Create(_ context.Context, request *negotiation.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[request.ID]; ok {
		return fmt.Errorf("negotiation %s: %w", request.ID, sentinel.ErrConflict)
	}
	copied := *request
	s.byID[request.ID] = &copied
	return nil
}

func (s *InMemoryRequestStore) FindByID(_ context.Context, id string) (*negotiation.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if request, ok := s.byID[id]; ok {
		copied := *request
		return &copied, nil
	}
	return nil, fmt.Errorf("negotiation not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryRequestStore) FindByToken(_ context.Context, token string) (*negotiation.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, request := range s.byID {
		if request.Token != "" && request.Token == token {
			copied := *request
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("negotiation not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryRequestStore) Update(_ context.Context, request *negotiation.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[request.ID]; !ok {
		return fmt.Errorf("negotiation not found: %w", sentinel.ErrNotFound)
	}
	copied := *request
	s.byID[request.ID] = &copied
	return nil
}

type interactionRecord struct {
	interaction negotiation.Interaction
	consumed    bool
}

// InMemoryInteractionStore keeps interactions in memory for tests/dev.
type InMemoryInteractionStore struct {
	mu    sync.Mutex
	byID  map[string]*interactionRecord
	byRef map[string]string
}

func NewMemoryInteractions() *InMemoryInteractionStore {
	return &InMemoryInteractionStore{
		byID:  make(map[string]*interactionRecord),
		byRef: make(map[string]string),
	}
}

func (s *InMemoryInteractionStore) Create(_ context.Context, interaction *negotiation.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[interaction.ID]; ok {
		return fmt.Errorf("interaction %s: %w", interaction.ID, sentinel.ErrConflict)
	}
	s.byID[interaction.ID] = &interactionRecord{interaction: *interaction}
	s.byRef[interaction.InteractRef] = interaction.ID
	return nil
}

func (s *InMemoryInteractionStore) FindByID(_ context.Context, id string) (*negotiation.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("interaction not found: %w", sentinel.ErrNotFound)
	}
	copied := record.interaction
	return &copied, nil
}

func (s *InMemoryInteractionStore) ConsumeContinuation(_ context.Context, interactRef, continueToken string) (*negotiation.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byRef[interactRef]
	if !ok {
		return nil, fmt.Errorf("interaction not found: %w", sentinel.ErrNotFound)
	}
	record := s.byID[id]
	if record.consumed {
		return nil, fmt.Errorf("continuation: %w", sentinel.ErrAlreadyUsed)
	}
	if subtle.ConstantTimeCompare([]byte(record.interaction.ContinueToken), []byte(continueToken)) != 1 {
		return nil, fmt.Errorf("continuation: %w", sentinel.ErrNotFound)
	}
	record.consumed = true
	copied := record.interaction
	return &copied, nil
}

// InMemoryRequirementsStore keeps granted scopes in memory for tests/dev.
type InMemoryRequirementsStore struct {
	mu   sync.RWMutex
	byID map[string]*negotiation.TokenRequirements
}

func NewMemoryRequirements() *InMemoryRequirementsStore {
	return &InMemoryRequirementsStore{byID: make(map[string]*negotiation.TokenRequirements)}
}

func (s *InMemoryRequirementsStore) Create(_ context.Context, requirements *negotiation.TokenRequirements) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[requirements.ID]; ok {
		return fmt.Errorf("requirements %s: %w", requirements.ID, sentinel.ErrConflict)
	}
	copied := *requirements
	s.byID[requirements.ID] = &copied
	return nil
}

func (s *InMemoryRequirementsStore) FindByID(_ context.Context, id string) (*negotiation.TokenRequirements, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if requirements, ok := s.byID[id]; ok {
		copied := *requirements
		return &copied, nil
	}
	return nil, fmt.Errorf("requirements not found: %w", sentinel.ErrNotFound)
}
