package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"mandate/internal/negotiation"
	"mandate/pkg/sentinel"
)

type MemoryStoresSuite struct {
	suite.Suite
	requests     *InMemoryRequestStore
	interactions *InMemoryInteractionStore
	requirements *InMemoryRequirementsStore
}

func (s *MemoryStoresSuite) SetupTest() {
	s.requests = NewMemoryRequests()
	s.interactions = NewMemoryInteractions()
	s.requirements = NewMemoryRequirements()
}

func (s *MemoryStoresSuite) newInteraction() *negotiation.Interaction {
	return &negotiation.Interaction{
		ID:               "negotiation-1",
		Start:            []string{negotiation.MechanismOIDC4VP},
		CallbackURI:      "http://client.example/finish",
		GrantEndpoint:    "http://as.example/api/v1/access",
		ContinueEndpoint: "http://as.example/api/v1/continue",
		ContinueToken:    negotiation.NewOpaqueToken(),
		ContinueID:       "continue-1",
		ASNonce:          negotiation.NewOpaqueToken(),
		InteractRef:      negotiation.NewOpaqueToken(),
	}
}

func (s *MemoryStoresSuite) TestRequestLifecycle() {
	request := &negotiation.Request{
		ID:        "negotiation-1",
		Consumer:  "acme",
		Slug:      "acme",
		Status:    negotiation.StatusPending,
		CreatedAt: time.Now(),
	}
	require.NoError(s.T(), s.requests.Create(context.Background(), request))
	assert.ErrorIs(s.T(), s.requests.Create(context.Background(), request), sentinel.ErrConflict)

	request.Status = negotiation.StatusApproved
	request.Token = "tok_1"
	require.NoError(s.T(), s.requests.Update(context.Background(), request))

	found, err := s.requests.FindByID(context.Background(), request.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), negotiation.StatusApproved, found.Status)

	byToken, err := s.requests.FindByToken(context.Background(), "tok_1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), request.ID, byToken.ID)

	_, err = s.requests.FindByToken(context.Background(), "")
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)
}

func (s *MemoryStoresSuite) TestConsumeContinuation() {
	interaction := s.newInteraction()
	require.NoError(s.T(), s.interactions.Create(context.Background(), interaction))

	consumed, err := s.interactions.ConsumeContinuation(context.Background(), interaction.InteractRef, interaction.ContinueToken)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), interaction.ID, consumed.ID)

	_, err = s.interactions.ConsumeContinuation(context.Background(), interaction.InteractRef, interaction.ContinueToken)
	assert.ErrorIs(s.T(), err, sentinel.ErrAlreadyUsed)
}

func (s *MemoryStoresSuite) TestConsumeContinuationWrongToken() {
	interaction := s.newInteraction()
	require.NoError(s.T(), s.interactions.Create(context.Background(), interaction))

	_, err := s.interactions.ConsumeContinuation(context.Background(), interaction.InteractRef, "wrong")
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)

	// A failed attempt must not burn the capability.
	_, err = s.interactions.ConsumeContinuation(context.Background(), interaction.InteractRef, interaction.ContinueToken)
	require.NoError(s.T(), err)
}

func (s *MemoryStoresSuite) TestConsumeContinuationUnknownRef() {
	_, err := s.interactions.ConsumeContinuation(context.Background(), "nope", "nope")
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)
}

func (s *MemoryStoresSuite) TestConsumeContinuationSingleUseUnderRace() {
	interaction := s.newInteraction()
	require.NoError(s.T(), s.interactions.Create(context.Background(), interaction))

	const attempts = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.interactions.ConsumeContinuation(context.Background(),
				interaction.InteractRef, interaction.ContinueToken); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(s.T(), int32(1), wins.Load(), "exactly one concurrent continuation may win")
}

func (s *MemoryStoresSuite) TestRequirements() {
	requirements := &negotiation.TokenRequirements{
		ID:      "negotiation-1",
		Type:    "dataspace",
		Actions: []string{"read"},
	}
	require.NoError(s.T(), s.requirements.Create(context.Background(), requirements))
	assert.ErrorIs(s.T(), s.requirements.Create(context.Background(), requirements), sentinel.ErrConflict)

	found, err := s.requirements.FindByID(context.Background(), requirements.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), requirements, found)
}

func TestMemoryStoresSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoresSuite))
}
