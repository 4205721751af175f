package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"mandate/internal/verification"
	"mandate/pkg/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewMemory()
}

func (s *InMemoryStoreSuite) newSession() *verification.Session {
	return &verification.Session{
		ID:       "negotiation-1",
		State:    "state-1",
		Nonce:    verification.NewNonce(),
		Audience: "http://as.example/api/v1/verify/state-1",
		Status:   verification.StatusPending,
	}
}

func (s *InMemoryStoreSuite) TestCreateAndFind() {
	session := s.newSession()
	require.NoError(s.T(), s.store.Create(context.Background(), session))

	byState, err := s.store.FindByState(context.Background(), session.State)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), session, byState)

	byID, err := s.store.FindByID(context.Background(), session.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), session, byID)
}

func (s *InMemoryStoreSuite) TestCreateConflict() {
	session := s.newSession()
	require.NoError(s.T(), s.store.Create(context.Background(), session))
	assert.ErrorIs(s.T(), s.store.Create(context.Background(), session), sentinel.ErrConflict)
}

func (s *InMemoryStoreSuite) TestFindNotFound() {
	_, err := s.store.FindByState(context.Background(), "nope")
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)

	_, err = s.store.FindByID(context.Background(), "nope")
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestUpdate() {
	session := s.newSession()
	require.NoError(s.T(), s.store.Create(context.Background(), session))

	session.Success = true
	session.Holder = "did:jwk:holder"
	session.Status = verification.StatusCompleted
	require.NoError(s.T(), s.store.Update(context.Background(), session))

	found, err := s.store.FindByState(context.Background(), session.State)
	require.NoError(s.T(), err)
	assert.True(s.T(), found.Success)
	assert.Equal(s.T(), verification.StatusCompleted, found.Status)
}

func (s *InMemoryStoreSuite) TestUpdateUnknownSession() {
	assert.ErrorIs(s.T(), s.store.Update(context.Background(), s.newSession()), sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestReturnsCopies() {
	session := s.newSession()
	require.NoError(s.T(), s.store.Create(context.Background(), session))

	found, err := s.store.FindByState(context.Background(), session.State)
	require.NoError(s.T(), err)
	found.Success = true

	again, err := s.store.FindByState(context.Background(), session.State)
	require.NoError(s.T(), err)
	assert.False(s.T(), again.Success, "mutating a returned session must not leak into the store")
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}
