//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"mandate/internal/verification"
	"mandate/pkg/sentinel"
	"mandate/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisStore
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = NewRedis(s.redis.Client, time.Minute)
}

func (s *RedisStoreSuite) TearDownSuite() {
	if s.redis != nil {
		_ = s.redis.Client.Close()
		_ = s.redis.Container.Terminate(context.Background())
	}
}

func (s *RedisStoreSuite) SetupTest() {
	require.NoError(s.T(), s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) newSession() *verification.Session {
	return &verification.Session{
		ID:        "negotiation-1",
		State:     "state-1",
		Nonce:     verification.NewNonce(),
		Audience:  "http://as.example/api/v1/verify/state-1",
		Status:    verification.StatusPending,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func (s *RedisStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	session := s.newSession()
	require.NoError(s.T(), s.store.Create(ctx, session))

	byState, err := s.store.FindByState(ctx, session.State)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), session, byState)

	byID, err := s.store.FindByID(ctx, session.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), session, byID)
}

func (s *RedisStoreSuite) TestFindUnknown() {
	_, err := s.store.FindByState(context.Background(), "nope")
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)

	_, err = s.store.FindByID(context.Background(), "nope")
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestUpdate() {
	ctx := context.Background()
	session := s.newSession()
	require.NoError(s.T(), s.store.Create(ctx, session))

	session.Success = true
	session.Holder = "did:jwk:holder"
	session.Status = verification.StatusCompleted
	require.NoError(s.T(), s.store.Update(ctx, session))

	found, err := s.store.FindByState(ctx, session.State)
	require.NoError(s.T(), err)
	assert.True(s.T(), found.Success)
	assert.Equal(s.T(), verification.StatusCompleted, found.Status)
}

func (s *RedisStoreSuite) TestUpdateUnknownSession() {
	err := s.store.Update(context.Background(), s.newSession())
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestSessionsExpire() {
	ctx := context.Background()
	shortLived := NewRedis(s.redis.Client, time.Second)
	session := s.newSession()
	require.NoError(s.T(), shortLived.Create(ctx, session))

	require.Eventually(s.T(), func() bool {
		_, err := shortLived.FindByState(ctx, session.State)
		return err != nil
	}, 5*time.Second, 100*time.Millisecond, "session should age out with its TTL")
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration suite in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}
