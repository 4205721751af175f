//go:build integration

package store

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"mandate/internal/negotiation"
	"mandate/pkg/sentinel"
	"mandate/pkg/testutil/containers"
)

type PostgresStoresSuite struct {
	suite.Suite
	pg           *containers.PostgresContainer
	requests     *PostgresRequestStore
	interactions *PostgresInteractionStore
	requirements *PostgresRequirementsStore
}

func (s *PostgresStoresSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())

	ddl, err := os.ReadFile("../../../migrations/001_init.sql")
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.pg.ApplySchema(context.Background(), string(ddl)))

	s.requests = NewPostgresRequests(s.pg.DB)
	s.interactions = NewPostgresInteractions(s.pg.DB)
	s.requirements = NewPostgresRequirements(s.pg.DB)
}

func (s *PostgresStoresSuite) TearDownSuite() {
	if s.pg != nil {
		_ = s.pg.DB.Close()
		_ = s.pg.Container.Terminate(context.Background())
	}
}

func (s *PostgresStoresSuite) SetupTest() {
	for _, table := range []string{"negotiations", "interactions", "token_requirements"} {
		_, err := s.pg.DB.Exec("TRUNCATE " + table)
		require.NoError(s.T(), err)
	}
}

func (s *PostgresStoresSuite) newInteraction(id string) *negotiation.Interaction {
	return &negotiation.Interaction{
		ID:               id,
		Start:            []string{negotiation.MechanismOIDC4VP},
		FinishMethod:     "redirect",
		CallbackURI:      "http://client.example/finish",
		ClientNonce:      "client-nonce",
		GrantEndpoint:    "http://as.example/api/v1/access",
		ContinueEndpoint: "http://as.example/api/v1/continue",
		ContinueToken:    negotiation.NewOpaqueToken(),
		ContinueID:       "continue-" + id,
		ASNonce:          negotiation.NewOpaqueToken(),
		InteractRef:      negotiation.NewOpaqueToken(),
	}
}

func (s *PostgresStoresSuite) TestRequestLifecycle() {
	ctx := context.Background()
	request := &negotiation.Request{
		ID:        "negotiation-1",
		Consumer:  "acme",
		Slug:      "acme",
		Status:    negotiation.StatusPending,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(s.T(), s.requests.Create(ctx, request))
	assert.ErrorIs(s.T(), s.requests.Create(ctx, request), sentinel.ErrConflict)

	ended := time.Now().UTC().Truncate(time.Microsecond)
	request.Status = negotiation.StatusApproved
	request.Token = "tok_1"
	request.EndedAt = &ended
	require.NoError(s.T(), s.requests.Update(ctx, request))

	found, err := s.requests.FindByID(ctx, request.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), negotiation.StatusApproved, found.Status)
	assert.Equal(s.T(), "tok_1", found.Token)
	require.NotNil(s.T(), found.EndedAt)

	byToken, err := s.requests.FindByToken(ctx, "tok_1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), request.ID, byToken.ID)

	_, err = s.requests.FindByToken(ctx, "")
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)
}

func (s *PostgresStoresSuite) TestConsumeContinuation() {
	ctx := context.Background()
	interaction := s.newInteraction("negotiation-1")
	require.NoError(s.T(), s.interactions.Create(ctx, interaction))

	consumed, err := s.interactions.ConsumeContinuation(ctx, interaction.InteractRef, interaction.ContinueToken)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), interaction.ID, consumed.ID)
	assert.Equal(s.T(), interaction.Start, consumed.Start)

	_, err = s.interactions.ConsumeContinuation(ctx, interaction.InteractRef, interaction.ContinueToken)
	assert.ErrorIs(s.T(), err, sentinel.ErrAlreadyUsed)
}

func (s *PostgresStoresSuite) TestConsumeContinuationWrongToken() {
	ctx := context.Background()
	interaction := s.newInteraction("negotiation-1")
	require.NoError(s.T(), s.interactions.Create(ctx, interaction))

	_, err := s.interactions.ConsumeContinuation(ctx, interaction.InteractRef, "wrong")
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)

	_, err = s.interactions.ConsumeContinuation(ctx, interaction.InteractRef, interaction.ContinueToken)
	require.NoError(s.T(), err)
}

func (s *PostgresStoresSuite) TestConsumeContinuationSingleUseUnderRace() {
	ctx := context.Background()
	interaction := s.newInteraction("negotiation-1")
	require.NoError(s.T(), s.interactions.Create(ctx, interaction))

	const attempts = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.interactions.ConsumeContinuation(ctx,
				interaction.InteractRef, interaction.ContinueToken); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(s.T(), int32(1), wins.Load())
}

func (s *PostgresStoresSuite) TestRequirementsRoundtrip() {
	ctx := context.Background()
	requirements := &negotiation.TokenRequirements{
		ID:         "negotiation-1",
		Type:       "dataspace",
		Actions:    []string{"read", "write"},
		Locations:  []string{"http://provider.example"},
		Identifier: "asset-1",
		Label:      "transfer",
		Flags:      []string{"bearer"},
	}
	require.NoError(s.T(), s.requirements.Create(ctx, requirements))

	found, err := s.requirements.FindByID(ctx, requirements.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), requirements, found)

	_, err = s.requirements.FindByID(ctx, "nope")
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)
}

func TestPostgresStoresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration suite in short mode")
	}
	suite.Run(t, new(PostgresStoresSuite))
}
