package mates_test

import (
	"context"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mandate/internal/mates"
	"mandate/internal/mates/store"
	"mandate/internal/platform/metrics"
	dErrors "mandate/pkg/domain-errors"
)

var testMetrics = metrics.New()

func TestResolveToken(t *testing.T) {
	registry := store.NewMemory()
	svc := mates.NewService(registry, testMetrics)

	mate := &mates.Mate{
		ID:              "did:jwk:holder",
		Slug:            "acme",
		Type:            mates.TypeConsumer,
		BaseURL:         "http://client.example",
		Token:           "tok_1",
		SavedAt:         time.Now(),
		LastInteraction: time.Now(),
	}
	require.NoError(t, registry.Upsert(context.Background(), mate))

	t.Run("resolves a known token", func(t *testing.T) {
		before := promtestutil.ToFloat64(testMetrics.TokensResolved)
		found, err := svc.ResolveToken(context.Background(), "tok_1")
		require.NoError(t, err)
		assert.Equal(t, mate.ID, found.ID)
		assert.Equal(t, before+1, promtestutil.ToFloat64(testMetrics.TokensResolved))
	})

	t.Run("unknown token is unauthorized", func(t *testing.T) {
		_, err := svc.ResolveToken(context.Background(), "tok_other")
		require.Error(t, err)
		assert.Equal(t, dErrors.CodeUnauthorized, dErrors.CodeOf(err))
	})

	t.Run("empty token is unauthorized", func(t *testing.T) {
		_, err := svc.ResolveToken(context.Background(), "")
		require.Error(t, err)
		assert.Equal(t, dErrors.CodeUnauthorized, dErrors.CodeOf(err))
	})
}

func TestUpsertReplacesBinding(t *testing.T) {
	registry := store.NewMemory()
	svc := mates.NewService(registry, testMetrics)

	first := &mates.Mate{ID: "did:jwk:holder", Slug: "acme", Token: "tok_1", SavedAt: time.Now()}
	require.NoError(t, registry.Upsert(context.Background(), first))

	renewed := *first
	renewed.Token = "tok_2"
	renewed.LastInteraction = time.Now()
	require.NoError(t, registry.Upsert(context.Background(), &renewed))

	found, err := svc.Find(context.Background(), "did:jwk:holder")
	require.NoError(t, err)
	assert.Equal(t, "tok_2", found.Token)

	_, err = svc.ResolveToken(context.Background(), "tok_1")
	assert.Equal(t, dErrors.CodeUnauthorized, dErrors.CodeOf(err))
}

func TestFindUnknownParticipant(t *testing.T) {
	svc := mates.NewService(store.NewMemory(), testMetrics)
	_, err := svc.Find(context.Background(), "did:jwk:nobody")
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeMissingResource, dErrors.CodeOf(err))
}
