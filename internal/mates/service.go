package mates

import (
	"context"
	"errors"

	"mandate/internal/platform/metrics"
	dErrors "mandate/pkg/domain-errors"
	"mandate/pkg/sentinel"
)

// Store persists trust registry entries. Upsert keys on the participant id:
// renegotiation replaces the previous token binding. Implementations return
// sentinel errors.
type Store interface {
	Upsert(ctx context.Context, mate *Mate) error
	FindByID(ctx context.Context, id string) (*Mate, error)
	FindByToken(ctx context.Context, token string) (*Mate, error)
	List(ctx context.Context) ([]*Mate, error)
}

// Service resolves bearer tokens against the trust registry.
type Service struct {
	store   Store
	metrics *metrics.Metrics
}

// NewService constructs the trust registry service.
func NewService(s Store, m *metrics.Metrics) *Service {
	return &Service{store: s, metrics: m}
}

// ResolveToken maps an opaque bearer token onto the participant it was issued
// to. Unknown tokens are Unauthorized, not MissingResource: the caller holds a
// credential that proves nothing.
func (s *Service) ResolveToken(ctx context.Context, token string) (*Mate, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token")
	}
	mate, err := s.store.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token does not resolve to a participant")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDatabase, "resolve token")
	}
	s.metrics.TokensResolved.Inc()
	return mate, nil
}

// Find returns the registry entry for a participant id.
func (s *Service) Find(ctx context.Context, id string) (*Mate, error) {
	mate, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeMissingResource, "participant not known")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDatabase, "load participant")
	}
	return mate, nil
}
