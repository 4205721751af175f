// Package service drives the OIDC4VP exchange around a verification session:
// it creates the session when a negotiation hands out its exchange URI and
// feeds presented VP tokens to the verification engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"mandate/internal/audit"
	"mandate/internal/credential/verifier"
	"mandate/internal/platform/metrics"
	"mandate/internal/verification"
	"mandate/internal/verification/store"
	dErrors "mandate/pkg/domain-errors"
	"mandate/pkg/requestcontext"
	"mandate/pkg/sentinel"
)

// AuthorizationRequest is what a wallet retrieves from the exchange URL before
// producing its presentation. Field names follow OIDC4VP.
type AuthorizationRequest struct {
	ClientID     string `json:"client_id"`
	ResponseType string `json:"response_type"`
	ResponseURI  string `json:"response_uri"`
	Nonce        string `json:"nonce"`
	State        string `json:"state"`
}

// Service coordinates verification sessions with the pure verification engine.
type Service struct {
	sessions store.Store
	verifier *verifier.Verifier
	baseURL  string
	logger   *slog.Logger
	metrics  *metrics.Metrics
	audit    *audit.Publisher
}

// New constructs the exchange service.
func New(sessions store.Store, v *verifier.Verifier, baseURL string, logger *slog.Logger, m *metrics.Metrics, publisher *audit.Publisher) *Service {
	return &Service{
		sessions: sessions,
		verifier: v,
		baseURL:  baseURL,
		logger:   logger,
		metrics:  m,
		audit:    publisher,
	}
}

// NewExchange creates a verification session correlated to a negotiation id
// and returns the out-of-band exchange URI the requester's wallet follows.
func (s *Service) NewExchange(ctx context.Context, id string) (*verification.Session, string, error) {
	state := uuid.NewString()
	session := &verification.Session{
		ID:        id,
		State:     state,
		Nonce:     verification.NewNonce(),
		Audience:  s.exchangeURL(state),
		Status:    verification.StatusPending,
		CreatedAt: requestcontext.Now(ctx),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeDatabase, "create verification session")
	}

	// The literal scheme and parameter names are the interoperability
	// contract with existing wallets.
	exchangeURI := "openid4vp://authorize?client_id=" + url.QueryEscape(session.Audience) +
		"&request_uri=" + url.QueryEscape(session.Audience)

	return session, exchangeURI, nil
}

// Request returns the authorization-request parameters for an exchange state.
func (s *Service) Request(ctx context.Context, state string) (*AuthorizationRequest, error) {
	session, err := s.findByState(ctx, state)
	if err != nil {
		return nil, err
	}
	return &AuthorizationRequest{
		ClientID:     session.Audience,
		ResponseType: "vp_token",
		ResponseURI:  session.Audience,
		Nonce:        session.Nonce,
		State:        session.State,
	}, nil
}

// Present runs the full verification chain over a presented VP token and
// records the outcome on the session. A failed verification leaves the
// session pending and unsuccessful.
func (s *Service) Present(ctx context.Context, state string, vpToken string) (*verification.Session, error) {
	session, err := s.findByState(ctx, state)
	if err != nil {
		return nil, err
	}
	if session.Status == verification.StatusCompleted {
		return nil, dErrors.New(dErrors.CodeSecurity, "verification session already completed")
	}

	start := time.Now()
	holder, err := s.verifier.VerifyAll(session, vpToken)
	if err != nil {
		s.metrics.RecordVerification("failure", time.Since(start).Seconds())
		s.audit.Emit(ctx, audit.Event{
			Type:    audit.EventVerificationFailed,
			Subject: session.ID,
			Detail:  map[string]string{"state": session.State},
		})
		s.logger.WarnContext(ctx, "presentation rejected",
			"session_id", session.ID,
			"state", session.State,
			"error", err,
		)
		return nil, err
	}
	s.metrics.RecordVerification("success", time.Since(start).Seconds())

	now := requestcontext.Now(ctx)
	session.Status = verification.StatusCompleted
	session.EndedAt = &now
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDatabase, "update verification session")
	}

	s.audit.Emit(ctx, audit.Event{
		Type:    audit.EventVerificationSucceeded,
		Subject: holder,
		Detail:  map[string]string{"session_id": session.ID},
	})
	s.logger.InfoContext(ctx, "presentation verified",
		"session_id", session.ID,
		"holder", holder,
	)
	return session, nil
}

// FindByID loads the session correlated to a negotiation id.
func (s *Service) FindByID(ctx context.Context, id string) (*verification.Session, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeMissingResource, "verification session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDatabase, "load verification session")
	}
	return session, nil
}

func (s *Service) findByState(ctx context.Context, state string) (*verification.Session, error) {
	session, err := s.sessions.FindByState(ctx, state)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeMissingResource, "verification session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDatabase, "load verification session")
	}
	return session, nil
}

func (s *Service) exchangeURL(state string) string {
	return fmt.Sprintf("%s/api/v1/verify/%s", s.baseURL, state)
}
