// Package service runs the grant negotiation state machine: start a
// negotiation, hand the requester into the out-of-band exchange, and trade a
// finished exchange for an access token at continuation.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mandate/internal/audit"
	"mandate/internal/mates"
	"mandate/internal/negotiation"
	"mandate/internal/negotiation/store"
	"mandate/internal/platform/metrics"
	"mandate/internal/verification"
	dErrors "mandate/pkg/domain-errors"
	"mandate/pkg/requestcontext"
	"mandate/pkg/sentinel"
)

// Exchanges is the slice of the verification side this service needs: open an
// out-of-band exchange for a negotiation and read its outcome back.
type Exchanges interface {
	NewExchange(ctx context.Context, id string) (*verification.Session, string, error)
	FindByID(ctx context.Context, id string) (*verification.Session, error)
}

// Registry persists the participant binding minted at continuation.
type Registry interface {
	Upsert(ctx context.Context, mate *mates.Mate) error
}

// Service coordinates negotiations across their stores, the verification
// exchange and the trust registry.
type Service struct {
	requests     store.RequestStore
	interactions store.InteractionStore
	requirements store.RequirementsStore
	exchanges    Exchanges
	registry     Registry

	baseURL string
	wait    int

	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   *audit.Publisher
	tracer  trace.Tracer
}

// New constructs the negotiation service.
func New(
	requests store.RequestStore,
	interactions store.InteractionStore,
	requirements store.RequirementsStore,
	exchanges Exchanges,
	registry Registry,
	baseURL string,
	wait int,
	logger *slog.Logger,
	m *metrics.Metrics,
	publisher *audit.Publisher,
) *Service {
	return &Service{
		requests:     requests,
		interactions: interactions,
		requirements: requirements,
		exchanges:    exchanges,
		registry:     registry,
		baseURL:      baseURL,
		wait:         wait,
		logger:       logger,
		metrics:      m,
		audit:        publisher,
		tracer:       otel.Tracer("mandate/negotiation"),
	}
}

// Start validates a grant request, persists the negotiation triplet and opens
// the verification exchange. All records are durable before the response
// leaves, so a continuation can never observe a half-created negotiation.
func (s *Service) Start(ctx context.Context, grant *negotiation.GrantRequest) (*negotiation.GrantResponse, error) {
	ctx, span := s.tracer.Start(ctx, "negotiation.start")
	defer span.End()

	if grant.Interact == nil || !containsMode(grant.Interact.Start, negotiation.MechanismOIDC4VP) {
		return nil, dErrors.New(dErrors.CodeNotImplemented, "only the oidc4vp interaction mechanism is supported")
	}
	consumer := grant.Client.Identifier()
	if consumer == "" {
		return nil, dErrors.New(dErrors.CodeBadFormat, "client carries neither class_id nor display name")
	}
	if grant.Interact.Finish == nil || grant.Interact.Finish.URI == "" {
		return nil, dErrors.New(dErrors.CodeBadFormat, "interact finish callback uri is missing")
	}
	if len(grant.AccessToken.Access) == 0 {
		return nil, dErrors.New(dErrors.CodeBadFormat, "access token request names no access")
	}

	id := uuid.NewString()
	span.SetAttributes(attribute.String("negotiation.id", id))

	request := &negotiation.Request{
		ID:        id,
		Consumer:  consumer,
		Slug:      slugify(consumer),
		Status:    negotiation.StatusPending,
		CreatedAt: requestcontext.Now(ctx),
	}
	requirements := requirementsFrom(id, grant.AccessToken)
	interaction := &negotiation.Interaction{
		ID:               id,
		Start:            grant.Interact.Start,
		FinishMethod:     grant.Interact.Finish.Method,
		CallbackURI:      grant.Interact.Finish.URI,
		ClientNonce:      grant.Interact.Finish.Nonce,
		HashMethod:       grant.Interact.Finish.HashMethod,
		GrantEndpoint:    s.baseURL + "/api/v1/access",
		ContinueEndpoint: s.baseURL + "/api/v1/continue",
		ContinueToken:    negotiation.NewOpaqueToken(),
		ContinueID:       uuid.NewString(),
		ASNonce:          negotiation.NewOpaqueToken(),
		InteractRef:      negotiation.NewOpaqueToken(),
	}

	if err := s.requests.Create(ctx, request); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDatabase, "create negotiation")
	}
	if err := s.requirements.Create(ctx, requirements); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDatabase, "create token requirements")
	}
	if err := s.interactions.Create(ctx, interaction); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDatabase, "create interaction")
	}

	_, exchangeURI, err := s.exchanges.NewExchange(ctx, id)
	if err != nil {
		return nil, err
	}

	s.metrics.NegotiationsStarted.Inc()
	s.audit.Emit(ctx, audit.Event{
		Type:    audit.EventNegotiationStarted,
		Subject: consumer,
		Detail:  map[string]string{"negotiation_id": id},
	})
	s.logger.InfoContext(ctx, "negotiation started",
		"negotiation_id", id,
		"consumer", consumer,
	)

	return s.Respond(interaction, exchangeURI), nil
}

// Respond shapes the GNAP grant response for a started negotiation.
func (s *Service) Respond(interaction *negotiation.Interaction, exchangeURI string) *negotiation.GrantResponse {
	return &negotiation.GrantResponse{
		Interact: &negotiation.InteractResponse{Redirect: exchangeURI},
		Continue: negotiation.ContinueResponse{
			URI:         interaction.ContinueEndpoint,
			AccessToken: negotiation.AccessToken{Value: interaction.ContinueToken},
			Wait:        s.wait,
		},
	}
}

// ValidateContinuation trades the single-use capability pair for its
// interaction. Every failure surfaces the same error so callers learn nothing
// about which half was wrong or whether the pair ever existed.
func (s *Service) ValidateContinuation(ctx context.Context, interactRef, presentedToken string) (*negotiation.Interaction, error) {
	if interactRef == "" || presentedToken == "" {
		return nil, s.denyContinuation(ctx, "", "missing credentials")
	}
	interaction, err := s.interactions.ConsumeContinuation(ctx, interactRef, presentedToken)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, s.denyContinuation(ctx, "", err.Error())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDatabase, "consume continuation")
	}
	return interaction, nil
}

// Continue finishes an already-validated continuation: it requires a
// successful exchange, mints the access token, approves the negotiation and
// upserts the trust registry binding for the proven holder.
func (s *Service) Continue(ctx context.Context, interaction *negotiation.Interaction) (*negotiation.ContinuationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "negotiation.continue",
		trace.WithAttributes(attribute.String("negotiation.id", interaction.ID)))
	defer span.End()

	request, err := s.requests.FindByID(ctx, interaction.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDatabase, "load negotiation")
	}
	session, err := s.exchanges.FindByID(ctx, interaction.ID)
	if err != nil {
		return nil, err
	}
	if !session.Success {
		return nil, s.denyContinuation(ctx, interaction.ID, "exchange not completed")
	}

	token := negotiation.NewOpaqueToken()
	now := requestcontext.Now(ctx)
	request.Token = token
	request.Status = negotiation.StatusApproved
	request.EndedAt = &now
	if err := s.requests.Update(ctx, request); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDatabase, "approve negotiation")
	}

	mate := &mates.Mate{
		ID:              session.Holder,
		Slug:            request.Slug,
		Type:            mates.TypeConsumer,
		BaseURL:         originOf(interaction.CallbackURI),
		Token:           token,
		SavedAt:         now,
		LastInteraction: now,
	}
	if err := s.registry.Upsert(ctx, mate); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDatabase, "save participant")
	}

	s.metrics.NegotiationsApproved.Inc()
	s.audit.Emit(ctx, audit.Event{
		Type:    audit.EventNegotiationApproved,
		Subject: session.Holder,
		Detail:  map[string]string{"negotiation_id": request.ID},
	})
	s.logger.InfoContext(ctx, "negotiation approved",
		"negotiation_id", request.ID,
		"holder", session.Holder,
	)

	return &negotiation.ContinuationResponse{
		AccessToken: negotiation.AccessToken{Value: token},
	}, nil
}

// ContinueNegotiation composes validation and continuation for the transport
// layer.
func (s *Service) ContinueNegotiation(ctx context.Context, interactRef, presentedToken string) (*negotiation.ContinuationResponse, error) {
	interaction, err := s.ValidateContinuation(ctx, interactRef, presentedToken)
	if err != nil {
		return nil, err
	}
	return s.Continue(ctx, interaction)
}

// FinishRedirect builds the callback the wallet is redirected to after a
// successful exchange, carrying the interact_ref and the interaction hash.
func (s *Service) FinishRedirect(ctx context.Context, id string) (string, error) {
	interaction, err := s.interactions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeMissingResource, "interaction not found")
		}
		return "", dErrors.Wrap(err, dErrors.CodeDatabase, "load interaction")
	}

	callback, err := url.Parse(interaction.CallbackURI)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeBadFormat, "parse callback uri")
	}
	query := callback.Query()
	query.Set("hash", InteractHash(interaction))
	query.Set("interact_ref", interaction.InteractRef)
	callback.RawQuery = query.Encode()
	return callback.String(), nil
}

// InteractHash binds the finish callback to this negotiation:
// base64url(sha256(client_nonce LF as_nonce LF interact_ref LF grant_endpoint)).
func InteractHash(interaction *negotiation.Interaction) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		interaction.ClientNonce,
		interaction.ASNonce,
		interaction.InteractRef,
		interaction.GrantEndpoint,
	}, "\n")))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (s *Service) denyContinuation(ctx context.Context, id, reason string) error {
	s.metrics.ContinuationsDenied.Inc()
	s.audit.Emit(ctx, audit.Event{
		Type:    audit.EventContinuationRejected,
		Subject: id,
		Detail:  map[string]string{"reason": reason},
	})
	s.logger.WarnContext(ctx, "continuation rejected",
		"negotiation_id", id,
		"reason", reason,
	)
	return dErrors.New(dErrors.CodeSecurity, "continuation rejected")
}

func requirementsFrom(id string, request negotiation.AccessTokenRequest) *negotiation.TokenRequirements {
	access := request.Access[0]
	return &negotiation.TokenRequirements{
		ID:         id,
		Type:       access.Type,
		Actions:    access.Actions,
		Locations:  access.Locations,
		Datatypes:  access.Datatypes,
		Identifier: access.Identifier,
		Privileges: access.Privileges,
		Label:      request.Label,
		Flags:      request.Flags,
	}
}

func containsMode(modes []string, want string) bool {
	for _, mode := range modes {
		if mode == want {
			return true
		}
	}
	return false
}

func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_' || r == '.':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

func originOf(callbackURI string) string {
	parsed, err := url.Parse(callbackURI)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}
