// Package issuer builds and signs VC/VP artifacts. Both operations are pure
// claim-set transformations plus one external signing call; no protocol state
// lives here.
package issuer

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"mandate/internal/audit"
	"mandate/internal/credential"
	"mandate/internal/did"
	"mandate/internal/keystore"
	"mandate/internal/platform/metrics"
	dErrors "mandate/pkg/domain-errors"
)

const (
	credentialValidity   = 365 * 24 * time.Hour
	presentationValidity = 24 * time.Hour
)

// Config selects what the issuer grants and in which claim layout.
type Config struct {
	// IssuerDID identifies the signing key in the key store.
	IssuerDID did.DID
	// CredentialTypes is the fixed set of credential types granted to every
	// onboarded subject.
	CredentialTypes []string
	// DataModel picks between the v1 (nested vc) and v2 (hoisted) layouts.
	DataModel credential.DataModelVersion
	// SubjectClaims supplies the type-specific subject payload per credential
	// type. Missing types get an empty payload.
	SubjectClaims map[string]map[string]any
}

// Service issues credentials and presentations for subjects.
type Service struct {
	cfg     Config
	keys    keystore.KeyStore
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   *audit.Publisher
}

// New constructs an issuance service.
func New(cfg Config, keys keystore.KeyStore, logger *slog.Logger, m *metrics.Metrics, publisher *audit.Publisher) *Service {
	return &Service{
		cfg:     cfg,
		keys:    keys,
		now:     time.Now,
		logger:  logger,
		metrics: m,
		audit:   publisher,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// IssueCredentialSet builds and signs one credential per configured type for
// the subject, each valid for a year and tagged jwt_vc_json.
func (s *Service) IssueCredentialSet(ctx context.Context, subject did.DID) ([]credential.SignedCredential, error) {
	now := s.now()
	validFrom := now.UTC().Format(time.RFC3339)
	validUntil := now.Add(credentialValidity).UTC().Format(time.RFC3339)

	out := make([]credential.SignedCredential, 0, len(s.cfg.CredentialTypes))
	for _, credentialType := range s.cfg.CredentialTypes {
		claims := s.buildCredentialClaims(credentialType, subject, now, validFrom, validUntil)

		signed, err := s.keys.Sign(ctx, claims, s.cfg.IssuerDID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeVault, "sign credential")
		}
		out = append(out, credential.SignedCredential{
			Format:     credential.FormatJWTVCJSON,
			Credential: signed,
			Type:       credentialType,
		})

		s.metrics.CredentialsIssued.Inc()
		s.audit.Emit(ctx, audit.Event{
			Type:    audit.EventCredentialIssued,
			Subject: subject.String(),
			Detail:  map[string]string{"credential_type": credentialType},
		})
	}

	s.logger.InfoContext(ctx, "credential set issued",
		"subject", subject.String(),
		"count", len(out),
	)
	return out, nil
}

func (s *Service) buildCredentialClaims(credentialType string, subject did.DID, now time.Time, validFrom, validUntil string) *credential.CredentialClaims {
	body := credential.CredentialObject{
		Context:    []string{s.cfg.DataModel.Context()},
		ID:         "urn:uuid:" + uuid.NewString(),
		Type:       []string{credential.TypeCredential, credentialType},
		Issuer:     &credential.Issuer{ID: s.cfg.IssuerDID.String()},
		ValidFrom:  validFrom,
		ValidUntil: validUntil,
		CredentialSubject: &credential.Subject{
			ID:     subject.String(),
			Claims: s.cfg.SubjectClaims[credentialType],
		},
	}

	claims := &credential.CredentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.cfg.IssuerDID.String(),
			Subject:  subject.String(),
			ID:       body.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.cfg.DataModel == credential.DataModelV1 {
		claims.VC = &body
	} else {
		claims.CredentialObject = body
	}
	return claims
}

// IssuePresentation wraps already-issued credential tokens into a signed
// VerifiablePresentation under the holder's own identifier. Holder defaults
// to the issuer when absent (self-presentation).
func (s *Service) IssuePresentation(ctx context.Context, credentials []string, holder did.DID) (*credential.SignedPresentation, error) {
	if len(credentials) == 0 {
		return nil, dErrors.New(dErrors.CodeBadFormat, "presentation needs at least one credential")
	}
	if holder.IsZero() {
		holder = s.cfg.IssuerDID
	}

	now := s.now()
	body := credential.PresentationObject{
		Context:              []string{s.cfg.DataModel.Context()},
		ID:                   "urn:uuid:" + uuid.NewString(),
		Type:                 []string{credential.TypePresentation},
		Holder:               holder.String(),
		VerifiableCredential: credentials,
		ValidFrom:            now.UTC().Format(time.RFC3339),
		ValidUntil:           now.Add(presentationValidity).UTC().Format(time.RFC3339),
	}

	claims := &credential.PresentationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   holder.String(),
			Subject:  holder.String(),
			ID:       body.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.cfg.DataModel == credential.DataModelV1 {
		claims.VP = &body
	} else {
		claims.PresentationObject = body
	}

	signed, err := s.keys.Sign(ctx, claims, holder)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeVault, "sign presentation")
	}

	s.metrics.PresentationsIssued.Inc()
	s.audit.Emit(ctx, audit.Event{
		Type:    audit.EventPresentationIssued,
		Subject: holder.String(),
	})

	return &credential.SignedPresentation{
		Format:       credential.FormatJWTVCJSON,
		Presentation: signed,
	}, nil
}

// CredentialOfferURI builds the OIDC4VCI offer URI for a pre-issued set. The
// literal credential_offer_uri parameter name is the interoperability contract.
func CredentialOfferURI(baseURL, offerID string) string {
	return "openid-credential-offer://?credential_offer_uri=" +
		url.QueryEscape(baseURL+"/api/v1/credentials/offers/"+offerID)
}
