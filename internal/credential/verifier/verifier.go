// Package verifier implements the credential verification engine: pure,
// synchronous validation of VP tokens and the VC tokens nested inside them.
package verifier

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mandate/internal/credential"
	"mandate/internal/did"
	"mandate/internal/verification"
	dErrors "mandate/pkg/domain-errors"
)

var errNoKeyID = errors.New("token header carries no kid")

// Verifier validates presented tokens against the fixed claim-equality chain.
// It holds no protocol state and performs no I/O.
type Verifier struct {
	parser *jwt.Parser
	now    func() time.Time

	// TrustedIssuers, when set, gates credential issuers. Nil means the check
	// is not enforced; this gap is deliberate and documented.
	TrustedIssuers func(issuer string) bool
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// New builds a Verifier. Registered-claim validation is done by hand: expiry
// (exp) checking is disabled, not-before (nbf) checking is enabled, audience
// only when an expected audience is supplied. Do not "fix" this asymmetry
// without a protocol decision; VC validity is enforced through the
// validFrom/validUntil claims instead.
func New(opts ...Option) *Verifier {
	v := &Verifier{
		parser: jwt.NewParser(
			jwt.WithoutClaimsValidation(),
			jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "PS256", "PS384", "PS512"}),
		),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// checkFn is one step of a fail-fast validation chain.
type checkFn func() error

// runChecks evaluates checks in order and returns the first failure.
func runChecks(checks ...checkFn) error {
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// validateToken parses and cryptographically verifies one token. The kid
// header must be a resolvable self-certifying identifier; the signature is
// verified against the key the identifier embeds. Returns the resolved key id.
func (v *Verifier) validateToken(token string, claims jwt.Claims, expectedAudience string) (did.DID, error) {
	var keyID did.DID

	_, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errNoKeyID
		}
		id, err := did.Parse(kid)
		if err != nil {
			return nil, err
		}
		keyID = id
		return id.ResolveKey()
	})
	if err != nil {
		switch {
		case errors.Is(err, errNoKeyID):
			return did.DID{}, dErrors.New(dErrors.CodeBadFormat, "token header carries no key identifier")
		case errors.Is(err, jwt.ErrTokenMalformed):
			return did.DID{}, dErrors.Wrap(err, dErrors.CodeBadFormat, "malformed token")
		default:
			return did.DID{}, dErrors.New(dErrors.CodeSecurity, "signature is incorrect")
		}
	}

	// Claim-requirement policy: nothing is mandatory, exp stays unchecked,
	// nbf is enforced when present.
	if nbf, err := claims.GetNotBefore(); err == nil && nbf != nil {
		if v.now().Before(nbf.Time) {
			return did.DID{}, dErrors.New(dErrors.CodeSecurity, "token is not valid yet")
		}
	}

	if expectedAudience != "" {
		aud, err := claims.GetAudience()
		if err != nil || !containsAudience(aud, expectedAudience) {
			return did.DID{}, dErrors.New(dErrors.CodeSecurity, "audience does not match this exchange")
		}
	}

	return keyID, nil
}

func containsAudience(aud jwt.ClaimStrings, expected string) bool {
	for _, a := range aud {
		if a == expected {
			return true
		}
	}
	return false
}

// VerifyPresentation validates a VP token against its verification session.
// The chain is fail-fast: the first mismatch aborts with a security error and
// no partial result. On success it returns the nested credential tokens and
// the resolved holder, and records the holder on the session.
func (v *Verifier) VerifyPresentation(session *verification.Session, vpToken string) ([]string, string, error) {
	claims := &credential.PresentationClaims{}
	keyID, err := v.validateToken(vpToken, claims, session.Audience)
	if err != nil {
		return nil, "", err
	}

	vp := claims.Presentation()
	sub := claims.RegisteredClaims.Subject
	iss := claims.RegisteredClaims.Issuer

	err = runChecks(
		func() error {
			if claims.Nonce != session.Nonce {
				return dErrors.New(dErrors.CodeSecurity, "nonce does not match verification session")
			}
			return nil
		},
		// The VP is self-attested: the presenter signs with the same key it
		// claims as subject and issuer.
		func() error {
			if sub == "" || sub != iss || sub != keyID.String() {
				return dErrors.New(dErrors.CodeSecurity, "presentation subject, issuer and signing key differ")
			}
			return nil
		},
		func() error {
			if vp.ID != session.ID {
				return dErrors.New(dErrors.CodeSecurity, "presentation id does not match verification session")
			}
			return nil
		},
		func() error {
			if vp.Holder != sub {
				return dErrors.New(dErrors.CodeSecurity, "presentation holder does not match subject")
			}
			return nil
		},
		func() error {
			if len(vp.VerifiableCredential) == 0 {
				return dErrors.New(dErrors.CodeBadFormat, "presentation carries no credential tokens")
			}
			return nil
		},
	)
	if err != nil {
		return nil, "", err
	}

	session.Holder = sub
	return vp.VerifiableCredential, sub, nil
}

// VerifyCredential validates one nested VC token and its binding to the
// expected holder.
func (v *Verifier) VerifyCredential(vcToken string, expectedHolder string) error {
	claims := &credential.CredentialClaims{}
	keyID, err := v.validateToken(vcToken, claims, "")
	if err != nil {
		return err
	}

	vc := claims.Credential()
	sub := claims.RegisteredClaims.Subject
	iss := claims.RegisteredClaims.Issuer
	jti := claims.RegisteredClaims.ID

	return runChecks(
		// The credential's declared issuer must be the same key that signed it.
		func() error {
			if vc.Issuer == nil || iss == "" || iss != vc.Issuer.ID || iss != keyID.String() {
				return dErrors.New(dErrors.CodeSecurity, "credential issuer does not match signing key")
			}
			return nil
		},
		func() error {
			if jti != vc.ID {
				return dErrors.New(dErrors.CodeSecurity, "credential id does not match token id")
			}
			return nil
		},
		// The credential must be bound to the same subject presenting it.
		func() error {
			if vc.CredentialSubject == nil {
				return dErrors.New(dErrors.CodeBadFormat, "credential carries no subject")
			}
			if sub == "" || sub != expectedHolder || vc.CredentialSubject.ID != expectedHolder {
				return dErrors.New(dErrors.CodeSecurity, "credential subject does not match holder")
			}
			return nil
		},
		func() error {
			// Trusted-issuer list membership is not enforced unless a list is
			// configured. Revocation is not checked at all.
			if v.TrustedIssuers != nil && !v.TrustedIssuers(iss) {
				return dErrors.New(dErrors.CodeSecurity, "credential issuer is not trusted")
			}
			return nil
		},
		func() error {
			return v.checkValidityWindow(vc.ValidFrom, vc.ValidUntil)
		},
	)
}

func (v *Verifier) checkValidityWindow(validFrom, validUntil string) error {
	from, err := time.Parse(time.RFC3339, validFrom)
	if err != nil {
		return dErrors.New(dErrors.CodeBadFormat, "credential validFrom is unparsable")
	}
	until, err := time.Parse(time.RFC3339, validUntil)
	if err != nil {
		return dErrors.New(dErrors.CodeBadFormat, "credential validUntil is unparsable")
	}
	now := v.now()
	if now.Before(from) {
		return dErrors.New(dErrors.CodeSecurity, "credential is not valid yet")
	}
	if now.After(until) {
		return dErrors.New(dErrors.CodeSecurity, "credential has expired")
	}
	return nil
}

// VerifyAll runs the presentation chain and then every nested credential.
// Any single failure aborts the whole exchange.
func (v *Verifier) VerifyAll(session *verification.Session, vpToken string) (string, error) {
	vcTokens, holder, err := v.VerifyPresentation(session, vpToken)
	if err != nil {
		return "", err
	}
	for _, vcToken := range vcTokens {
		if err := v.VerifyCredential(vcToken, holder); err != nil {
			return "", err
		}
	}
	session.VPToken = vpToken
	session.Success = true
	return holder, nil
}
