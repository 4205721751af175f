// Package credential defines the typed claim shapes for JWT-encoded W3C
// Verifiable Credentials and Presentations. Two data-model versions exist:
// v1 wraps the credential fields inside a nested "vc"/"vp" claim, v2 hoists
// them to the top level of the claim set. Everything else is identical.
package credential

import (
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// ContextV1 and ContextV2 are the W3C credential context URIs per data model.
	ContextV1 = "https://www.w3.org/2018/credentials/v1"
	ContextV2 = "https://www.w3.org/ns/credentials/v2"

	TypeCredential   = "VerifiableCredential"
	TypePresentation = "VerifiablePresentation"

	// FormatJWTVCJSON tags issued artifacts on the wire.
	FormatJWTVCJSON = "jwt_vc_json"
)

// DataModelVersion selects the claim layout for issued artifacts.
type DataModelVersion string

const (
	DataModelV1 DataModelVersion = "1.1"
	DataModelV2 DataModelVersion = "2.0"
)

// Context returns the context URI for the version.
func (v DataModelVersion) Context() string {
	if v == DataModelV1 {
		return ContextV1
	}
	return ContextV2
}

// Issuer is the credential issuer descriptor. On the wire it is either a bare
// DID string or an object carrying an "id" field; both decode into ID.
type Issuer struct {
	ID string `json:"id"`
}

func (i *Issuer) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		i.ID = s
		return nil
	}
	type alias Issuer
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("issuer is neither string nor object: %w", err)
	}
	*i = Issuer(a)
	return nil
}

// Subject is the credentialSubject claim: a required "id" plus arbitrary
// type-specific attributes, preserved verbatim.
type Subject struct {
	ID     string
	Claims map[string]any
}

func (s *Subject) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if id, ok := m["id"].(string); ok {
		s.ID = id
	}
	delete(m, "id")
	s.Claims = m
	return nil
}

func (s Subject) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(s.Claims)+1)
	for k, v := range s.Claims {
		m[k] = v
	}
	if s.ID != "" {
		m["id"] = s.ID
	}
	return json.Marshal(m)
}

// CredentialObject carries the credential fields shared by both data-model
// versions. In v1 it lives under the "vc" claim, in v2 at the top level.
type CredentialObject struct {
	Context           []string `json:"@context,omitempty"`
	ID                string   `json:"id,omitempty"`
	Type              []string `json:"type,omitempty"`
	Issuer            *Issuer  `json:"issuer,omitempty"`
	ValidFrom         string   `json:"validFrom,omitempty"`
	ValidUntil        string   `json:"validUntil,omitempty"`
	CredentialSubject *Subject `json:"credentialSubject,omitempty"`
}

// CredentialClaims is the full claim set of a JWT-encoded credential.
type CredentialClaims struct {
	jwt.RegisteredClaims
	// VC is populated for data-model v1 tokens.
	VC *CredentialObject `json:"vc,omitempty"`
	// The embedded object holds the same fields hoisted for v2 tokens.
	CredentialObject
}

// Credential returns whichever layout the token used.
func (c *CredentialClaims) Credential() *CredentialObject {
	if c.VC != nil {
		return c.VC
	}
	return &c.CredentialObject
}

// PresentationObject carries the presentation fields; same nesting rules as
// CredentialObject.
type PresentationObject struct {
	Context              []string `json:"@context,omitempty"`
	ID                   string   `json:"id,omitempty"`
	Type                 []string `json:"type,omitempty"`
	Holder               string   `json:"holder,omitempty"`
	VerifiableCredential []string `json:"verifiableCredential,omitempty"`
	ValidFrom            string   `json:"validFrom,omitempty"`
	ValidUntil           string   `json:"validUntil,omitempty"`
}

// PresentationClaims is the full claim set of a JWT-encoded presentation.
type PresentationClaims struct {
	jwt.RegisteredClaims
	Nonce string `json:"nonce,omitempty"`
	// VP is populated for data-model v1 tokens.
	VP *PresentationObject `json:"vp,omitempty"`
	PresentationObject
}

// Presentation returns whichever layout the token used.
func (p *PresentationClaims) Presentation() *PresentationObject {
	if p.VP != nil {
		return p.VP
	}
	return &p.PresentationObject
}

// SignedCredential is one issued credential artifact.
type SignedCredential struct {
	Format     string `json:"format"`
	Credential string `json:"credential"`
	Type       string `json:"type"`
}

// SignedPresentation is one issued presentation artifact.
type SignedPresentation struct {
	Format       string `json:"format"`
	Presentation string `json:"presentation"`
}
