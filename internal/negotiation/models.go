// Package negotiation models the GNAP grant negotiation: an incoming access
// request becomes an out-of-band identity-proof interaction and, after a
// successful continuation, an access token.
package negotiation

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// MechanismOIDC4VP is the only interaction-start mechanism this server
// supports: credential presentation over redirect.
const MechanismOIDC4VP = "oidc4vp"

// Status tracks the durable state of a negotiation.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// GrantRequest is one negotiation attempt as submitted by a requester. Field
// names follow the GNAP wire encoding.
type GrantRequest struct {
	AccessToken AccessTokenRequest `json:"access_token"`
	Client      ClientDescriptor   `json:"client"`
	Interact    *InteractRequest   `json:"interact,omitempty"`
}

// AccessTokenRequest describes the token the requester wants.
type AccessTokenRequest struct {
	Access []AccessDescriptor `json:"access"`
	Label  string             `json:"label,omitempty"`
	Flags  []string           `json:"flags,omitempty"`
}

// AccessDescriptor is one requested access scope.
type AccessDescriptor struct {
	Type       string   `json:"type"`
	Actions    []string `json:"actions,omitempty"`
	Locations  []string `json:"locations,omitempty"`
	Datatypes  []string `json:"datatypes,omitempty"`
	Identifier string   `json:"identifier,omitempty"`
	Privileges []string `json:"privileges,omitempty"`
}

// ClientDescriptor identifies the requesting client instance.
type ClientDescriptor struct {
	ClassID string         `json:"class_id,omitempty"`
	Display *ClientDisplay `json:"display,omitempty"`
}

// ClientDisplay carries human-readable client info.
type ClientDisplay struct {
	Name string `json:"name,omitempty"`
	URI  string `json:"uri,omitempty"`
}

// Identifier returns the canonical client identifier: class_id, falling back
// to the display name. Empty when neither is present.
func (c ClientDescriptor) Identifier() string {
	if c.ClassID != "" {
		return c.ClassID
	}
	if c.Display != nil {
		return c.Display.Name
	}
	return ""
}

// InteractRequest declares how the client can interact to prove identity.
type InteractRequest struct {
	Start  []string        `json:"start"`
	Finish *InteractFinish `json:"finish,omitempty"`
}

// InteractFinish describes how the client wants to be called back.
type InteractFinish struct {
	Method     string `json:"method"`
	URI        string `json:"uri"`
	Nonce      string `json:"nonce,omitempty"`
	HashMethod string `json:"hash_method,omitempty"`
}

// Request is the negotiation's durable identity.
type Request struct {
	ID       string `json:"id"`
	Consumer string `json:"consumer"`
	Slug     string `json:"slug"`
	// Token is the issued access token, empty until approved.
	Token     string     `json:"token,omitempty"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Interaction is the out-of-band proof-of-identity exchange tied 1:1 to a
// Request; it shares the Request's id.
type Interaction struct {
	ID           string   `json:"id"`
	Start        []string `json:"start"`
	FinishMethod string   `json:"finish_method"`
	CallbackURI  string   `json:"callback_uri"`
	ClientNonce  string   `json:"client_nonce,omitempty"`
	HashMethod   string   `json:"hash_method,omitempty"`

	GrantEndpoint    string `json:"grant_endpoint"`
	ContinueEndpoint string `json:"continue_endpoint"`

	// ContinueToken and InteractRef are single-use capability secrets, both
	// consumed exactly once at continuation.
	ContinueToken string `json:"continue_token"`
	ContinueID    string `json:"continue_id"`
	ASNonce       string `json:"as_nonce"`
	InteractRef   string `json:"interact_ref"`
	Hash          string `json:"hash,omitempty"`
}

// TokenRequirements is the access scope actually to be granted. Immutable
// after creation; shares the Request's id.
type TokenRequirements struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Actions    []string `json:"actions,omitempty"`
	Locations  []string `json:"locations,omitempty"`
	Datatypes  []string `json:"datatypes,omitempty"`
	Identifier string   `json:"identifier,omitempty"`
	Privileges []string `json:"privileges,omitempty"`
	Label      string   `json:"label,omitempty"`
	Flags      []string `json:"flags,omitempty"`
}

// AccessToken is the capability granted on success.
type AccessToken struct {
	Value     string `json:"value"`
	TokenType string `json:"token_type,omitempty"`
}

// GrantResponse is the GNAP response to a started negotiation.
type GrantResponse struct {
	Interact *InteractResponse `json:"interact,omitempty"`
	Continue ContinueResponse  `json:"continue"`
}

// InteractResponse carries the exchange URI the client follows out of band.
type InteractResponse struct {
	Redirect string `json:"redirect,omitempty"`
	Finish   string `json:"finish,omitempty"`
}

// ContinueResponse tells the client where and how to continue. Wait is an
// advisory polling hint, not enforced server-side.
type ContinueResponse struct {
	URI         string      `json:"uri"`
	AccessToken AccessToken `json:"access_token"`
	Wait        int         `json:"wait,omitempty"`
}

// ContinuationRequest is the body posted back after the out-of-band proof.
type ContinuationRequest struct {
	InteractRef string `json:"interact_ref"`
}

// ContinuationResponse answers a successful continuation.
type ContinuationResponse struct {
	AccessToken AccessToken `json:"access_token"`
}

// NewOpaqueToken returns a fresh cryptographically random opaque secret.
func NewOpaqueToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
