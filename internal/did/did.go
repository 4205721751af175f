// Package did models the self-certifying decentralized identifiers this server
// trusts. Only the did:jwk method exists today: the identifier embeds a
// base64url-encoded JSON Web Key, so resolving the verification key needs no
// external directory lookup.
package did

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Method is the DID method scheme. Modeled as an explicit enum so a future
// method (did:web, did:key) extends the switch in ResolveKey without touching
// verification logic.
type Method string

const (
	// MethodJWK is the did:jwk method: the method-specific id is a
	// base64url(raw) encoded JWK.
	MethodJWK Method = "jwk"
)

// DID is a parsed decentralized identifier.
type DID struct {
	Method Method
	// ID is the method-specific identifier, for did:jwk the encoded JWK.
	ID string
}

// Parse splits a DID string into method and method-specific id. It does not
// validate the embedded key material; ResolveKey does that.
func Parse(s string) (DID, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] != "did" || parts[1] == "" || parts[2] == "" {
		return DID{}, fmt.Errorf("malformed DID: %q", s)
	}
	method := Method(parts[1])
	switch method {
	case MethodJWK:
	default:
		return DID{}, fmt.Errorf("unsupported DID method: %q", parts[1])
	}
	return DID{Method: method, ID: parts[2]}, nil
}

func (d DID) String() string {
	return "did:" + string(d.Method) + ":" + d.ID
}

func (d DID) IsZero() bool {
	return d.Method == "" && d.ID == ""
}

// ResolveKey derives the verification key directly from the identifier.
// For did:jwk that means decoding the embedded JWK; identifiers carrying
// private key material are rejected.
func (d DID) ResolveKey() (crypto.PublicKey, error) {
	switch d.Method {
	case MethodJWK:
		return resolveJWK(d.ID)
	default:
		return nil, fmt.Errorf("unsupported DID method: %q", d.Method)
	}
}

func resolveJWK(encoded string) (crypto.PublicKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode did:jwk payload: %w", err)
	}

	key, err := jwk.ParseKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse embedded JWK: %w", err)
	}

	var rawKey any
	if err := key.Raw(&rawKey); err != nil {
		return nil, fmt.Errorf("extract raw key: %w", err)
	}

	// A did:jwk must only ever carry public key material.
	switch rawKey.(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey:
		return nil, fmt.Errorf("private key material is forbidden in did:jwk")
	}
	pub, err := jwk.PublicRawKeyOf(rawKey)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	return pub, nil
}

// FromPublicKey builds the did:jwk identifier for a public key. This is the
// inverse of ResolveKey and is what issuers put into JWT kid headers.
func FromPublicKey(pub crypto.PublicKey) (DID, error) {
	key, err := jwk.FromRaw(pub)
	if err != nil {
		return DID{}, fmt.Errorf("build JWK: %w", err)
	}
	encoded, err := json.Marshal(key)
	if err != nil {
		return DID{}, fmt.Errorf("marshal JWK: %w", err)
	}
	return DID{
		Method: MethodJWK,
		ID:     base64.RawURLEncoding.EncodeToString(encoded),
	}, nil
}
