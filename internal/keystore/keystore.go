// Package keystore abstracts where signing keys live: a local PEM file, the
// external wallet custody service, or a vault. The negotiation and issuance
// services only ever see the KeyStore capability.
package keystore

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"mandate/internal/did"
	dErrors "mandate/pkg/domain-errors"
)

//go:generate mockgen -source=keystore.go -destination=mocks/mocks.go -package=mocks

// KeyStore signs claim sets on behalf of a key reference and resolves public
// keys for identifiers it knows about.
type KeyStore interface {
	// Sign produces a compact JWT over claims, signed by the key keyRef points
	// at, with the JOSE header kid set to keyRef.
	Sign(ctx context.Context, claims jwt.Claims, keyRef did.DID) (string, error)
	// PublicKey returns the verification key for an identifier. Self-certifying
	// identifiers resolve locally; anything else must be a key this store holds.
	PublicKey(ctx context.Context, id did.DID) (crypto.PublicKey, error)
}

// LocalKeyStore holds one RSA private key in process memory. Used for dev
// setups and tests; production deployments point at the wallet service.
type LocalKeyStore struct {
	key *rsa.PrivateKey
	id  did.DID
}

// NewLocal wraps an existing private key.
func NewLocal(key *rsa.PrivateKey) (*LocalKeyStore, error) {
	id, err := did.FromPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("derive did for local key: %w", err)
	}
	return &LocalKeyStore{key: key, id: id}, nil
}

// NewLocalFromFile loads a PEM-encoded RSA private key, generating an
// ephemeral one when path is empty.
func NewLocalFromFile(path string) (*LocalKeyStore, error) {
	if path == "" {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("generate ephemeral key: %w", err)
		}
		return NewLocal(key)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		parsed, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err2 != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key in %s is not RSA", path)
		}
		key = rsaKey
	}
	return NewLocal(key)
}

// DID returns the self-certifying identifier of the held key.
func (s *LocalKeyStore) DID() did.DID { return s.id }

func (s *LocalKeyStore) Sign(_ context.Context, claims jwt.Claims, keyRef did.DID) (string, error) {
	if keyRef.String() != s.id.String() {
		return "", dErrors.Newf(dErrors.CodeVault, "key %s not held by local store", keyRef)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyRef.String()
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeVault, "sign claims")
	}
	return signed, nil
}

func (s *LocalKeyStore) PublicKey(_ context.Context, id did.DID) (crypto.PublicKey, error) {
	if id.String() == s.id.String() {
		return &s.key.PublicKey, nil
	}
	key, err := id.ResolveKey()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeVault, "resolve public key")
	}
	return key, nil
}
