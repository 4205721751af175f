package keystore

import (
	"bytes"
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-retryablehttp"

	"mandate/internal/did"
	dErrors "mandate/pkg/domain-errors"
)

// WalletKeyStore delegates signing to the external wallet custody service.
// Private keys never enter this process; the wallet returns the raw signed
// token on request.
type WalletKeyStore struct {
	baseURL string
	http    *retryablehttp.Client
}

// NewWallet builds a wallet-backed key store for the custody service at baseURL.
func NewWallet(baseURL string) *WalletKeyStore {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil
	return &WalletKeyStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
	}
}

type walletSignRequest struct {
	KeyRef string         `json:"key_ref"`
	Header map[string]any `json:"header"`
	Claims jwt.Claims     `json:"claims"`
}

type walletSignResponse struct {
	Token string `json:"token"`
}

func (s *WalletKeyStore) Sign(ctx context.Context, claims jwt.Claims, keyRef did.DID) (string, error) {
	body, err := json.Marshal(walletSignRequest{
		KeyRef: keyRef.String(),
		Header: map[string]any{"alg": "RS256", "typ": "JWT", "kid": keyRef.String()},
		Claims: claims,
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeVault, "encode signing request")
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/v1/sign", bytes.NewReader(body))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeVault, "build signing request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeVault, "call wallet")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", dErrors.Wrap(fmt.Errorf("wallet answered %d", resp.StatusCode), dErrors.CodeVault, "wallet signing failed")
	}

	var signed walletSignResponse
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeVault, "decode wallet response")
	}
	return signed.Token, nil
}

// PublicKey resolves self-certifying identifiers locally; the wallet holds no
// directory of foreign keys.
func (s *WalletKeyStore) PublicKey(_ context.Context, id did.DID) (crypto.PublicKey, error) {
	key, err := id.ResolveKey()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeVault, "resolve public key")
	}
	return key, nil
}
