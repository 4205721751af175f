// Package verification holds the state of one VP-presentation exchange: the
// session a wallet presents against, created when a negotiation hands out its
// exchange URI and completed by the verification engine.
package verification

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// Status tracks the lifecycle of a verification session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Session is one VP-presentation exchange. ID equals the negotiation's
// correlation id; State is the opaque value in the exchange URL.
type Session struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Nonce string `json:"nonce"`
	// Audience is this exchange's own URL; a presented VP must name it in aud.
	Audience string `json:"audience"`

	VPToken string `json:"vpt,omitempty"`
	Holder  string `json:"holder,omitempty"`
	Success bool   `json:"success"`

	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// NewNonce returns a fresh cryptographically random nonce.
func NewNonce() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
