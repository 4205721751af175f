// Package mates is the trust registry: the durable binding between a
// counter-party and the access token a successful negotiation issued to it.
package mates

import "time"

// ParticipantType classifies the counter-party.
type ParticipantType string

const (
	TypeConsumer  ParticipantType = "consumer"
	TypeAuthority ParticipantType = "authority"
	TypeBusiness  ParticipantType = "business"
	TypeMe        ParticipantType = "me"
)

// Mate is one participant↔token binding.
type Mate struct {
	// ID is the participant's resolved holder identifier (its DID).
	ID   string          `json:"id"`
	Slug string          `json:"slug"`
	Type ParticipantType `json:"type"`
	// BaseURL is the origin (scheme+host) derived from the interaction
	// callback URI.
	BaseURL         string    `json:"base_url"`
	Token           string    `json:"token"`
	IsMe            bool      `json:"is_me"`
	SavedAt         time.Time `json:"saved_at"`
	LastInteraction time.Time `json:"last_interaction"`
}
