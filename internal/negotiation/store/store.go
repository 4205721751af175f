// Package store persists negotiation state. Implementations return sentinel
// errors; services translate them into domain errors.
package store

import (
	"context"

	"mandate/internal/negotiation"
)

// RequestStore persists negotiations.
type RequestStore interface {
	Create(ctx context.Context, request *negotiation.Request) error
	FindByID(ctx context.Context, id string) (*negotiation.Request, error)
	FindByToken(ctx context.Context, token string) (*negotiation.Request, error)
	Update(ctx context.Context, request *negotiation.Request) error
}

// InteractionStore persists the interaction side of a negotiation.
//
// ConsumeContinuation is the single-use gate: it atomically looks up the
// pending interaction by interact_ref, compares the continue token in
// constant time, and retires the capability pair so no concurrent or later
// attempt can succeed. Any mismatch or replay returns sentinel.ErrAlreadyUsed
// or sentinel.ErrNotFound; callers must not distinguish the two outwardly.
type InteractionStore interface {
	Create(ctx context.Context, interaction *negotiation.Interaction) error
	FindByID(ctx context.Context, id string) (*negotiation.Interaction, error)
	ConsumeContinuation(ctx context.Context, interactRef, continueToken string) (*negotiation.Interaction, error)
}

// RequirementsStore persists the immutable granted-scope snapshot.
type RequirementsStore interface {
	Create(ctx context.Context, requirements *negotiation.TokenRequirements) error
	FindByID(ctx context.Context, id string) (*negotiation.TokenRequirements, error)
}
