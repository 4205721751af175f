package store

import (
	"context"

	"mandate/internal/verification"
)

// Store persists verification sessions. Implementations return sentinel
// errors; the service translates them into domain errors.
type Store interface {
	Create(ctx context.Context, session *verification.Session) error
	FindByState(ctx context.Context, state string) (*verification.Session, error)
	FindByID(ctx context.Context, id string) (*verification.Session, error)
	Update(ctx context.Context, session *verification.Session) error
}
