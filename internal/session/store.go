// Package session persists per-session pipeline state. The controller
// treats the store as a plain key/value bag; both the in-memory and the
// Redis implementation satisfy the same contract.
package session

import (
	"context"

	"babygen/internal/domain"
)

// Store is the session persistence contract. Load returns
// domain.ErrSessionNotFound for unknown IDs.
type Store interface {
	Load(ctx context.Context, id string) (*domain.SessionState, error)
	Save(ctx context.Context, state *domain.SessionState) error
	Delete(ctx context.Context, id string) error
}
