package session

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for session data access. It is pure
// storage indirection; no business rules live here.
type Repository interface {
	// Create persists a new session record
	Create(ctx context.Context, session Session) (Session, error)

	// GetByID retrieves a session by its id
	GetByID(ctx context.Context, id uuid.UUID) (Session, error)

	// FindByUserID lists sessions owned by a user, newest first
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]Session, error)

	// Update applies an atomic read-modify-write to one record. The
	// mutator sees the current record; concurrent updates on the same
	// id serialize rather than losing writes.
	Update(ctx context.Context, id uuid.UUID, mutate func(*Session) error) (Session, error)
}
