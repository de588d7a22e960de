package impersonate

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for impersonation session data access
type Repository interface {
	// Create persists a new impersonation session record
	Create(ctx context.Context, session ImpersonationSession) (ImpersonationSession, error)

	// GetByID retrieves an impersonation session by its id
	GetByID(ctx context.Context, id uuid.UUID) (ImpersonationSession, error)

	// FindByAdminID lists sessions initiated by an admin, newest first
	FindByAdminID(ctx context.Context, adminID uuid.UUID) ([]ImpersonationSession, error)

	// Update applies an atomic read-modify-write to one record; two
	// concurrent end calls serialize so exactly one writer wins.
	Update(ctx context.Context, id uuid.UUID, mutate func(*ImpersonationSession) error) (ImpersonationSession, error)
}
