package user

import (
	"context"

	"github.com/google/uuid"
)

// User is the account referenced by sessions and impersonations. The
// core reads the active and admin flags; everything else about the user
// is owned by the surrounding CRUD API.
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name,omitempty"`
	Active   bool      `json:"is_active"`
	Admin    bool      `json:"is_admin"`
}

// Repository is the user-lookup capability consumed by the session and
// impersonation services
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
}
