package user

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/truledgr/ledger-auth/pkg/errors"
)

// PostgresUserRepository implements Repository using PostgreSQL
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresUserRepository creates a new PostgreSQL user repository
func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{
		pool: pool,
	}
}

// GetByID retrieves a user by id
func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	query := `
		SELECT id, username, email, full_name, is_active, is_admin
		FROM users
		WHERE id = $1
	`

	var u User
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.FullName,
		&u.Active,
		&u.Admin,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return User{}, errors.NotFound("user", id.String())
		}
		return User{}, errors.InternalWrap(err, "failed to get user")
	}

	return u, nil
}

// GetByUsername retrieves a user by username
func (r *PostgresUserRepository) GetByUsername(ctx context.Context, username string) (User, error) {
	query := `
		SELECT id, username, email, full_name, is_active, is_admin
		FROM users
		WHERE username = $1
	`

	var u User
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.FullName,
		&u.Active,
		&u.Admin,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return User{}, errors.NotFound("user", username)
		}
		return User{}, errors.InternalWrap(err, "failed to get user by username")
	}

	return u, nil
}
