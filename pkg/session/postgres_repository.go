package session

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/truledgr/ledger-auth/pkg/errors"
)

// PostgresSessionRepository implements the Repository interface using PostgreSQL
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionRepository creates a new PostgreSQL session repository
func NewPostgresSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{
		pool: pool,
	}
}

func scanSession(row pgx.Row) (Session, error) {
	session := Session{}
	var revokedAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.RefreshJTI,
		&session.IssuedAt,
		&session.ExpiresAt,
		&revokedAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return Session{}, err
	}

	if revokedAt.Valid {
		session.RevokedAt = &revokedAt.Time
	}
	return session, nil
}

// Create persists a new session record
func (r *PostgresSessionRepository) Create(ctx context.Context, session Session) (Session, error) {
	query := `
		INSERT INTO sessions (
			id, user_id, refresh_jti, issued_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5
		) RETURNING
			id, user_id, refresh_jti, issued_at, expires_at, revoked_at,
			created_at, updated_at
	`

	created, err := scanSession(r.pool.QueryRow(ctx, query,
		session.ID,
		session.UserID,
		session.RefreshJTI,
		session.IssuedAt,
		session.ExpiresAt,
	))
	if err != nil {
		return Session{}, errors.InternalWrap(err, "failed to create session")
	}

	return created, nil
}

// GetByID retrieves a session by its id
func (r *PostgresSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (Session, error) {
	query := `
		SELECT
			id, user_id, refresh_jti, issued_at, expires_at, revoked_at,
			created_at, updated_at
		FROM sessions
		WHERE id = $1
	`

	session, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return Session{}, errors.NotFound("session", id.String())
		}
		return Session{}, errors.InternalWrap(err, "failed to get session")
	}

	return session, nil
}

// FindByUserID lists sessions owned by a user, newest first
func (r *PostgresSessionRepository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]Session, error) {
	query := `
		SELECT
			id, user_id, refresh_jti, issued_at, expires_at, revoked_at,
			created_at, updated_at
		FROM sessions
		WHERE user_id = $1
		ORDER BY issued_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to list sessions")
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, errors.InternalWrap(err, "failed to scan session")
		}
		sessions = append(sessions, session)
	}

	if rows.Err() != nil {
		return nil, errors.InternalWrap(rows.Err(), "error iterating sessions")
	}

	return sessions, nil
}

// Update applies an atomic read-modify-write to one record using a
// row-level lock so concurrent mutations on the same session serialize
func (r *PostgresSessionRepository) Update(ctx context.Context, id uuid.UUID, mutate func(*Session) error) (Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Session{}, errors.InternalWrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	selectQuery := `
		SELECT
			id, user_id, refresh_jti, issued_at, expires_at, revoked_at,
			created_at, updated_at
		FROM sessions
		WHERE id = $1
		FOR UPDATE
	`

	session, err := scanSession(tx.QueryRow(ctx, selectQuery, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return Session{}, errors.NotFound("session", id.String())
		}
		return Session{}, errors.InternalWrap(err, "failed to lock session")
	}

	if err := mutate(&session); err != nil {
		return Session{}, err
	}

	var revokedAt sql.NullTime
	if session.RevokedAt != nil {
		revokedAt = sql.NullTime{Time: *session.RevokedAt, Valid: true}
	}

	updateQuery := `
		UPDATE sessions
		SET refresh_jti = $2,
		    expires_at = $3,
		    revoked_at = $4,
		    updated_at = NOW()
		WHERE id = $1
	`

	if _, err := tx.Exec(ctx, updateQuery, session.ID, session.RefreshJTI, session.ExpiresAt, revokedAt); err != nil {
		return Session{}, errors.InternalWrap(err, "failed to update session")
	}

	if err := tx.Commit(ctx); err != nil {
		return Session{}, errors.InternalWrap(err, fmt.Sprintf("failed to commit session update %s", id))
	}

	return session, nil
}
