package impersonate

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/truledgr/ledger-auth/pkg/errors"
)

// PostgresImpersonationRepository implements the Repository interface using PostgreSQL
type PostgresImpersonationRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresImpersonationRepository creates a new PostgreSQL impersonation repository
func NewPostgresImpersonationRepository(pool *pgxpool.Pool) *PostgresImpersonationRepository {
	return &PostgresImpersonationRepository{
		pool: pool,
	}
}

func scanImpersonationSession(row pgx.Row) (ImpersonationSession, error) {
	session := ImpersonationSession{}
	var endedAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.AdminUserID,
		&session.TargetUserID,
		&session.Reason,
		&session.IssuedAt,
		&session.ExpiresAt,
		&endedAt,
		&session.Status,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return ImpersonationSession{}, err
	}

	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	return session, nil
}

// Create persists a new impersonation session record
func (r *PostgresImpersonationRepository) Create(ctx context.Context, session ImpersonationSession) (ImpersonationSession, error) {
	query := `
		INSERT INTO impersonation_sessions (
			id, admin_user_id, target_user_id, reason, issued_at, expires_at, status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		) RETURNING
			id, admin_user_id, target_user_id, reason, issued_at, expires_at,
			ended_at, status, created_at, updated_at
	`

	created, err := scanImpersonationSession(r.pool.QueryRow(ctx, query,
		session.ID,
		session.AdminUserID,
		session.TargetUserID,
		session.Reason,
		session.IssuedAt,
		session.ExpiresAt,
		session.Status,
	))
	if err != nil {
		return ImpersonationSession{}, errors.InternalWrap(err, "failed to create impersonation session")
	}

	return created, nil
}

// GetByID retrieves an impersonation session by its id
func (r *PostgresImpersonationRepository) GetByID(ctx context.Context, id uuid.UUID) (ImpersonationSession, error) {
	query := `
		SELECT
			id, admin_user_id, target_user_id, reason, issued_at, expires_at,
			ended_at, status, created_at, updated_at
		FROM impersonation_sessions
		WHERE id = $1
	`

	session, err := scanImpersonationSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return ImpersonationSession{}, errors.NotFound("impersonation session", id.String())
		}
		return ImpersonationSession{}, errors.InternalWrap(err, "failed to get impersonation session")
	}

	return session, nil
}

// FindByAdminID lists sessions initiated by an admin, newest first
func (r *PostgresImpersonationRepository) FindByAdminID(ctx context.Context, adminID uuid.UUID) ([]ImpersonationSession, error) {
	query := `
		SELECT
			id, admin_user_id, target_user_id, reason, issued_at, expires_at,
			ended_at, status, created_at, updated_at
		FROM impersonation_sessions
		WHERE admin_user_id = $1
		ORDER BY issued_at DESC
	`

	rows, err := r.pool.Query(ctx, query, adminID)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to list impersonation sessions")
	}
	defer rows.Close()

	var sessions []ImpersonationSession
	for rows.Next() {
		session, err := scanImpersonationSession(rows)
		if err != nil {
			return nil, errors.InternalWrap(err, "failed to scan impersonation session")
		}
		sessions = append(sessions, session)
	}

	if rows.Err() != nil {
		return nil, errors.InternalWrap(rows.Err(), "error iterating impersonation sessions")
	}

	return sessions, nil
}

// Update applies an atomic read-modify-write to one record using a
// row-level lock so concurrent mutations on the same session serialize
func (r *PostgresImpersonationRepository) Update(ctx context.Context, id uuid.UUID, mutate func(*ImpersonationSession) error) (ImpersonationSession, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return ImpersonationSession{}, errors.InternalWrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	selectQuery := `
		SELECT
			id, admin_user_id, target_user_id, reason, issued_at, expires_at,
			ended_at, status, created_at, updated_at
		FROM impersonation_sessions
		WHERE id = $1
		FOR UPDATE
	`

	session, err := scanImpersonationSession(tx.QueryRow(ctx, selectQuery, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return ImpersonationSession{}, errors.NotFound("impersonation session", id.String())
		}
		return ImpersonationSession{}, errors.InternalWrap(err, "failed to lock impersonation session")
	}

	if err := mutate(&session); err != nil {
		return ImpersonationSession{}, err
	}

	var endedAt sql.NullTime
	if session.EndedAt != nil {
		endedAt = sql.NullTime{Time: *session.EndedAt, Valid: true}
	}

	updateQuery := `
		UPDATE impersonation_sessions
		SET ended_at = $2,
		    status = $3,
		    updated_at = NOW()
		WHERE id = $1
	`

	if _, err := tx.Exec(ctx, updateQuery, session.ID, endedAt, session.Status); err != nil {
		return ImpersonationSession{}, errors.InternalWrap(err, "failed to update impersonation session")
	}

	if err := tx.Commit(ctx); err != nil {
		return ImpersonationSession{}, errors.InternalWrap(err, "failed to commit impersonation session update")
	}

	return session, nil
}
