package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/truledgr/ledger-auth/pkg/errors"
)

func setupTestDatabase(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithInitScripts(filepath.Join("../../migrations", "auth_db.sql")),
		postgres.WithDatabase("auth_db"),
		postgres.WithUsername("auth"),
		postgres.WithPassword("pwd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	require.NoError(t, err)

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

func seedUser(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO users (id, username, email) VALUES ($1, $2, $3)`,
		userID, "user-"+userID.String()[:8], userID.String()[:8]+"@example.com")
	require.NoError(t, err)
	return userID
}

func TestPostgresSessionRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	repo := NewPostgresSessionRepository(pool)
	userID := seedUser(t, pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	created, err := repo.Create(ctx, Session{
		ID:         uuid.New(),
		UserID:     userID,
		RefreshJTI: uuid.New().String(),
		IssuedAt:   now,
		ExpiresAt:  now.Add(7 * 24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Nil(t, created.RevokedAt)

	fetched, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, userID, fetched.UserID)
	assert.Equal(t, created.RefreshJTI, fetched.RefreshJTI)

	_, err = repo.GetByID(ctx, uuid.New())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))

	// Second, newer session for the same user.
	later, err := repo.Create(ctx, Session{
		ID:         uuid.New(),
		UserID:     userID,
		RefreshJTI: uuid.New().String(),
		IssuedAt:   now.Add(time.Minute),
		ExpiresAt:  now.Add(7 * 24 * time.Hour),
	})
	require.NoError(t, err)

	sessions, err := repo.FindByUserID(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, later.ID, sessions[0].ID)
	assert.Equal(t, created.ID, sessions[1].ID)

	// Atomic update marks the record revoked.
	revokedAt := now.Add(2 * time.Minute)
	updated, err := repo.Update(ctx, created.ID, func(s *Session) error {
		s.RevokedAt = &revokedAt
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, updated.RevokedAt)
	assert.True(t, updated.RevokedAt.Equal(revokedAt))

	fetched, err = repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, fetched.Revoked())

	// Mutator errors roll the transaction back.
	_, err = repo.Update(ctx, created.ID, func(s *Session) error {
		s.RevokedAt = nil
		return errors.New(errors.ErrCodeNotAuthorized, "rejected")
	})
	require.Error(t, err)

	fetched, err = repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, fetched.Revoked())
}
