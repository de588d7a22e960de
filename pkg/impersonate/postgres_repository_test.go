package impersonate

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

func TestPostgresImpersonationRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	repo := NewPostgresImpersonationRepository(pool)
	adminID := seedUser(t, pool)
	targetID := seedUser(t, pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	created, err := repo.Create(ctx, ImpersonationSession{
		ID:           uuid.New(),
		AdminUserID:  adminID,
		TargetUserID: targetID,
		Reason:       "customer support",
		IssuedAt:     now,
		ExpiresAt:    now.Add(DefaultDuration),
		Status:       StatusActive,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, created.Status)
	assert.Nil(t, created.EndedAt)

	fetched, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, adminID, fetched.AdminUserID)
	assert.Equal(t, targetID, fetched.TargetUserID)
	assert.Equal(t, "customer support", fetched.Reason)

	_, err = repo.GetByID(ctx, uuid.New())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))

	sessions, err := repo.FindByAdminID(ctx, adminID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	endedAt := now.Add(time.Minute)
	updated, err := repo.Update(ctx, created.ID, func(s *ImpersonationSession) error {
		s.Status = StatusRevoked
		s.EndedAt = &endedAt
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, updated.Status)
	require.NotNil(t, updated.EndedAt)
	assert.True(t, updated.EndedAt.Equal(endedAt))

	// The schema refuses self-impersonation outright.
	_, err = repo.Create(ctx, ImpersonationSession{
		ID:           uuid.New(),
		AdminUserID:  adminID,
		TargetUserID: adminID,
		Reason:       "should fail",
		IssuedAt:     now,
		ExpiresAt:    now.Add(DefaultDuration),
		Status:       StatusActive,
	})
	require.Error(t, err)
}
