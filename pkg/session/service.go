package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/truledgr/ledger-auth/pkg/errors"
	"github.com/truledgr/ledger-auth/pkg/token"
	"github.com/truledgr/ledger-auth/pkg/user"
)

// Service manages the lifecycle of regular sessions: creation on login,
// access-token refresh, and revocation on logout.
type Service struct {
	repo               Repository
	codec              *token.Codec
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	now                func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithAccessTokenExpiry sets the access token expiry duration
func WithAccessTokenExpiry(expiry time.Duration) Option {
	return func(s *Service) {
		if expiry > 0 {
			s.accessTokenExpiry = expiry
		}
	}
}

// WithRefreshTokenExpiry sets the refresh token and session expiry duration
func WithRefreshTokenExpiry(expiry time.Duration) Option {
	return func(s *Service) {
		if expiry > 0 {
			s.refreshTokenExpiry = expiry
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new session lifecycle service
func NewService(repo Repository, codec *token.Codec, opts ...Option) *Service {
	service := &Service{
		repo:               repo,
		codec:              codec,
		accessTokenExpiry:  token.DefaultAccessTokenExpiry,
		refreshTokenExpiry: token.DefaultRefreshTokenExpiry,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// AccessTokenExpiry returns the configured access token lifetime
func (s *Service) AccessTokenExpiry() time.Duration {
	return s.accessTokenExpiry
}

// Now returns the service's current UTC time
func (s *Service) Now() time.Time {
	return s.now().UTC()
}

// CreateSessionResult carries the issued tokens plus the persisted record
type CreateSessionResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Session          Session
}

// RefreshResult carries the re-issued access token
type RefreshResult struct {
	AccessToken     string
	AccessExpiresAt time.Time
	UserID          uuid.UUID
	SessionID       uuid.UUID
}

// CreateSession creates a session for an already-authenticated user and
// issues the access/refresh token pair backed by it. Fails with
// USER_INACTIVE when the account is disabled.
func (s *Service) CreateSession(ctx context.Context, u user.User) (*CreateSessionResult, error) {
	if !u.Active {
		return nil, errors.New(errors.ErrCodeUserInactive, "user is inactive")
	}

	sessionID := uuid.New()
	now := s.now().UTC()

	refreshToken, refreshClaims, err := s.codec.GenerateToken(u.ID.String(), token.KindRegular, sessionID, "", s.refreshTokenExpiry)
	if err != nil {
		return nil, err
	}

	// The session window matches the refresh credential: once the
	// refresh token can no longer be used, the record is dead weight.
	created, err := s.repo.Create(ctx, Session{
		ID:         sessionID,
		UserID:     u.ID,
		RefreshJTI: refreshClaims.ID,
		IssuedAt:   now,
		ExpiresAt:  refreshClaims.ExpiresAt.Time,
	})
	if err != nil {
		slog.Error("Failed to create session record", "user_id", u.ID, "err", err)
		return nil, err
	}

	accessToken, accessClaims, err := s.codec.GenerateToken(u.ID.String(), token.KindRegular, sessionID, "", s.accessTokenExpiry)
	if err != nil {
		return nil, err
	}

	slog.Info("Session created", "session_id", created.ID, "user_id", u.ID)

	return &CreateSessionResult{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
		Session:          created,
	}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is not rotated; one refresh credential per
// session stays valid until the session ends.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := s.codec.ParseToken(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.Kind != token.KindRegular {
		return nil, errors.TokenInvalid("not a regular session token")
	}

	sessionID, err := claims.SessionUUID()
	if err != nil {
		return nil, errors.TokenInvalid("malformed session claim")
	}

	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return nil, errors.TokenInvalid("unknown session")
		}
		return nil, err
	}

	if claims.ID != session.RefreshJTI {
		return nil, errors.TokenInvalid("superseded refresh credential")
	}
	if session.Revoked() {
		return nil, errors.New(errors.ErrCodeSessionRevoked, "session has been revoked")
	}
	if session.Expired(s.now().UTC()) {
		return nil, errors.New(errors.ErrCodeSessionExpired, "session has expired")
	}

	accessToken, accessClaims, err := s.codec.GenerateToken(claims.Subject, token.KindRegular, sessionID, "", s.accessTokenExpiry)
	if err != nil {
		return nil, err
	}

	userID, err := claims.SubjectID()
	if err != nil {
		return nil, errors.TokenInvalid("malformed subject claim")
	}

	return &RefreshResult{
		AccessToken:     accessToken,
		AccessExpiresAt: accessClaims.ExpiresAt.Time,
		UserID:          userID,
		SessionID:       sessionID,
	}, nil
}

// Revoke marks a session revoked. Idempotent: revoking an already
// revoked session succeeds without touching the original timestamp.
// Fails only with NOT_FOUND on an unknown id.
func (s *Service) Revoke(ctx context.Context, sessionID uuid.UUID) error {
	_, err := s.repo.Update(ctx, sessionID, func(session *Session) error {
		if session.RevokedAt == nil {
			revokedAt := s.now().UTC()
			session.RevokedAt = &revokedAt
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("Session revoked", "session_id", sessionID)
	return nil
}

// GetSession retrieves a session by id
func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	return s.repo.GetByID(ctx, id)
}

// ListSessions returns summaries of a user's sessions, newest first,
// with status derived lazily at read time.
func (s *Service) ListSessions(ctx context.Context, userID uuid.UUID) ([]SessionSummary, error) {
	sessions, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	summaries := make([]SessionSummary, len(sessions))
	for i, session := range sessions {
		summaries[i] = SessionSummary{
			ID:        session.ID,
			UserID:    session.UserID,
			Status:    session.Status(now),
			CreatedAt: session.CreatedAt,
			ExpiresAt: session.ExpiresAt,
			RevokedAt: session.RevokedAt,
		}
	}
	return summaries, nil
}
