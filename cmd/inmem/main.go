// Package main runs the auth service without a database using
// in-memory repositories. Useful for development, demos, and trying
// the API without PostgreSQL; all state is lost on shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/chi-demo/app"
	"golang.org/x/crypto/bcrypt"

	"github.com/truledgr/ledger-auth/pkg/errors"
	"github.com/truledgr/ledger-auth/pkg/identity"
	"github.com/truledgr/ledger-auth/pkg/impersonate"
	impersonateapi "github.com/truledgr/ledger-auth/pkg/impersonate/api"
	"github.com/truledgr/ledger-auth/pkg/session"
	sessionapi "github.com/truledgr/ledger-auth/pkg/session/api"
	"github.com/truledgr/ledger-auth/pkg/token"
	"github.com/truledgr/ledger-auth/pkg/user"
)

const jwtSecret = "inmem-dev-secret-change-in-production"

// inmemCredentialVerifier checks passwords against bcrypt hashes held
// in memory, keyed by username.
type inmemCredentialVerifier struct {
	users  *user.InMemoryUserRepository
	hashes map[string][]byte
}

func (v *inmemCredentialVerifier) Verify(ctx context.Context, username, password string) (user.User, error) {
	hash, ok := v.hashes[username]
	if !ok {
		return user.User{}, errors.Unauthorized("invalid username or password")
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return user.User{}, errors.Unauthorized("invalid username or password")
	}
	return v.users.GetByUsername(ctx, username)
}

func seedUsers(repo *user.InMemoryUserRepository, verifier *inmemCredentialVerifier) {
	demoUsers := []struct {
		user     user.User
		password string
	}{
		{
			user: user.User{
				ID:       uuid.New(),
				Username: "admin",
				Email:    "admin@example.com",
				FullName: "Demo Admin",
				Active:   true,
				Admin:    true,
			},
			password: "admin123",
		},
		{
			user: user.User{
				ID:       uuid.New(),
				Username: "alice",
				Email:    "alice@example.com",
				FullName: "Alice Demo",
				Active:   true,
			},
			password: "alice123",
		},
		{
			user: user.User{
				ID:       uuid.New(),
				Username: "inactive",
				Email:    "inactive@example.com",
				FullName: "Disabled Account",
			},
			password: "inactive123",
		},
	}

	for _, seed := range demoUsers {
		hash, err := bcrypt.GenerateFromPassword([]byte(seed.password), bcrypt.DefaultCost)
		if err != nil {
			slog.Error("Failed to hash demo password", "username", seed.user.Username, "err", err)
			os.Exit(1)
		}
		repo.Put(seed.user)
		verifier.hashes[seed.user.Username] = hash
		slog.Info("Seeded demo user", "username", seed.user.Username, "user_id", seed.user.ID, "is_admin", seed.user.Admin)
	}
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting in-memory auth service (no database required)")

	codec := token.NewCodec(jwtSecret, "ledger-auth-inmem", "ledger-auth")

	userRepo := user.NewInMemoryUserRepository()
	sessionRepo := session.NewInMemorySessionRepository()
	impersonationRepo := impersonate.NewInMemoryImpersonationRepository()

	verifier := &inmemCredentialVerifier{
		users:  userRepo,
		hashes: make(map[string][]byte),
	}
	seedUsers(userRepo, verifier)

	sessionService := session.NewService(sessionRepo, codec)
	impersonationService := impersonate.NewService(impersonationRepo, userRepo, codec)
	resolver := identity.NewResolver(codec, sessionService, impersonationService, userRepo)

	sessionHandler := sessionapi.NewHandler(sessionService, verifier,
		sessionapi.WithCookieSecure(false))
	impersonationHandler := impersonateapi.NewHandler(impersonationService)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)

	server.R.Route("/auth", func(r chi.Router) {
		sessionHandler.RegisterPublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(identity.Middleware(resolver))
			sessionHandler.RegisterProtectedRoutes(r)
			r.Route("/impersonations", impersonationHandler.RegisterRoutes)
		})
	})

	server.Run()
}
