package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"
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

type AuthDbConfig struct {
	Host     string `env:"AUTH_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"AUTH_PG_PORT" env-default:"5432"`
	Database string `env:"AUTH_PG_DATABASE" env-default:"auth_db"`
	User     string `env:"AUTH_PG_USER" env-default:"auth"`
	Password string `env:"AUTH_PG_PASSWORD" env-default:"pwd"`
}

func (d AuthDbConfig) toDbConfig() dbutils.DbConfig {
	return dbutils.DbConfig{
		Host:     d.Host,
		Port:     d.Port,
		Database: d.Database,
		User:     d.User,
		Password: d.Password,
	}
}

type JwtConfig struct {
	Secret             string `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
	Issuer             string `env:"JWT_ISSUER" env-default:"ledger-auth"`
	Audience           string `env:"JWT_AUDIENCE" env-default:"ledger-auth"`
	CookieHttpOnly     bool   `env:"COOKIE_HTTP_ONLY" env-default:"true"`
	CookieSecure       bool   `env:"COOKIE_SECURE" env-default:"true"`
	AccessTokenExpiry  string `env:"ACCESS_TOKEN_EXPIRY" env-default:"15m"`
	RefreshTokenExpiry string `env:"REFRESH_TOKEN_EXPIRY" env-default:"168h"`
}

type ImpersonationConfig struct {
	Duration string `env:"IMPERSONATION_DURATION" env-default:"2h"`
}

type Config struct {
	AuthDbConfig        AuthDbConfig
	JwtConfig           JwtConfig
	ImpersonationConfig ImpersonationConfig
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("Invalid duration, using default", "value", value, "default", fallback)
		return fallback
	}
	return d
}

// pgCredentialVerifier checks a username/password pair against the
// users table. Password hashing stays here at the binary boundary; the
// session packages only ever see an already-authenticated user.
type pgCredentialVerifier struct {
	pool *pgxpool.Pool
}

func (v *pgCredentialVerifier) Verify(ctx context.Context, username, password string) (user.User, error) {
	query := `
		SELECT id, username, email, full_name, password_hash, is_active, is_admin
		FROM users
		WHERE username = $1
	`

	u := user.User{}
	var passwordHash string
	err := v.pool.QueryRow(ctx, query, username).Scan(
		&u.ID, &u.Username, &u.Email, &u.FullName, &passwordHash, &u.Active, &u.Admin,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return user.User{}, errors.Unauthorized("invalid username or password")
		}
		return user.User{}, errors.InternalWrap(err, "failed to look up user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return user.User{}, errors.Unauthorized("invalid username or password")
	}
	return u, nil
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err == nil {
		slog.Info("Configuration loaded from .env file")
	}

	config := Config{}
	cleanenv.ReadEnv(&config)

	pool, err := dbutils.NewDbPool(context.Background(), config.AuthDbConfig.toDbConfig())
	if err != nil {
		slog.Error("Failed creating dbpool", "db", config.AuthDbConfig.Database,
			"host", config.AuthDbConfig.Host, "port", config.AuthDbConfig.Port,
			"user", config.AuthDbConfig.User)
		os.Exit(1)
	}
	defer pool.Close()

	codec := token.NewCodec(config.JwtConfig.Secret, config.JwtConfig.Issuer, config.JwtConfig.Audience)

	userRepo := user.NewPostgresUserRepository(pool)
	sessionRepo := session.NewPostgresSessionRepository(pool)
	impersonationRepo := impersonate.NewPostgresImpersonationRepository(pool)

	sessionService := session.NewService(sessionRepo, codec,
		session.WithAccessTokenExpiry(parseDuration(config.JwtConfig.AccessTokenExpiry, token.DefaultAccessTokenExpiry)),
		session.WithRefreshTokenExpiry(parseDuration(config.JwtConfig.RefreshTokenExpiry, token.DefaultRefreshTokenExpiry)),
	)
	impersonationService := impersonate.NewService(impersonationRepo, userRepo, codec,
		impersonate.WithDuration(parseDuration(config.ImpersonationConfig.Duration, impersonate.DefaultDuration)),
	)
	resolver := identity.NewResolver(codec, sessionService, impersonationService, userRepo)

	verifier := &pgCredentialVerifier{pool: pool}
	sessionHandler := sessionapi.NewHandler(sessionService, verifier,
		sessionapi.WithCookieSecure(config.JwtConfig.CookieSecure))
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

	slog.Info("Starting auth service",
		"issuer", config.JwtConfig.Issuer,
		"access_token_expiry", config.JwtConfig.AccessTokenExpiry,
		"impersonation_duration", config.ImpersonationConfig.Duration)

	server.Run()
}
