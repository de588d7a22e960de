package token

import (
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/truledgr/ledger-auth/pkg/errors"
)

// Kind identifies what a token asserts
type Kind string

const (
	KindRegular       Kind = "regular"
	KindImpersonation Kind = "impersonation"
)

// Token name constants
const (
	ACCESS_TOKEN_NAME  = "access_token"
	REFRESH_TOKEN_NAME = "refresh_token"
)

// Default token expiry durations
const (
	DefaultAccessTokenExpiry  = 15 * time.Minute
	DefaultRefreshTokenExpiry = 7 * 24 * time.Hour
)

// Claims is the closed claim set carried by every token issued by this
// core. SessionID is the backing session record; AdminID is set only on
// impersonation tokens and points back at the initiating admin.
type Claims struct {
	Kind      Kind   `json:"kind"`
	SessionID string `json:"sid"`
	AdminID   string `json:"admin_id,omitempty"`
	jwt.RegisteredClaims
}

// SubjectID returns the subject user id as a UUID
func (c *Claims) SubjectID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// SessionUUID returns the backing session id as a UUID
func (c *Claims) SessionUUID() (uuid.UUID, error) {
	return uuid.Parse(c.SessionID)
}

// AdminUUID returns the initiating admin id as a UUID.
// Only meaningful for impersonation tokens.
func (c *Claims) AdminUUID() (uuid.UUID, error) {
	return uuid.Parse(c.AdminID)
}

// Codec signs and verifies the bearer tokens issued by this core.
// Encoding and decoding are pure given the secret supplied at
// construction; the clock is injectable for tests.
type Codec struct {
	Secret   string
	Issuer   string
	Audience string
	now      func() time.Time
}

// CodecOption configures a Codec
type CodecOption func(*Codec)

// WithClock overrides the time source used for issued-at and expiry checks
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec creates a new Codec with the given HMAC secret
func NewCodec(secret, issuer, audience string, opts ...CodecOption) *Codec {
	codec := &Codec{
		Secret:   secret,
		Issuer:   issuer,
		Audience: audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(codec)
	}
	return codec
}

// GenerateToken signs a token of the given kind for subject, bound to the
// session record identified by sessionID. adminID must be empty for
// regular tokens and the initiating admin's id for impersonation tokens.
// The returned claims carry the assigned token id and expiry.
func (c *Codec) GenerateToken(subject string, kind Kind, sessionID uuid.UUID, adminID string, expiry time.Duration) (string, *Claims, error) {
	now := c.now().UTC()
	claims := Claims{
		Kind:      kind,
		SessionID: sessionID.String(),
		AdminID:   adminID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Minute)),
			Issuer:    c.Issuer,
			Subject:   subject,
			ID:        uuid.New().String(),
			Audience:  jwt.ClaimStrings{c.Audience},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(c.Secret))
	if err != nil {
		slog.Error("Failed sign JWT claim string", "err", err)
		return "", nil, errors.InternalWrap(err, "failed to sign token")
	}
	return ss, &claims, nil
}

// ParseToken parses and validates a token string. It fails with
// TOKEN_INVALID when the signature is wrong, structural fields are
// missing or malformed, or the token is past its expiry. Expiry is
// always checked here; callers never re-check it on returned claims.
func (c *Codec) ParseToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(c.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.Issuer),
		jwt.WithAudience(c.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTokenInvalid, "failed to parse token")
	}
	if !token.Valid {
		return nil, errors.TokenInvalid("token is not valid")
	}

	if claims.Kind != KindRegular && claims.Kind != KindImpersonation {
		return nil, errors.TokenInvalid("unknown token kind")
	}
	if _, err := claims.SubjectID(); err != nil {
		return nil, errors.TokenInvalid("malformed subject claim")
	}
	if _, err := claims.SessionUUID(); err != nil {
		return nil, errors.TokenInvalid("malformed session claim")
	}
	if claims.Kind == KindImpersonation {
		if _, err := claims.AdminUUID(); err != nil {
			return nil, errors.TokenInvalid("malformed admin claim")
		}
	}

	return claims, nil
}
