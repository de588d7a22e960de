package token

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truledgr/ledger-auth/pkg/errors"
)

func TestGenerateAndParseRegularToken(t *testing.T) {
	codec := NewCodec("test-secret", "test-issuer", "test-audience")
	userID := uuid.New()
	sessionID := uuid.New()

	tokenStr, claims, err := codec.GenerateToken(userID.String(), KindRegular, sessionID, "", 15*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, tokenStr)
	require.NotNil(t, claims)
	assert.NotEmpty(t, claims.ID)

	parsed, err := codec.ParseToken(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, KindRegular, parsed.Kind)
	assert.Equal(t, userID.String(), parsed.Subject)
	assert.Equal(t, sessionID.String(), parsed.SessionID)
	assert.Empty(t, parsed.AdminID)
	assert.Equal(t, claims.ID, parsed.ID)
}

func TestGenerateAndParseImpersonationToken(t *testing.T) {
	codec := NewCodec("test-secret", "test-issuer", "test-audience")
	targetID := uuid.New()
	adminID := uuid.New()
	sessionID := uuid.New()

	tokenStr, _, err := codec.GenerateToken(targetID.String(), KindImpersonation, sessionID, adminID.String(), 2*time.Hour)
	require.NoError(t, err)

	parsed, err := codec.ParseToken(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, KindImpersonation, parsed.Kind)
	assert.Equal(t, targetID.String(), parsed.Subject)
	assert.Equal(t, adminID.String(), parsed.AdminID)

	parsedAdmin, err := parsed.AdminUUID()
	require.NoError(t, err)
	assert.Equal(t, adminID, parsedAdmin)
}

func TestParseTokenExpired(t *testing.T) {
	issuedAt := time.Now().UTC()
	codec := NewCodec("test-secret", "test-issuer", "test-audience",
		WithClock(func() time.Time { return issuedAt }))

	tokenStr, _, err := codec.GenerateToken(uuid.New().String(), KindRegular, uuid.New(), "", time.Minute)
	require.NoError(t, err)

	// A later clock pushes the same token past its embedded expiry.
	lateCodec := NewCodec("test-secret", "test-issuer", "test-audience",
		WithClock(func() time.Time { return issuedAt.Add(2 * time.Minute) }))

	_, err = lateCodec.ParseToken(tokenStr)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTokenInvalid))
}

func TestParseTokenWrongSecret(t *testing.T) {
	codec := NewCodec("test-secret", "test-issuer", "test-audience")
	tokenStr, _, err := codec.GenerateToken(uuid.New().String(), KindRegular, uuid.New(), "", time.Minute)
	require.NoError(t, err)

	other := NewCodec("other-secret", "test-issuer", "test-audience")
	_, err = other.ParseToken(tokenStr)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTokenInvalid))
}

func TestParseTokenWrongIssuerOrAudience(t *testing.T) {
	codec := NewCodec("test-secret", "test-issuer", "test-audience")
	tokenStr, _, err := codec.GenerateToken(uuid.New().String(), KindRegular, uuid.New(), "", time.Minute)
	require.NoError(t, err)

	wrongIssuer := NewCodec("test-secret", "another-issuer", "test-audience")
	_, err = wrongIssuer.ParseToken(tokenStr)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTokenInvalid))

	wrongAudience := NewCodec("test-secret", "test-issuer", "another-audience")
	_, err = wrongAudience.ParseToken(tokenStr)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTokenInvalid))
}

func TestParseTokenGarbage(t *testing.T) {
	codec := NewCodec("test-secret", "test-issuer", "test-audience")

	for _, tokenStr := range []string{"", "not-a-token", "a.b.c"} {
		_, err := codec.ParseToken(tokenStr)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeTokenInvalid))
	}
}

func TestParseTokenMalformedSubject(t *testing.T) {
	codec := NewCodec("test-secret", "test-issuer", "test-audience")

	tokenStr, _, err := codec.GenerateToken("not-a-uuid", KindRegular, uuid.New(), "", time.Minute)
	require.NoError(t, err)

	_, err = codec.ParseToken(tokenStr)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTokenInvalid))
}

func TestParseImpersonationTokenRequiresAdminClaim(t *testing.T) {
	codec := NewCodec("test-secret", "test-issuer", "test-audience")

	tokenStr, _, err := codec.GenerateToken(uuid.New().String(), KindImpersonation, uuid.New(), "", 2*time.Hour)
	require.NoError(t, err)

	_, err = codec.ParseToken(tokenStr)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTokenInvalid))
}
