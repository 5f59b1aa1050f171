package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asg67/finmanager/backend/src/config"
)

func TestMain(m *testing.M) {
	config.Cfg = &config.AppConfig{
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
	}
	m.Run()
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewAuthService("test-secret-key-that-is-long-enough")

	token, err := svc.GenerateToken("user-123", "owner")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, role, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
	assert.Equal(t, "owner", role)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewAuthService("test-secret-key-that-is-long-enough")
	verifier := NewAuthService("a-completely-different-secret-key-00")

	token, err := issuer.GenerateToken("user-123", "owner")
	require.NoError(t, err)

	_, _, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewAuthService("test-secret-key-that-is-long-enough")

	_, _, err := svc.ValidateToken("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := NewAuthService("test-secret-key-that-is-long-enough")

	claims := accessClaims{
		Role: "owner",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key-that-is-long-enough"))
	require.NoError(t, err)

	_, _, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsWrongAlgorithm(t *testing.T) {
	svc := NewAuthService("test-secret-key-that-is-long-enough")

	// A token signed with "none" must never validate, whatever its claims say.
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, _, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateRefreshTokenIsRandom(t *testing.T) {
	svc := NewAuthService("test-secret-key-that-is-long-enough")

	a, err := svc.GenerateRefreshToken()
	require.NoError(t, err)
	b, err := svc.GenerateRefreshToken()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestHashPassword(t *testing.T) {
	svc := NewAuthService("test-secret-key-that-is-long-enough")

	hashed, err := svc.HashPassword("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hashed)
	assert.True(t, len(hashed) > 50)
}
