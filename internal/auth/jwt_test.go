package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewise/gatewise/internal/auth"
)

func testService() *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-signing-key",
		Issuer:     "https://api.gatewise.test",
		Audience:   "gatewise-api",
	})
}

func TestJWTService_RoundTrip(t *testing.T) {
	svc := testService()

	token, expiresAt, err := svc.GenerateAccessToken("setup-ui")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(auth.AccessTokenExpiry), expiresAt, 5*time.Second)

	subject, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "setup-ui", subject)
}

func TestJWTService_RejectsGarbage(t *testing.T) {
	_, err := testService().ValidateAccessToken("not.a.token")
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}

func TestJWTService_RejectsWrongKey(t *testing.T) {
	token, _, err := testService().GenerateAccessToken("setup-ui")
	require.NoError(t, err)

	other := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "different-key",
		Issuer:     "https://api.gatewise.test",
		Audience:   "gatewise-api",
	})

	_, err = other.ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}

func TestJWTService_RejectsWrongAudience(t *testing.T) {
	issuerOnly := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-signing-key",
		Issuer:     "https://api.gatewise.test",
		Audience:   "some-other-service",
	})

	token, _, err := issuerOnly.GenerateAccessToken("setup-ui")
	require.NoError(t, err)

	_, err = testService().ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}

func TestJWTService_RejectsExpired(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Issuer:    "https://api.gatewise.test",
		Subject:   "setup-ui",
		Audience:  jwt.ClaimStrings{"gatewise-api"},
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = testService().ValidateAccessToken(signed)
	assert.ErrorIs(t, err, auth.ErrAccessTokenExpired)
}
