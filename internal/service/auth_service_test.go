package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campustest/testgate/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret: "unit-test-secret",
		JWTExpiry: time.Hour,
	}
}

func TestTokenRoundTrip(t *testing.T) {
	svc := NewAuthService(testConfig())

	token, err := svc.GenerateToken("student-7", "upstream-abc")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "student-7", claims.StudentID)
	assert.Equal(t, "upstream-abc", claims.UpstreamToken)
	assert.Equal(t, "student-7", claims.Subject)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewAuthService(testConfig())

	_, err := svc.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = svc.ValidateToken("")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	svc := NewAuthService(testConfig())
	token, err := svc.GenerateToken("student-7", "upstream-abc")
	require.NoError(t, err)

	other := NewAuthService(&config.Config{JWTSecret: "different-secret", JWTExpiry: time.Hour})
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	cfg := testConfig()
	cfg.JWTExpiry = -time.Minute
	svc := NewAuthService(cfg)

	token, err := svc.GenerateToken("student-7", "upstream-abc")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateTokenRejectsMissingStudentID(t *testing.T) {
	cfg := testConfig()
	svc := NewAuthService(cfg)

	// A structurally valid token signed with the right secret but without a
	// student id must still be rejected.
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)

	_, err = svc.ValidateToken(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
