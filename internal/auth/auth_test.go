package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-trading-bot/config"
	"paper-trading-bot/internal/logging"
)

func testService(t *testing.T) *Service {
	t.Helper()
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	return NewService(config.AuthConfig{
		Enabled:              true,
		JWTSecret:            "test-secret",
		AccessTokenDuration:  time.Minute,
		OperatorUser:         "operator",
		OperatorPasswordHash: hash,
	}, logging.New(&logging.Config{Level: "error", JSONFormat: true}))
}

func TestLoginAndValidate(t *testing.T) {
	s := testService(t)

	token, expiresIn, err := s.Login("operator", "correct horse battery")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, int64(60), expiresIn)

	claims, err := s.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Username)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := testService(t)

	_, _, err := s.Login("operator", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = s.Login("intruder", "correct horse battery")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	s := testService(t)
	token, _, err := s.Login("operator", "correct horse battery")
	require.NoError(t, err)

	_, err = s.Validate(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewTokenManager("other-secret", time.Minute)
	foreign, err := other.Generate("operator")
	require.NoError(t, err)
	_, err = s.Validate(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredToken(t *testing.T) {
	m := NewTokenManager("test-secret", -time.Minute)
	token, err := m.Generate("operator")
	require.NoError(t, err)

	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-password")
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "s3cret-password"))
	assert.False(t, VerifyPassword(hash, "other"))
	assert.False(t, VerifyPassword("not-a-hash", "s3cret-password"))
}
