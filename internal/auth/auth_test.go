package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("password123")
	require.NoError(t, err)
	assert.NotEqual(t, "password123", hash)

	assert.True(t, VerifyPassword("password123", hash))
	assert.False(t, VerifyPassword("password124", hash))
	assert.False(t, VerifyPassword("password123", "not-a-hash"))

	other, err := HashPassword("password123")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "hashes are salted")
}

func TestHashPassword_Limits(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)

	_, err = HashPassword(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
	assert.False(t, VerifyPassword(strings.Repeat("x", 73), "$2a$10$abc"))
}

func TestNewTokenService_Validation(t *testing.T) {
	_, err := NewTokenService("", time.Hour)
	assert.Error(t, err)
	_, err = NewTokenService("secret", 0)
	assert.Error(t, err)
}

func TestTokenService_IssueParse(t *testing.T) {
	svc, err := NewTokenService("test-key", time.Hour)
	require.NoError(t, err)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return now }

	tok, exp, err := svc.Issue("alice")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), exp)

	username, err := svc.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestTokenService_Rejects(t *testing.T) {
	svc, err := NewTokenService("test-key", time.Minute)
	require.NoError(t, err)
	now := time.Now()
	svc.now = func() time.Time { return now }

	tok, _, err := svc.Issue("alice")
	require.NoError(t, err)

	t.Run("empty", func(t *testing.T) {
		_, err := svc.Parse("")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Parse("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewTokenService("other-key", time.Minute)
		require.NoError(t, err)
		_, err = other.Parse(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		svc.now = func() time.Time { return now.Add(2 * time.Minute) }
		defer func() { svc.now = func() time.Time { return now } }()
		_, err := svc.Parse(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned", func(t *testing.T) {
		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   "mallory",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}}
		raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = svc.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
