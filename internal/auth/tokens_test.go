package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager("test-secret-key", 15*time.Minute, 24*time.Hour)
}

func TestGeneratePair(t *testing.T) {
	m := newTestManager()

	pair, err := m.GeneratePair("user-123")
	require.NoError(t, err)

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))
}

func TestValidateAccess(t *testing.T) {
	m := newTestManager()

	pair, err := m.GeneratePair("user-123")
	require.NoError(t, err)

	claims, err := m.ValidateAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
}

func TestValidateRejectsWrongTokenType(t *testing.T) {
	m := newTestManager()

	pair, err := m.GeneratePair("user-123")
	require.NoError(t, err)

	_, err = m.ValidateAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidTokenType)

	_, err = m.ValidateRefresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidTokenType)
}

func TestValidateRejectsGarbage(t *testing.T) {
	m := newTestManager()

	_, err := m.ValidateAccess("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	m := newTestManager()
	other := NewManager("another-secret", 15*time.Minute, 24*time.Hour)

	pair, err := other.GeneratePair("user-123")
	require.NoError(t, err)

	_, err = m.ValidateAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpired(t *testing.T) {
	m := NewManager("test-secret-key", -time.Minute, 24*time.Hour)

	pair, err := m.GeneratePair("user-123")
	require.NoError(t, err)

	_, err = m.ValidateAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}
