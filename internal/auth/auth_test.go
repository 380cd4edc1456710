package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_IssueAndParse(t *testing.T) {
	m := NewManager("secret", time.Hour)
	userID := uuid.New()

	tok, err := m.Issue(userID, "admin")
	require.NoError(t, err)
	assert.NotEmpty(t, tok.JTI)

	claims, err := m.Parse(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, tok.JTI, claims.ID)
	assert.Equal(t, "admin", claims.Role)
	assert.WithinDuration(t, tok.ExpiresAt, claims.Expiry(), time.Second)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, id)
}

func TestManager_ParseRejectsWrongSecret(t *testing.T) {
	tok, err := NewManager("secret", time.Hour).Issue(uuid.New(), "user")
	require.NoError(t, err)

	_, err = NewManager("other-secret", time.Hour).Parse(tok.Value)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestManager_ParseRejectsExpired(t *testing.T) {
	m := NewManager("secret", time.Minute)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err := m.Issue(uuid.New(), "user")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Parse(tok.Value)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestManager_ParseRejectsOtherAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ID:        "jti",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewManager("secret", time.Hour).Parse(signed)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestManager_ParseGarbage(t *testing.T) {
	_, err := NewManager("secret", time.Hour).Parse("not-a-token")
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestMemoryRevocationStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRevocationStore()

	revoked, err := s.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.Revoke(ctx, "a", time.Now().Add(time.Hour)))
	revoked, err = s.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.True(t, revoked)

	require.NoError(t, s.Revoke(ctx, "b", time.Now().Add(-time.Second)))
	revoked, err = s.IsRevoked(ctx, "b")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestMemoryRevocationStore_IsolatedInstances(t *testing.T) {
	ctx := context.Background()
	first := NewMemoryRevocationStore()
	second := NewMemoryRevocationStore()

	require.NoError(t, first.Revoke(ctx, "jti", time.Now().Add(time.Hour)))
	revoked, err := second.IsRevoked(ctx, "jti")
	require.NoError(t, err)
	assert.False(t, revoked)
}
