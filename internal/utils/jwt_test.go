package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager(t *testing.T) {
	m := NewJWTManager("test-secret", "gameshop", time.Hour)

	token, err := m.GenerateAccessToken(42, "alice", "admin")
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "admin", claims.Role)

	t.Run("WrongSecret", func(t *testing.T) {
		other := NewJWTManager("other-secret", "gameshop", time.Hour)
		_, err := other.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		other := NewJWTManager("test-secret", "someone-else", time.Hour)
		_, err := other.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("Expired", func(t *testing.T) {
		expired := NewJWTManager("test-secret", "gameshop", -time.Minute)
		old, err := expired.GenerateAccessToken(42, "alice", "user")
		require.NoError(t, err)
		_, err = m.ValidateToken(old)
		assert.Error(t, err)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := m.ValidateToken("not.a.token")
		assert.Error(t, err)
	})
}
