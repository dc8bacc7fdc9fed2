package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	m := NewSessionManager(0)

	token := m.Create("admin")
	require.NotEmpty(t, token)

	assert.True(t, m.Validate(token))
	assert.Equal(t, "admin", m.UserID(token))

	m.End(token)
	assert.False(t, m.Validate(token))
	assert.Empty(t, m.UserID(token))
}

func TestValidateUnknownToken(t *testing.T) {
	m := NewSessionManager(0)

	assert.False(t, m.Validate(""))
	assert.False(t, m.Validate("no-such-token"))
}

func TestSessionExpiry(t *testing.T) {
	m := NewSessionManager(time.Hour)

	token := m.Create("admin")
	require.True(t, m.Validate(token))

	// Advance the clock past the TTL
	base := time.Now()
	m.now = func() time.Time { return base.Add(2 * time.Hour) }

	assert.False(t, m.Validate(token), "expired token must fail validation")
	assert.Empty(t, m.UserID(token))

	// Expiry deactivates in place: even with the clock rolled back the
	// session stays dead
	m.now = time.Now
	assert.False(t, m.Validate(token))
}

func TestCleanupExpired(t *testing.T) {
	m := NewSessionManager(time.Hour)

	live := m.Create("admin")
	dead := m.Create("admin")
	m.End(dead)

	m.CleanupExpired()

	assert.True(t, m.Validate(live))
	m.mu.RLock()
	_, stillThere := m.sessions[dead]
	m.mu.RUnlock()
	assert.False(t, stillThere, "inactive sessions are removed from memory")
}

func TestTokensAreUnique(t *testing.T) {
	m := NewSessionManager(0)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token := m.Create("admin")
		require.False(t, seen[token], "duplicate token issued")
		seen[token] = true
	}
}
