// Package auth manages API login sessions as opaque expiring tokens.
package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTTL is how long a login session stays valid
const DefaultSessionTTL = 6 * time.Hour

// session tracks one authenticated login
type session struct {
	userID  string
	created time.Time
	active  bool
}

// SessionManager issues and validates opaque login tokens. It is safe for
// concurrent use. Expired sessions are deactivated in place on validation;
// CleanupExpired removes them from memory.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*session
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionManager creates a manager with the given TTL; zero means the
// default of six hours.
func NewSessionManager(ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		sessions: make(map[string]*session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create registers a new session for a user and returns its opaque token
func (m *SessionManager) Create(userID string) string {
	token := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = &session{
		userID:  userID,
		created: m.now(),
		active:  true,
	}
	return token
}

// Validate reports whether a token refers to an active, unexpired session.
// Expiry deactivates the session in place.
func (m *SessionManager) Validate(token string) bool {
	if token == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return false
	}

	if m.now().Sub(s.created) > m.ttl {
		s.active = false
		return false
	}

	return s.active
}

// End marks a session as terminated
func (m *SessionManager) End(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[token]; ok {
		s.active = false
	}
}

// UserID returns the user bound to a valid token, or "" otherwise
func (m *SessionManager) UserID(token string) string {
	if token == "" {
		return ""
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[token]
	if !ok || !s.active {
		return ""
	}
	if m.now().Sub(s.created) > m.ttl {
		return ""
	}
	return s.userID
}

// CleanupExpired removes inactive and expired sessions from memory
func (m *SessionManager) CleanupExpired() {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for token, s := range m.sessions {
		if !s.active || now.Sub(s.created) > m.ttl {
			delete(m.sessions, token)
		}
	}
}
