// Package session holds authenticated portal sessions.
//
// A Manager is created once at startup and passed to every component that needs
// the current principal. Sessions live in memory only.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Anonymous is the principal used when no session is present.
const Anonymous = "anonymous"

// CookieName is the cookie carrying the session id.
const CookieName = "portal_session"

var (
	// ErrNotFound is returned for unknown or expired sessions.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidToken is returned when the identity provider's token does not verify.
	ErrInvalidToken = errors.New("invalid identity token")
)

// IdentityProvider authenticates users on behalf of the portal.
type IdentityProvider interface {
	// LoginURL is where the browser is sent to log in; the provider returns to callbackURL.
	LoginURL(callbackURL string) string
	// Verify checks a token issued by the provider and returns its principal.
	Verify(ctx context.Context, token string) (string, error)
}

// Session is one logged-in user.
type Session struct {
	ID        string    `json:"session_id"`
	Principal string    `json:"principal"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager creates, looks up and ends sessions.
type Manager struct {
	provider IdentityProvider
	ttl      time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager backed by provider.
func NewManager(provider IdentityProvider, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		provider: provider,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// LoginURL returns the identity provider URL that completes at callbackURL.
func (m *Manager) LoginURL(callbackURL string) string {
	return m.provider.LoginURL(callbackURL)
}

// Login verifies token with the identity provider and starts a session.
func (m *Manager) Login(ctx context.Context, token string) (*Session, error) {
	principal, err := m.provider.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	now := m.now()
	s := &Session{
		ID:        uuid.New().String(),
		Principal: principal,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	m.mu.Lock()
	m.sweepLocked(now)
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return s, nil
}

// sweepLocked evicts every session expired at now.
func (m *Manager) sweepLocked(now time.Time) {
	for id, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(m.sessions, id)
		}
	}
}

// Get returns the live session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if !m.now().Before(s.ExpiresAt) {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	copied := *s
	return &copied, nil
}

// Principal returns the principal of session id, or Anonymous.
func (m *Manager) Principal(id string) string {
	if id == "" {
		return Anonymous
	}
	s, err := m.Get(id)
	if err != nil {
		return Anonymous
	}
	return s.Principal
}

// Logout ends session id.
func (m *Manager) Logout(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Count returns the number of live sessions, evicting expired ones.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked(m.now())
	return len(m.sessions)
}

// Close drops every session.
func (m *Manager) Close() {
	m.mu.Lock()
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
}
