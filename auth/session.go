package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// Session is a signed-in browser or local user.
type Session struct {
	Client    *Client
	ExpiresAt time.Time
}

// SessionStore keeps sessions in memory, keyed by the session cookie value.
// Sessions do not survive a restart.
type SessionStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewSessionStore creates a session store. Expired sessions are swept until
// ctx is cancelled.
func NewSessionStore(ctx context.Context) *SessionStore {
	s := &SessionStore{sessions: make(map[string]*Session)}
	go s.cleanupExpired(ctx, 5*time.Minute)
	return s
}

// Create starts a session for client and returns its ID.
func (s *SessionStore) Create(client *Client) (string, error) {
	id, err := generateRandomString(64)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.sessions[id] = &Session{Client: client, ExpiresAt: time.Now().Add(DefaultSessionDuration)}
	s.mu.Unlock()
	return id, nil
}

// Get returns the client of a live session.
func (s *SessionStore) Get(id string) (*Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok || time.Now().After(session.ExpiresAt) {
		return nil, false
	}
	return session.Client, true
}

// Delete ends a session.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *SessionStore) cleanupExpired(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			now := time.Now()
			for id, session := range s.sessions {
				if now.After(session.ExpiresAt) {
					delete(s.sessions, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

// StateStore holds the OIDC state tokens of logins in progress.
type StateStore struct {
	states map[string]time.Time
	mu     sync.Mutex
}

// NewStateStore creates a state store swept until ctx is cancelled.
func NewStateStore(ctx context.Context) *StateStore {
	s := &StateStore{states: make(map[string]time.Time)}
	go s.cleanupExpired(ctx, time.Minute)
	return s
}

// Set records a state token.
func (s *StateStore) Set(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state] = time.Now().Add(StateExpiry)
}

// Validate consumes a state token. Each token is accepted at most once.
func (s *StateStore) Validate(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return time.Now().Before(expiry)
}

func (s *StateStore) cleanupExpired(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			now := time.Now()
			for state, expiry := range s.states {
				if now.After(expiry) {
					delete(s.states, state)
				}
			}
			s.mu.Unlock()
		}
	}
}

// generateRandomString returns length URL-safe random characters.
func generateRandomString(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length], nil
}
