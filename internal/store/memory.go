// ABOUTME: In-memory SessionStore implementation backed by a mutex-guarded map
// ABOUTME: Expired sessions are pruned by a background goroutine

package store

import (
	"context"
	"sync"
	"time"
)

// cleanupInterval is how often the background pruner runs.
const cleanupInterval = time.Minute

// MemoryStore implements SessionStore with an in-memory map.
// Suitable for development and single-process deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	done     chan struct{}
	closed   bool
}

// NewMemoryStore creates a new in-memory session store.
// A background goroutine periodically removes expired sessions.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
	go s.cleanup()
	return s
}

// Get returns the session for a token, expired or not.
func (s *MemoryStore) Get(_ context.Context, token string) (*Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, false, nil
	}
	// Return a copy so callers cannot mutate stored state
	cp := *sess
	cp.Scopes = append([]string(nil), sess.Scopes...)
	return &cp, true, nil
}

// Put stores or replaces a session keyed by its token.
func (s *MemoryStore) Put(_ context.Context, session *Session) error {
	cp := *session
	cp.Scopes = append([]string(nil), session.Scopes...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}

	s.mu.Lock()
	s.sessions[cp.Token] = &cp
	s.mu.Unlock()
	return nil
}

// Delete removes a session. Deleting a missing token is not an error.
func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// Count returns the number of stored sessions (for monitoring).
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// cleanup periodically removes sessions that expired more than one
// cleanup interval ago, so that resolvers still observe freshly-expired
// credentials as "present but expired" rather than missing.
func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-cleanupInterval)
			s.mu.Lock()
			for token, sess := range s.sessions {
				if sess.Expired(cutoff) {
					delete(s.sessions, token)
				}
			}
			s.mu.Unlock()
		}
	}
}
