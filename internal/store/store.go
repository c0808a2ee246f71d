// ABOUTME: Session store contract and data types for warden-gateway persistence
// ABOUTME: Defines the Session struct and the SessionStore interface implemented by backends

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Session represents a bearer credential and the identity it resolves to.
// Sessions are created out-of-band (by the identity provider integration)
// and consumed read-only by the authorization layer.
type Session struct {
	Token              string
	UserID             string
	Email              string
	Scopes             []string
	EmailVerified      bool
	SubscriptionActive bool
	ExpiresAt          time.Time
	CreatedAt          time.Time
}

// Expired reports whether the session is past its expiry timestamp.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// SessionStore is the pluggable persistence contract for sessions.
// Implementations must be safe for concurrent use.
//
// Get returns the session for a token, a bool indicating presence, and an
// error only for backend failures. An expired session is still returned;
// expiry policy belongs to the caller.
type SessionStore interface {
	Get(ctx context.Context, token string) (*Session, bool, error)
	Put(ctx context.Context, session *Session) error
	Delete(ctx context.Context, token string) error
	Close() error
}
