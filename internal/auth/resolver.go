// ABOUTME: Resolves bearer credentials into caller contexts via the session store
// ABOUTME: Missing or expired credentials produce an anonymous caller, never an error

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/warden-gateway/internal/store"
)

// Resolver looks up bearer credentials against the session store.
type Resolver struct {
	sessions store.SessionStore
	logger   *slog.Logger
}

// NewResolver creates a Resolver backed by the given session store.
func NewResolver(sessions store.SessionStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{sessions: sessions, logger: logger}
}

// ResolveCaller resolves a bearer credential to a caller context.
// An empty, unknown, or expired credential yields an anonymous caller;
// the boundary calling this function decides whether that is a hard failure
// based on whether a credential was supplied at all.
func (r *Resolver) ResolveCaller(ctx context.Context, credential string) *CallerContext {
	if credential == "" {
		return Anonymous()
	}

	sess, ok, err := r.sessions.Get(ctx, credential)
	if err != nil {
		r.logger.Warn("session lookup failed", "error", err)
		return Anonymous()
	}
	if !ok {
		return Anonymous()
	}
	if sess.Expired(time.Now()) {
		r.logger.Debug("credential expired", "user_id", sess.UserID)
		return Anonymous()
	}

	return &CallerContext{
		UserID:      sess.UserID,
		Email:       sess.Email,
		Scopes:      sess.Scopes,
		TokenExpiry: sess.ExpiresAt,
	}
}
