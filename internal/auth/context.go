// ABOUTME: Caller context for tracking identity through request handlers
// ABOUTME: Provides WithCaller/CallerFromContext for propagating identity via context

package auth

import (
	"context"
	"time"
)

// CallerContext holds the identity resolved from a bearer credential.
// A zero UserID means the caller is anonymous.
type CallerContext struct {
	UserID      string
	Email       string
	Scopes      []string
	TokenExpiry time.Time
}

// Anonymous returns a caller context with no identity and no scopes.
func Anonymous() *CallerContext {
	return &CallerContext{}
}

// IsAnonymous reports whether the caller carries no resolved identity.
func (c *CallerContext) IsAnonymous() bool {
	return c == nil || c.UserID == ""
}

// HasScope reports whether the caller holds the named scope.
func (c *CallerContext) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// callerContextKey is the key type for storing CallerContext in context.Context.
type callerContextKey struct{}

// WithCaller returns a new context with the CallerContext attached.
func WithCaller(ctx context.Context, caller *CallerContext) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// CallerFromContext retrieves the CallerContext from the context, returning
// an anonymous caller if not present.
func CallerFromContext(ctx context.Context) *CallerContext {
	val := ctx.Value(callerContextKey{})
	if val == nil {
		return Anonymous()
	}
	caller, ok := val.(*CallerContext)
	if !ok || caller == nil {
		return Anonymous()
	}
	return caller
}
