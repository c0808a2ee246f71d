// ABOUTME: Tests for bearer credential resolution against the session store
// ABOUTME: Covers anonymous fallback for missing, unknown, and expired credentials

package auth

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/warden-gateway/internal/store"
)

// failingStore implements store.SessionStore and always errors on Get.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (*store.Session, bool, error) {
	return nil, false, errors.New("backend down")
}
func (failingStore) Put(context.Context, *store.Session) error  { return nil }
func (failingStore) Delete(context.Context, string) error       { return nil }
func (failingStore) Close() error                               { return nil }

func newTestResolver(t *testing.T) (*Resolver, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return NewResolver(s, slog.Default()), s
}

func TestResolveCaller_EmptyCredential(t *testing.T) {
	r, _ := newTestResolver(t)
	caller := r.ResolveCaller(context.Background(), "")
	assert.True(t, caller.IsAnonymous())
	assert.Empty(t, caller.Scopes)
}

func TestResolveCaller_UnknownCredential(t *testing.T) {
	r, _ := newTestResolver(t)
	caller := r.ResolveCaller(context.Background(), "unknown-token")
	assert.True(t, caller.IsAnonymous())
}

func TestResolveCaller_ValidSession(t *testing.T) {
	r, s := newTestResolver(t)
	require.NoError(t, s.Put(context.Background(), &store.Session{
		Token:     "tok-1",
		UserID:    "user-1",
		Email:     "user@example.com",
		Scopes:    []string{"mcp:call"},
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	caller := r.ResolveCaller(context.Background(), "tok-1")
	assert.False(t, caller.IsAnonymous())
	assert.Equal(t, "user-1", caller.UserID)
	assert.Equal(t, "user@example.com", caller.Email)
	assert.True(t, caller.HasScope("mcp:call"))
	assert.False(t, caller.TokenExpiry.IsZero())
}

func TestResolveCaller_ExpiredSession(t *testing.T) {
	// An expired credential resolves to anonymous regardless of the scopes
	// it would otherwise carry.
	r, s := newTestResolver(t)
	require.NoError(t, s.Put(context.Background(), &store.Session{
		Token:     "tok-expired",
		UserID:    "user-1",
		Scopes:    []string{"mcp:call", "mcp:admin"},
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	caller := r.ResolveCaller(context.Background(), "tok-expired")
	assert.True(t, caller.IsAnonymous())
	assert.Empty(t, caller.Scopes)
}

func TestResolveCaller_StoreFailure(t *testing.T) {
	// Backend failures degrade to anonymous rather than erroring out.
	r := NewResolver(failingStore{}, slog.Default())
	caller := r.ResolveCaller(context.Background(), "tok-1")
	assert.True(t, caller.IsAnonymous())
}

func TestCallerContextPlumbing(t *testing.T) {
	ctx := context.Background()
	assert.True(t, CallerFromContext(ctx).IsAnonymous())

	c := &CallerContext{UserID: "user-1", Scopes: []string{"a"}}
	ctx = WithCaller(ctx, c)
	got := CallerFromContext(ctx)
	assert.Equal(t, "user-1", got.UserID)
	assert.True(t, got.HasScope("a"))
	assert.False(t, got.HasScope("b"))
}
