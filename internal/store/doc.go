// Package store provides session persistence for warden-gateway.
//
// # Overview
//
// The package defines the SessionStore contract consumed by the
// authorization layer, plus two interchangeable implementations:
//
//   - MemoryStore: mutex-guarded map with background expiry pruning.
//     Suitable for development and single-process deployments.
//   - SQLiteStore: modernc.org/sqlite backed persistence with automatic
//     schema creation and WAL mode.
//
// # Sessions
//
// A Session maps a bearer token to a resolved identity:
//
//   - UserID and Email identify the caller
//   - Scopes carry permission strings (e.g. "mcp:call")
//   - EmailVerified and SubscriptionActive feed the stricter
//     auth-enforcement policies
//   - ExpiresAt is checked by the resolver, not the store: Get returns
//     expired sessions so callers can distinguish "expired" from "absent"
//
// # Usage
//
//	s, err := store.NewSQLiteStore("/var/lib/warden/sessions.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	sess, ok, err := s.Get(ctx, token)
package store
