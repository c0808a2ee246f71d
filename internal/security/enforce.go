// ABOUTME: Structural bearer token enforcement ahead of the protocol dispatcher
// ABOUTME: Rejects malformed or policy-violating tokens without consulting scopes

package security

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/2389/warden-gateway/internal/auth"
	"github.com/2389/warden-gateway/internal/metrics"
)

// AuthEnforcer validates bearer tokens structurally before the request
// reaches the dispatcher. Scope checks stay with the authorizer; this
// stage only rejects tokens that could never be valid: bad signatures,
// expired claims, and accounts failing account-state policies.
// Requests without a credential pass through untouched so public
// operations keep working.
type AuthEnforcer struct {
	verifier auth.TokenVerifier
	logger   *slog.Logger
	events   *EventLogger
	metrics  *metrics.Metrics

	requireVerifiedEmail      bool
	requireActiveSubscription bool

	accepted atomic.Uint64
	rejected atomic.Uint64
}

// NewAuthEnforcer builds the enforcement stage. verifier must be non-nil
// when the stage is enabled.
func NewAuthEnforcer(verifier auth.TokenVerifier, requireVerifiedEmail, requireActiveSubscription bool, events *EventLogger, logger *slog.Logger) *AuthEnforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthEnforcer{
		verifier:                  verifier,
		logger:                    logger.With("component", "enforce"),
		events:                    events,
		requireVerifiedEmail:      requireVerifiedEmail,
		requireActiveSubscription: requireActiveSubscription,
	}
}

// Check validates a bearer token against structural and account-state
// requirements. An empty token is acceptable here.
func (e *AuthEnforcer) Check(token string) error {
	if token == "" {
		return nil
	}
	claims, err := e.verifier.Verify(token)
	if err != nil {
		return err
	}
	if e.requireVerifiedEmail && !claims.EmailVerified {
		return errors.New("email not verified")
	}
	if e.requireActiveSubscription && !claims.SubscriptionActive {
		return errors.New("subscription inactive")
	}
	return nil
}

// Stats returns enforcement counters for the admin endpoint.
func (e *AuthEnforcer) Stats() map[string]any {
	return map[string]any{
		"accepted": e.accepted.Load(),
		"rejected": e.rejected.Load(),
		"policies": map[string]bool{
			"require_verified_email":      e.requireVerifiedEmail,
			"require_active_subscription": e.requireActiveSubscription,
		},
	}
}

// Middleware rejects requests carrying structurally invalid credentials.
func (e *AuthEnforcer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if err := e.Check(token); err != nil {
			e.rejected.Add(1)
			e.logger.Warn("credential rejected", "error", err, "source_ip", ClientIP(r))
			if e.events != nil {
				e.events.Record(Event{
					Type:      EventAuthFailure,
					Severity:  SeverityMedium,
					SourceIP:  ClientIP(r),
					UserAgent: r.UserAgent(),
					Context:   map[string]string{"reason": err.Error()},
				})
			}
			e.metrics.ObserveRejection("auth")
			writeJSONRPCError(w, http.StatusUnauthorized, -32000, "invalid credential")
			return
		}
		if token != "" {
			e.accepted.Add(1)
		}
		next.ServeHTTP(w, r)
	})
}
