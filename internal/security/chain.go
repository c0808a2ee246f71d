// ABOUTME: Composes the security stages into one ordered middleware pipeline
// ABOUTME: Order is fixed: network filter, rate limiter, event observer, auth enforcement

package security

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/2389/warden-gateway/internal/auth"
	"github.com/2389/warden-gateway/internal/config"
	"github.com/2389/warden-gateway/internal/metrics"
)

// Chain wires the security stages in their fixed order. Disabled stages
// are skipped entirely rather than run as no-ops. Cheap checks run
// first so blocked sources never consume rate limit tokens.
type Chain struct {
	Netfilter *NetworkFilter
	Limiter   *RateLimiter
	Events    *EventLogger
	Enforcer  *AuthEnforcer

	filters []func(http.Handler) http.Handler
}

// NewChain builds the pipeline from configuration. verifier may be nil
// when enforcement is disabled.
func NewChain(cfg config.SecurityConfig, verifier auth.TokenVerifier, logger *slog.Logger) (*Chain, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chain{}

	// Applies to every stage's view of the client address, so it is set
	// even when the network filter itself is disabled.
	SetTrustProxyHeader(cfg.Network.TrustProxyHeader)

	if cfg.Events.Enabled {
		c.Events = NewEventLogger(cfg.Events, nil, logger)
	}

	if cfg.Network.Enabled {
		nf, err := NewNetworkFilter(cfg.Network, c.Events, logger)
		if err != nil {
			return nil, fmt.Errorf("building network filter: %w", err)
		}
		c.Netfilter = nf
		if c.Events != nil {
			c.Events.blocker = nf
		}
		c.filters = append(c.filters, nf.Middleware)
	}

	if cfg.RateLimit.Enabled {
		c.Limiter = NewRateLimiter(cfg.RateLimit, c.Events, logger)
		c.filters = append(c.filters, c.Limiter.Middleware)
	}

	if c.Events != nil {
		c.filters = append(c.filters, c.Events.observeMiddleware)
	}

	if cfg.Enforce.Enabled {
		if verifier == nil {
			return nil, fmt.Errorf("auth enforcement enabled without a token verifier")
		}
		c.Enforcer = NewAuthEnforcer(verifier, false, false, c.Events, logger)
		c.filters = append(c.filters, c.Enforcer.Middleware)
	}

	return c, nil
}

// SetMetrics points every built stage at the given collectors. Call
// before the chain serves traffic. A nil argument leaves metrics off.
func (c *Chain) SetMetrics(m *metrics.Metrics) {
	if c.Netfilter != nil {
		c.Netfilter.metrics = m
	}
	if c.Limiter != nil {
		c.Limiter.metrics = m
	}
	if c.Events != nil {
		c.Events.metrics = m
	}
	if c.Enforcer != nil {
		c.Enforcer.metrics = m
	}
}

// SetAccountPolicies toggles the account-state checks on the enforcement
// stage. No-op when enforcement is disabled.
func (c *Chain) SetAccountPolicies(requireVerifiedEmail, requireActiveSubscription bool) {
	if c.Enforcer != nil {
		c.Enforcer.requireVerifiedEmail = requireVerifiedEmail
		c.Enforcer.requireActiveSubscription = requireActiveSubscription
	}
}

// Wrap applies the pipeline around a handler, outermost stage first.
func (c *Chain) Wrap(next http.Handler) http.Handler {
	h := next
	for i := len(c.filters) - 1; i >= 0; i-- {
		h = c.filters[i](h)
	}
	return h
}

// observeMiddleware feeds request outcomes into the anomaly detectors.
func (l *EventLogger) observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		l.ObserveRequest(ClientIP(r), r.UserAgent(), rec.status >= 400)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// writeJSONRPCError writes a JSON-RPC shaped error body so protocol
// clients can parse rejections issued before the dispatcher runs.
func writeJSONRPCError(w http.ResponseWriter, httpStatus, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      nil,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
