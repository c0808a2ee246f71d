// ABOUTME: Tiered token-bucket rate limiting with per-caller and per-tool buckets
// ABOUTME: Adaptive mode doubles token cost while in-flight requests exceed a threshold

package security

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/warden-gateway/internal/config"
	"github.com/2389/warden-gateway/internal/metrics"
)

// Tier classifies a caller for rate limiting purposes.
type Tier string

const (
	TierAnonymous     Tier = "anonymous"
	TierAuthenticated Tier = "authenticated"
	TierAdmin         Tier = "admin"
)

// maxSniffBytes bounds how much of the request body the limiter reads to
// discover the target tool of a tools/call request.
const maxSniffBytes = 1 << 20

// RateLimiter enforces per-tier, per-tool, and global token buckets.
// Caller buckets are keyed by credential when present, source IP
// otherwise, so one noisy client cannot starve the tier.
type RateLimiter struct {
	cfg     config.RateLimitConfig
	logger  *slog.Logger
	events  *EventLogger
	metrics *metrics.Metrics

	global *rate.Limiter

	mu      sync.RWMutex
	callers map[string]*rate.Limiter
	tools   map[string]*rate.Limiter

	inflight atomic.Int64
	rejected atomic.Uint64
	allowed  atomic.Uint64
}

// NewRateLimiter builds the limiter from configuration.
func NewRateLimiter(cfg config.RateLimitConfig, events *EventLogger, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	l := &RateLimiter{
		cfg:     cfg,
		logger:  logger.With("component", "ratelimit"),
		events:  events,
		callers: make(map[string]*rate.Limiter),
		tools:   make(map[string]*rate.Limiter),
	}
	if cfg.GlobalRate > 0 {
		l.global = rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst)
	}
	return l
}

// tierLimits returns the configured rate and burst for a tier.
func (l *RateLimiter) tierLimits(tier Tier) (float64, int) {
	switch tier {
	case TierAdmin:
		return l.cfg.AdminRate, l.cfg.AdminBurst
	case TierAuthenticated:
		return l.cfg.AuthRate, l.cfg.AuthBurst
	default:
		return l.cfg.AnonymousRate, l.cfg.AnonymousBurst
	}
}

// callerLimiter returns the bucket for a caller key, creating it on first
// use. Double-checked locking keeps the hot path on the read lock.
func (l *RateLimiter) callerLimiter(tier Tier, key string) *rate.Limiter {
	mapKey := string(tier) + ":" + key

	l.mu.RLock()
	lim, ok := l.callers[mapKey]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok = l.callers[mapKey]; ok {
		return lim
	}
	r, burst := l.tierLimits(tier)
	lim = rate.NewLimiter(rate.Limit(r), burst)
	l.callers[mapKey] = lim
	return lim
}

func (l *RateLimiter) toolLimiter(tool string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.tools[tool]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok = l.tools[tool]; ok {
		return lim
	}
	lim = rate.NewLimiter(rate.Limit(l.cfg.ToolRate), l.cfg.ToolBurst)
	l.tools[tool] = lim
	return lim
}

// tokenCost is 1 normally and 2 while adaptive mode observes load above
// the in-flight threshold, halving the effective rate under pressure.
func (l *RateLimiter) tokenCost() int {
	if l.cfg.Adaptive && l.cfg.AdaptiveThreshold > 0 &&
		l.inflight.Load() > int64(l.cfg.AdaptiveThreshold) {
		return 2
	}
	return 1
}

// Allow checks all applicable buckets for one request. tool may be empty
// for non-invocation requests.
func (l *RateLimiter) Allow(tier Tier, key, tool string) (bool, string) {
	cost := l.tokenCost()
	now := time.Now()

	if l.global != nil && !l.global.AllowN(now, cost) {
		l.rejected.Add(1)
		return false, "global limit"
	}
	r, _ := l.tierLimits(tier)
	if r > 0 && !l.callerLimiter(tier, key).AllowN(now, cost) {
		l.rejected.Add(1)
		return false, "caller limit"
	}
	if tool != "" && l.cfg.ToolRate > 0 && !l.toolLimiter(tool).AllowN(now, cost) {
		l.rejected.Add(1)
		return false, "tool limit"
	}
	l.allowed.Add(1)
	return true, ""
}

// Stats returns limiter counters for the admin endpoint.
func (l *RateLimiter) Stats() map[string]any {
	l.mu.RLock()
	callers := len(l.callers)
	tools := len(l.tools)
	l.mu.RUnlock()
	return map[string]any{
		"allowed":        l.allowed.Load(),
		"rejected":       l.rejected.Load(),
		"in_flight":      l.inflight.Load(),
		"caller_buckets": callers,
		"tool_buckets":   tools,
		"adaptive":       l.cfg.Adaptive,
	}
}

// Middleware applies rate limiting before request processing. The caller
// tier is approximated from credential presence: resolving admin status
// would cost a store lookup this early in the pipeline.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tier, key := callerKey(r)
		tool := sniffToolName(r)

		ok, reason := l.Allow(tier, key, tool)
		if !ok {
			l.logger.Warn("rate limit exceeded",
				"tier", string(tier), "tool", tool, "reason", reason)
			if l.events != nil {
				l.events.Record(Event{
					Type:      EventRateLimitExceeded,
					Severity:  SeverityLow,
					SourceIP:  ClientIP(r),
					UserAgent: r.UserAgent(),
					Context:   map[string]string{"reason": reason, "tool": tool},
				})
			}
			l.metrics.ObserveRejection("rate_limit")
			w.Header().Set("Retry-After", "1")
			writeJSONRPCError(w, http.StatusTooManyRequests, -32000, "rate limit exceeded")
			return
		}

		l.inflight.Add(1)
		defer l.inflight.Add(-1)
		next.ServeHTTP(w, r)
	})
}

// callerKey derives the limiter tier and bucket key from the request.
// Bearer credentials key by token so a caller keeps one bucket across
// addresses; anonymous callers key by source IP.
func callerKey(r *http.Request) (Tier, string) {
	authz := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(authz, "Bearer "); ok && token != "" {
		return TierAuthenticated, token
	}
	return TierAnonymous, ClientIP(r)
}

// sniffToolName peeks at the JSON-RPC body of a tools/call request to
// find the target tool, restoring the body for downstream handlers.
// Bodies larger than maxSniffBytes are restored in full so the
// dispatcher's own size limit still sees the oversize request.
func sniffToolName(r *http.Request) string {
	if r.Method != http.MethodPost || r.Body == nil {
		return ""
	}
	remainder := r.Body
	body, err := io.ReadAll(io.LimitReader(remainder, maxSniffBytes))
	r.Body = sniffedBody{io.MultiReader(bytes.NewReader(body), remainder), remainder}
	if err != nil {
		return ""
	}

	var req struct {
		Method string `json:"method"`
		Params struct {
			Name string `json:"name"`
		} `json:"params"`
	}
	if json.Unmarshal(body, &req) != nil || req.Method != "tools/call" {
		return ""
	}
	return req.Params.Name
}

// sniffedBody replays the sniffed prefix ahead of the unread remainder.
type sniffedBody struct {
	io.Reader
	io.Closer
}
