// ABOUTME: Tests for the security pipeline stages and their composition
// ABOUTME: Covers IP filtering, rate limiting tiers, event thresholds, and enforcement

package security

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/warden-gateway/internal/auth"
	"github.com/2389/warden-gateway/internal/config"
	"github.com/2389/warden-gateway/internal/metrics"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestNetworkFilterDenyList(t *testing.T) {
	f, err := NewNetworkFilter(config.NetworkConfig{
		DenyList: []string{"10.0.0.5", "192.168.0.0/16"},
	}, nil, nil)
	require.NoError(t, err)

	ok, reason := f.Allowed("10.0.0.5")
	assert.False(t, ok)
	assert.Equal(t, "deny list", reason)

	ok, _ = f.Allowed("192.168.44.7")
	assert.False(t, ok)

	ok, _ = f.Allowed("10.0.0.6")
	assert.True(t, ok)
}

func TestNetworkFilterAllowListExclusive(t *testing.T) {
	f, err := NewNetworkFilter(config.NetworkConfig{
		AllowList: []string{"203.0.113.0/24"},
	}, nil, nil)
	require.NoError(t, err)

	ok, _ := f.Allowed("203.0.113.10")
	assert.True(t, ok)

	ok, reason := f.Allowed("198.51.100.1")
	assert.False(t, ok)
	assert.Equal(t, "not on allow list", reason)
}

func TestNetworkFilterTemporaryBlock(t *testing.T) {
	f, err := NewNetworkFilter(config.NetworkConfig{}, nil, nil)
	require.NoError(t, err)

	f.Block("172.16.1.1", time.Minute)
	ok, reason := f.Allowed("172.16.1.1")
	assert.False(t, ok)
	assert.Equal(t, "temporarily blocked", reason)

	assert.True(t, f.Unblock("172.16.1.1"))
	assert.False(t, f.Unblock("172.16.1.1"))

	ok, _ = f.Allowed("172.16.1.1")
	assert.True(t, ok)
}

func TestNetworkFilterBlockExpiry(t *testing.T) {
	f, err := NewNetworkFilter(config.NetworkConfig{}, nil, nil)
	require.NoError(t, err)

	f.Block("172.16.1.2", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	ok, _ := f.Allowed("172.16.1.2")
	assert.True(t, ok)
	assert.Empty(t, f.Blocked())
}

func TestNetworkFilterInvalidEntry(t *testing.T) {
	_, err := NewNetworkFilter(config.NetworkConfig{
		AllowList: []string{"not-an-ip"},
	}, nil, nil)
	assert.Error(t, err)
}

func TestNetworkFilterMiddleware(t *testing.T) {
	f, err := NewNetworkFilter(config.NetworkConfig{
		DenyList: []string{"10.9.9.9"},
	}, nil, nil)
	require.NoError(t, err)

	h := f.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.RemoteAddr = "10.9.9.9:54321"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "access denied")

	req = httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.RemoteAddr = "10.9.9.8:54321"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIPForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", ClientIP(req))

	// Without a trusted proxy the header is attacker-controlled and ignored
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	assert.Equal(t, "10.0.0.1", ClientIP(req))

	SetTrustProxyHeader(true)
	t.Cleanup(func() { SetTrustProxyHeader(false) })
	assert.Equal(t, "198.51.100.7", ClientIP(req))

	// Garbage forwarded header falls back to the peer address
	req.Header.Set("X-Forwarded-For", "nonsense")
	assert.Equal(t, "10.0.0.1", ClientIP(req))
}

func TestNetworkFilterIgnoresSpoofedForwardedFor(t *testing.T) {
	f, err := NewNetworkFilter(config.NetworkConfig{
		DenyList: []string{"10.9.9.9"},
	}, nil, nil)
	require.NoError(t, err)
	h := f.Middleware(okHandler())

	// A denied direct client cannot launder its address via the header
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.RemoteAddr = "10.9.9.9:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.50")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRateLimiterTierExhaustion(t *testing.T) {
	l := NewRateLimiter(config.RateLimitConfig{
		Enabled:        true,
		AnonymousRate:  1,
		AnonymousBurst: 2,
		AuthRate:       100,
		AuthBurst:      100,
	}, nil, nil)

	ok, _ := l.Allow(TierAnonymous, "1.2.3.4", "")
	assert.True(t, ok)
	ok, _ = l.Allow(TierAnonymous, "1.2.3.4", "")
	assert.True(t, ok)
	ok, reason := l.Allow(TierAnonymous, "1.2.3.4", "")
	assert.False(t, ok)
	assert.Equal(t, "caller limit", reason)

	// Distinct keys get distinct buckets
	ok, _ = l.Allow(TierAnonymous, "5.6.7.8", "")
	assert.True(t, ok)

	// A higher tier is unaffected by the anonymous bucket
	ok, _ = l.Allow(TierAuthenticated, "1.2.3.4", "")
	assert.True(t, ok)
}

func TestRateLimiterToolBucket(t *testing.T) {
	l := NewRateLimiter(config.RateLimitConfig{
		Enabled:   true,
		AuthRate:  100,
		AuthBurst: 100,
		ToolRate:  1,
		ToolBurst: 1,
	}, nil, nil)

	ok, _ := l.Allow(TierAuthenticated, "tok", "calculate")
	assert.True(t, ok)
	ok, reason := l.Allow(TierAuthenticated, "tok", "calculate")
	assert.False(t, ok)
	assert.Equal(t, "tool limit", reason)

	// Different tool, different bucket
	ok, _ = l.Allow(TierAuthenticated, "tok", "greeting")
	assert.True(t, ok)
}

func TestRateLimiterAdaptiveCost(t *testing.T) {
	l := NewRateLimiter(config.RateLimitConfig{
		Enabled:           true,
		Adaptive:          true,
		AdaptiveThreshold: 10,
	}, nil, nil)

	assert.Equal(t, 1, l.tokenCost())
	l.inflight.Store(11)
	assert.Equal(t, 2, l.tokenCost())
	l.inflight.Store(10)
	assert.Equal(t, 1, l.tokenCost())
}

func TestRateLimiterMiddleware(t *testing.T) {
	l := NewRateLimiter(config.RateLimitConfig{
		Enabled:        true,
		AnonymousRate:  1,
		AnonymousBurst: 1,
	}, nil, nil)
	h := l.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","method":"ping","id":1}`))
	req.RemoteAddr = "10.1.1.1:1000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","method":"ping","id":2}`))
	req.RemoteAddr = "10.1.1.1:1000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestSniffToolNameRestoresBody(t *testing.T) {
	body := `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"echo","arguments":{}},"id":1}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))

	assert.Equal(t, "echo", sniffToolName(req))

	// Body must still be readable downstream
	buf := make([]byte, len(body))
	n, _ := req.Body.Read(buf)
	assert.Equal(t, body, string(buf[:n]))
}

func TestSniffToolNameRestoresOversizeBody(t *testing.T) {
	payload := strings.Repeat("x", maxSniffBytes+100)
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(payload))

	assert.Empty(t, sniffToolName(req))

	// The dispatcher's own size limit must still see every byte
	restored, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Len(t, restored, maxSniffBytes+100)
}

func TestRateLimiterMiddlewareCountsRejections(t *testing.T) {
	m := metrics.New()
	l := NewRateLimiter(config.RateLimitConfig{
		Enabled:        true,
		AnonymousRate:  1,
		AnonymousBurst: 1,
	}, nil, nil)
	l.metrics = m
	h := l.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","method":"ping","id":1}`))
		req.RemoteAddr = "10.1.1.2:1000"
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectionsTotal.WithLabelValues("rate_limit")))
}

func TestEventLoggerEvictsIdleSources(t *testing.T) {
	l := NewEventLogger(config.EventsConfig{
		MaxEvents:            10,
		WindowDuration:       20 * time.Millisecond,
		MaxRequestsPerMinute: 100,
		MaxUserAgents:        10,
		BlockThreshold:       100,
	}, nil, nil)

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		l.ObserveRequest(ip, "ua", false)
	}
	time.Sleep(50 * time.Millisecond)
	l.ObserveRequest("10.0.0.9", "ua", false)

	l.mu.Lock()
	tracked := len(l.sources)
	_, active := l.sources["10.0.0.9"]
	l.mu.Unlock()
	assert.Equal(t, 1, tracked, "idle source windows must be evicted")
	assert.True(t, active)
}

func TestEventLoggerRecordCountsMetric(t *testing.T) {
	m := metrics.New()
	l := NewEventLogger(config.EventsConfig{
		MaxEvents:      10,
		BlockThreshold: 100,
		WindowDuration: time.Minute,
	}, nil, nil)
	l.metrics = m

	l.Record(Event{Type: EventAuthFailure, SourceIP: "10.0.0.1"})
	l.Record(Event{Type: EventAuthFailure, SourceIP: "10.0.0.1"})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SecurityEvents.WithLabelValues(string(EventAuthFailure))))
}

func TestEventLoggerRingBuffer(t *testing.T) {
	l := NewEventLogger(config.EventsConfig{
		MaxEvents:      3,
		BlockThreshold: 100,
		WindowDuration: time.Minute,
	}, nil, nil)

	for i := 0; i < 5; i++ {
		l.Record(Event{Type: EventAuthFailure, SourceIP: "10.0.0.1"})
	}
	events := l.Events(0)
	assert.Len(t, events, 3)

	stats := l.Stats()
	assert.Equal(t, uint64(5), stats["total_events"])
}

func TestEventLoggerAutoBlock(t *testing.T) {
	blocker := &recordingBlocker{}
	l := NewEventLogger(config.EventsConfig{
		MaxEvents:      100,
		BlockThreshold: 3,
		WindowDuration: time.Minute,
	}, blocker, nil)

	for i := 0; i < 3; i++ {
		l.Record(Event{Type: EventAuthFailure, SourceIP: "10.0.0.9"})
	}
	assert.Equal(t, []string{"10.0.0.9"}, blocker.blocked)

	// Crossing the threshold again right away does not double-block
	l.Record(Event{Type: EventAuthFailure, SourceIP: "10.0.0.9"})
	assert.Len(t, blocker.blocked, 1)
}

func TestEventLoggerAnomalyDetection(t *testing.T) {
	l := NewEventLogger(config.EventsConfig{
		MaxEvents:            100,
		BlockThreshold:       1000,
		WindowDuration:       time.Minute,
		MaxRequestsPerMinute: 5,
		MaxUserAgents:        3,
	}, nil, nil)

	for i := 0; i < 6; i++ {
		l.ObserveRequest("10.0.0.2", "curl/8.0", false)
	}

	var sawAnomaly bool
	for _, evt := range l.Events(0) {
		if evt.Type == EventAnomalyDetected {
			sawAnomaly = true
			assert.Equal(t, "request rate", evt.Context["anomaly"])
		}
	}
	assert.True(t, sawAnomaly)
}

type recordingBlocker struct {
	blocked []string
}

func (b *recordingBlocker) Block(ip string, _ time.Duration) {
	b.blocked = append(b.blocked, ip)
}

func TestAuthEnforcer(t *testing.T) {
	secret := strings.Repeat("s", auth.MinSecretLength)
	verifier, err := auth.NewJWTVerifier([]byte(secret), "", "")
	require.NoError(t, err)

	e := NewAuthEnforcer(verifier, false, false, nil, nil)

	// No credential passes
	require.NoError(t, e.Check(""))

	// Valid token passes
	token, err := verifier.Generate("user-1", time.Hour, nil)
	require.NoError(t, err)
	require.NoError(t, e.Check(token))

	// Garbage is rejected
	assert.Error(t, e.Check("not.a.jwt"))

	// Expired token is rejected
	expired, err := verifier.Generate("user-1", -time.Hour, nil)
	require.NoError(t, err)
	assert.Error(t, e.Check(expired))
}

func TestAuthEnforcerAccountPolicies(t *testing.T) {
	secret := strings.Repeat("s", auth.MinSecretLength)
	verifier, err := auth.NewJWTVerifier([]byte(secret), "", "")
	require.NoError(t, err)

	e := NewAuthEnforcer(verifier, true, true, nil, nil)

	token, err := verifier.Generate("user-1", time.Hour, map[string]any{
		"email_verified":      false,
		"subscription_active": true,
	})
	require.NoError(t, err)
	assert.ErrorContains(t, e.Check(token), "email not verified")

	token, err = verifier.Generate("user-1", time.Hour, map[string]any{
		"email_verified":      true,
		"subscription_active": false,
	})
	require.NoError(t, err)
	assert.ErrorContains(t, e.Check(token), "subscription inactive")
}

func TestAuthEnforcerMiddleware(t *testing.T) {
	secret := strings.Repeat("s", auth.MinSecretLength)
	verifier, err := auth.NewJWTVerifier([]byte(secret), "", "")
	require.NoError(t, err)

	e := NewAuthEnforcer(verifier, false, false, nil, nil)
	h := e.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Anonymous requests pass through for public operations
	req = httptest.NewRequest(http.MethodPost, "/mcp", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChainOrderAndComposition(t *testing.T) {
	cfg := config.SecurityConfig{
		Network: config.NetworkConfig{
			Enabled:  true,
			DenyList: []string{"10.66.0.1"},
		},
		RateLimit: config.RateLimitConfig{
			Enabled:        true,
			AnonymousRate:  100,
			AnonymousBurst: 100,
		},
		Events: config.EventsConfig{
			Enabled:        true,
			MaxEvents:      100,
			BlockThreshold: 1000,
			WindowDuration: time.Minute,
		},
	}
	chain, err := NewChain(cfg, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, chain.Netfilter)
	require.NotNil(t, chain.Limiter)
	require.NotNil(t, chain.Events)
	assert.Nil(t, chain.Enforcer)

	h := chain.Wrap(okHandler())

	// Denied source is rejected by the outermost stage
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.RemoteAddr = "10.66.0.1:1000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Allowed source flows through every stage
	req = httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.RemoteAddr = "10.66.0.2:1000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChainEnforceRequiresVerifier(t *testing.T) {
	cfg := config.SecurityConfig{
		Enforce: config.EnforceConfig{Enabled: true},
	}
	_, err := NewChain(cfg, nil, nil)
	assert.Error(t, err)
}
