// ABOUTME: Network-layer request filter with allow/deny lists and temporary blocks
// ABOUTME: Matches exact IPs and CIDR ranges, with optional anonymizer range blocking

package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/2389/warden-gateway/internal/config"
	"github.com/2389/warden-gateway/internal/metrics"
)

// anonymizerRanges is a small built-in set of ranges commonly used by
// anonymizing relays. Operators extend coverage via the deny list.
var anonymizerRanges = []string{
	"185.220.100.0/22",
	"185.220.101.0/24",
	"199.249.230.0/24",
	"104.244.72.0/21",
}

// NetworkFilter applies IP allow/deny policy before any other processing.
// The allow list, when non-empty, is exclusive: only listed sources pass.
type NetworkFilter struct {
	logger  *slog.Logger
	events  *EventLogger
	metrics *metrics.Metrics

	allowIPs  map[string]struct{}
	allowNets []*net.IPNet
	denyIPs   map[string]struct{}
	denyNets  []*net.IPNet
	anonNets  []*net.IPNet

	blockDuration time.Duration

	mu     sync.RWMutex
	blocks map[string]time.Time // ip -> expiry
}

// NewNetworkFilter parses the configured allow/deny entries. Entries may
// be single addresses or CIDR ranges.
func NewNetworkFilter(cfg config.NetworkConfig, events *EventLogger, logger *slog.Logger) (*NetworkFilter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f := &NetworkFilter{
		logger:        logger.With("component", "netfilter"),
		events:        events,
		allowIPs:      make(map[string]struct{}),
		denyIPs:       make(map[string]struct{}),
		blocks:        make(map[string]time.Time),
		blockDuration: cfg.AutoBlockDuration,
	}
	if f.blockDuration <= 0 {
		f.blockDuration = time.Hour
	}

	var err error
	if f.allowIPs, f.allowNets, err = parseEntries(cfg.AllowList); err != nil {
		return nil, fmt.Errorf("parsing allow list: %w", err)
	}
	if f.denyIPs, f.denyNets, err = parseEntries(cfg.DenyList); err != nil {
		return nil, fmt.Errorf("parsing deny list: %w", err)
	}
	if cfg.BlockAnonymizers {
		for _, cidr := range anonymizerRanges {
			_, ipnet, err := net.ParseCIDR(cidr)
			if err != nil {
				return nil, fmt.Errorf("parsing anonymizer range %q: %w", cidr, err)
			}
			f.anonNets = append(f.anonNets, ipnet)
		}
	}
	return f, nil
}

func parseEntries(entries []string) (map[string]struct{}, []*net.IPNet, error) {
	ips := make(map[string]struct{})
	var nets []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, ipnet, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid CIDR %q: %w", entry, err)
			}
			nets = append(nets, ipnet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, nil, fmt.Errorf("invalid IP %q", entry)
		}
		ips[ip.String()] = struct{}{}
	}
	return ips, nets, nil
}

// Allowed reports whether the source IP may proceed, with a reason when
// it may not.
func (f *NetworkFilter) Allowed(ipStr string) (bool, string) {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false, "unparseable source address"
	}
	key := ip.String()

	f.mu.RLock()
	expiry, blocked := f.blocks[key]
	f.mu.RUnlock()
	if blocked {
		if time.Now().Before(expiry) {
			return false, "temporarily blocked"
		}
		f.mu.Lock()
		delete(f.blocks, key)
		f.mu.Unlock()
	}

	if _, ok := f.denyIPs[key]; ok {
		return false, "deny list"
	}
	for _, n := range f.denyNets {
		if n.Contains(ip) {
			return false, "deny list"
		}
	}
	for _, n := range f.anonNets {
		if n.Contains(ip) {
			return false, "anonymizer range"
		}
	}

	if len(f.allowIPs) > 0 || len(f.allowNets) > 0 {
		if _, ok := f.allowIPs[key]; ok {
			return true, ""
		}
		for _, n := range f.allowNets {
			if n.Contains(ip) {
				return true, ""
			}
		}
		return false, "not on allow list"
	}
	return true, ""
}

// Block adds a temporary block for an IP. Duration <= 0 uses the
// configured default.
func (f *NetworkFilter) Block(ipStr string, duration time.Duration) {
	if duration <= 0 {
		duration = f.blockDuration
	}
	f.mu.Lock()
	f.blocks[ipStr] = time.Now().Add(duration)
	f.mu.Unlock()
	f.logger.Warn("blocked source", "source_ip", ipStr, "duration", duration)
}

// Unblock removes a temporary block. Returns false when no block existed.
func (f *NetworkFilter) Unblock(ipStr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blocks[ipStr]; !ok {
		return false
	}
	delete(f.blocks, ipStr)
	return true
}

// Blocked returns the currently blocked IPs and their expiries.
func (f *NetworkFilter) Blocked() map[string]time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	now := time.Now()
	out := make(map[string]time.Time, len(f.blocks))
	for ip, expiry := range f.blocks {
		if now.Before(expiry) {
			out[ip] = expiry
		}
	}
	return out
}

// Middleware rejects requests from disallowed sources before any further
// processing.
func (f *NetworkFilter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		ok, reason := f.Allowed(ip)
		if !ok {
			f.logger.Warn("request rejected", "source_ip", ip, "reason", reason)
			if f.events != nil {
				f.events.Record(Event{
					Type:      EventRequestBlocked,
					Severity:  SeverityMedium,
					SourceIP:  ip,
					UserAgent: r.UserAgent(),
					Context:   map[string]string{"reason": reason},
				})
			}
			f.metrics.ObserveRejection("network")
			writeJSONRPCError(w, http.StatusForbidden, -32000, "access denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// trustProxyHeader gates X-Forwarded-For handling for the whole package.
// Set once at chain construction, before the server accepts traffic.
var trustProxyHeader atomic.Bool

// SetTrustProxyHeader controls whether ClientIP honors X-Forwarded-For.
// Without it a direct client could forge the header to dodge deny lists
// and launder its rate limit key.
func SetTrustProxyHeader(trust bool) {
	trustProxyHeader.Store(trust)
}

// ClientIP extracts the originating client IP. The first entry of
// X-Forwarded-For is honored only when a trusted proxy is configured.
func ClientIP(r *http.Request) string {
	if trustProxyHeader.Load() {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first := strings.TrimSpace(strings.Split(fwd, ",")[0])
			if net.ParseIP(first) != nil {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
