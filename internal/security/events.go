// ABOUTME: Structured security event logging with sliding-window anomaly detection
// ABOUTME: Crossing the per-source event threshold triggers a temporary IP block

package security

import (
	"log/slog"
	"sync"
	"time"

	"github.com/2389/warden-gateway/internal/config"
	"github.com/2389/warden-gateway/internal/metrics"
)

// EventType enumerates recorded security event categories.
type EventType string

const (
	EventAuthSuccess       EventType = "auth_success"
	EventAuthFailure       EventType = "auth_failure"
	EventRateLimitExceeded EventType = "rate_limit_exceeded"
	EventInjectionAttempt  EventType = "injection_attempt"
	EventSchemaChanged     EventType = "schema_changed"
	EventToolRemoved       EventType = "tool_removed"
	EventAdminAction       EventType = "admin_action"
	EventIPBlocked         EventType = "ip_blocked"
	EventRequestBlocked    EventType = "request_blocked"
	EventAnomalyDetected   EventType = "anomaly_detected"
)

// Severity levels for security events.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event is one append-only security event. Never mutated after creation.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Severity  Severity          `json:"severity"`
	SourceIP  string            `json:"sourceIp,omitempty"`
	UserAgent string            `json:"userAgent,omitempty"`
	UserID    string            `json:"userId,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
	RiskScore float64           `json:"riskScore,omitempty"`
}

// Blocker is the subset of the network filter the event logger needs to
// apply automatic temporary blocks.
type Blocker interface {
	Block(ip string, duration time.Duration)
}

// sourceWindow tracks per-source activity inside the sliding window.
type sourceWindow struct {
	requests   []time.Time
	events     []time.Time
	userAgents map[string]struct{}
	errors     int
	total      int
}

// EventLogger records security events into a bounded in-memory ring and
// emits them as structured log lines. Per-source sliding windows feed
// anomaly detection and automatic temporary blocking.
type EventLogger struct {
	cfg     config.EventsConfig
	logger  *slog.Logger
	blocker Blocker
	metrics *metrics.Metrics

	mu        sync.Mutex
	ring      []Event
	next      int
	total     uint64
	byType    map[EventType]uint64
	sources   map[string]*sourceWindow
	blocked   map[string]time.Time // sources auto-blocked, for stats
	lastSweep time.Time
}

// NewEventLogger creates an event logger. blocker may be nil, in which
// case threshold crossings are logged but nothing is blocked.
func NewEventLogger(cfg config.EventsConfig, blocker Blocker, logger *slog.Logger) *EventLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLogger{
		cfg:     cfg,
		logger:  logger.With("component", "security"),
		blocker: blocker,
		ring:    make([]Event, 0, cfg.MaxEvents),
		byType:  make(map[EventType]uint64),
		sources: make(map[string]*sourceWindow),
		blocked: make(map[string]time.Time),
	}
}

// Record appends a security event and runs the auto-block threshold check
// for its source.
func (l *EventLogger) Record(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if evt.Severity == "" {
		evt.Severity = SeverityLow
	}

	l.metrics.ObserveSecurityEvent(string(evt.Type))
	l.logger.Info("security event",
		"type", string(evt.Type),
		"severity", string(evt.Severity),
		"source_ip", evt.SourceIP,
		"user_id", evt.UserID,
		"risk_score", evt.RiskScore,
	)

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.ring) < cap(l.ring) {
		l.ring = append(l.ring, evt)
	} else if cap(l.ring) > 0 {
		l.ring[l.next] = evt
		l.next = (l.next + 1) % cap(l.ring)
	}
	l.total++
	l.byType[evt.Type]++

	if evt.SourceIP != "" && evt.Type != EventIPBlocked {
		w := l.window(evt.SourceIP, evt.Timestamp)
		w.events = append(w.events, evt.Timestamp)
		l.checkThresholdLocked(evt.SourceIP, w, evt.Timestamp)
	}
}

// ObserveRequest feeds request metadata into the per-source anomaly
// detectors: requests per minute, distinct user agents, and error rate.
func (l *EventLogger) ObserveRequest(sourceIP, userAgent string, isError bool) {
	now := time.Now()

	l.mu.Lock()
	w := l.window(sourceIP, now)
	w.requests = append(w.requests, now)
	w.total++
	if isError {
		w.errors++
	}
	if userAgent != "" {
		w.userAgents[userAgent] = struct{}{}
	}

	var anomaly string
	var score float64
	switch {
	case len(w.requests) > l.cfg.MaxRequestsPerMinute:
		anomaly = "request rate"
		score = 0.7
	case len(w.userAgents) > l.cfg.MaxUserAgents:
		anomaly = "user agent churn"
		score = 0.6
	case w.total >= 10 && float64(w.errors)/float64(w.total) > 0.5:
		anomaly = "error rate"
		score = 0.5
	}
	l.mu.Unlock()

	if anomaly != "" {
		l.Record(Event{
			Type:      EventAnomalyDetected,
			Severity:  SeverityMedium,
			SourceIP:  sourceIP,
			UserAgent: userAgent,
			Context:   map[string]string{"anomaly": anomaly},
			RiskScore: score,
		})
	}
}

// window returns the pruned sliding window for a source.
// Caller must hold l.mu.
func (l *EventLogger) window(source string, now time.Time) *sourceWindow {
	l.sweepLocked(now)

	w, ok := l.sources[source]
	if !ok {
		w = &sourceWindow{userAgents: make(map[string]struct{})}
		l.sources[source] = w
	}
	cutoff := now.Add(-l.cfg.WindowDuration)
	w.requests = prune(w.requests, cutoff)
	w.events = prune(w.events, cutoff)
	return w
}

// sweepLocked evicts source windows with no activity inside the window
// and drops expired auto-block entries, keeping the maps bounded by the
// number of currently active sources. Runs at most once per window
// duration. Caller must hold l.mu.
func (l *EventLogger) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.cfg.WindowDuration {
		return
	}
	l.lastSweep = now

	cutoff := now.Add(-l.cfg.WindowDuration)
	for source, w := range l.sources {
		w.requests = prune(w.requests, cutoff)
		w.events = prune(w.events, cutoff)
		if len(w.requests) == 0 && len(w.events) == 0 {
			delete(l.sources, source)
		}
	}
	for source, expiry := range l.blocked {
		if !now.Before(expiry) {
			delete(l.blocked, source)
		}
	}
}

// checkThresholdLocked applies the automatic temporary block when a
// source accumulates too many security events inside the window.
// Caller must hold l.mu.
func (l *EventLogger) checkThresholdLocked(source string, w *sourceWindow, now time.Time) {
	if len(w.events) < l.cfg.BlockThreshold {
		return
	}
	if expiry, ok := l.blocked[source]; ok && now.Before(expiry) {
		return // already blocked
	}

	duration := l.cfg.WindowDuration * 15
	l.blocked[source] = now.Add(duration)
	w.events = nil

	l.logger.Warn("auto-blocking source after event threshold",
		"source_ip", source,
		"threshold", l.cfg.BlockThreshold,
		"duration", duration,
	)
	if l.blocker != nil {
		l.blocker.Block(source, duration)
	}

	// Record the block itself without re-entering the threshold check
	evt := Event{
		Timestamp: now,
		Type:      EventIPBlocked,
		Severity:  SeverityHigh,
		SourceIP:  source,
		Context:   map[string]string{"reason": "event threshold exceeded"},
	}
	if len(l.ring) < cap(l.ring) {
		l.ring = append(l.ring, evt)
	} else if cap(l.ring) > 0 {
		l.ring[l.next] = evt
		l.next = (l.next + 1) % cap(l.ring)
	}
	l.total++
	l.byType[EventIPBlocked]++
}

// Events returns up to limit recent events, newest last.
func (l *EventLogger) Events(limit int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, 0, len(l.ring))
	if len(l.ring) < cap(l.ring) || cap(l.ring) == 0 {
		out = append(out, l.ring...)
	} else {
		out = append(out, l.ring[l.next:]...)
		out = append(out, l.ring[:l.next]...)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Stats returns aggregate counters for the admin endpoint.
func (l *EventLogger) Stats() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()

	byType := make(map[string]uint64, len(l.byType))
	for t, n := range l.byType {
		byType[string(t)] = n
	}
	return map[string]any{
		"total_events":    l.total,
		"events_by_type":  byType,
		"tracked_sources": len(l.sources),
		"auto_blocked":    len(l.blocked),
	}
}

// prune drops timestamps before the cutoff.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	return times[i:]
}
