// ABOUTME: Prometheus instrumentation for the gateway's HTTP and protocol surface
// ABOUTME: Exposes request, rejection, and task counters behind a config toggle

package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors. All collectors are
// registered on a private registry so tests can create many instances.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RejectionsTotal *prometheus.CounterVec
	SecurityEvents  *prometheus.CounterVec
	ActiveTasks     prometheus.Gauge
	ToolCalls       *prometheus.CounterVec
}

// New creates and registers the gateway collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_http_requests_total",
			Help: "HTTP requests by path and status code.",
		}, []string{"path", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		RejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_rejections_total",
			Help: "Requests rejected by the security pipeline, by stage.",
		}, []string{"stage"}),
		SecurityEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_security_events_total",
			Help: "Security events recorded, by type.",
		}, []string{"type"}),
		ActiveTasks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "warden_active_tasks",
			Help: "Tasks currently tracked by the task registry.",
		}),
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_tool_calls_total",
			Help: "Tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
	}
}

// The observer methods below are safe on a nil receiver so callers can
// hold a *Metrics unconditionally and skip the guard when metrics are
// disabled.

// ObserveRejection counts one request rejected by a security stage.
func (m *Metrics) ObserveRejection(stage string) {
	if m == nil {
		return
	}
	m.RejectionsTotal.WithLabelValues(stage).Inc()
}

// ObserveSecurityEvent counts one recorded security event by type.
func (m *Metrics) ObserveSecurityEvent(eventType string) {
	if m == nil {
		return
	}
	m.SecurityEvents.WithLabelValues(eventType).Inc()
}

// ObserveToolCall counts one tool invocation outcome. Callers must pass
// only registered tool names; request-supplied names would make the
// label cardinality unbounded.
func (m *Metrics) ObserveToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

// SetActiveTasks records the current live task count.
func (m *Metrics) SetActiveTasks(n int) {
	if m == nil {
		return
	}
	m.ActiveTasks.Set(float64(n))
}

// Handler returns the scrape endpoint for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware instruments an HTTP handler with request counters and
// latency histograms.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(m.RequestDuration.WithLabelValues(r.URL.Path))
		defer timer.ObserveDuration()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.RequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(rec.status)).Inc()
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
