// ABOUTME: Operator endpoints exposing pipeline state and block controls
// ABOUTME: Every endpoint requires the caller to resolve to a configured admin

package mcp

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/2389/warden-gateway/internal/security"
)

// AdminHandler serves the operator endpoints under /admin/. It reads
// live state from the security pipeline; mutations are limited to the
// temporary block list.
type AdminHandler struct {
	server *Server
	chain  *security.Chain
	start  time.Time
}

// NewAdminHandler builds the admin surface over an MCP server and its
// security chain. chain may be nil when every stage is disabled.
func NewAdminHandler(server *Server, chain *security.Chain) *AdminHandler {
	return &AdminHandler{server: server, chain: chain, start: time.Now()}
}

// RegisterRoutes registers the admin endpoints on the given ServeMux.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/admin/ratelimit", h.requireAdmin(h.handleRateLimit))
	mux.HandleFunc("/admin/security", h.requireAdmin(h.handleSecurity))
	mux.HandleFunc("/admin/auth", h.requireAdmin(h.handleAuth))
	mux.HandleFunc("/admin/usage", h.requireAdmin(h.handleUsage))
	mux.HandleFunc("/admin/block-ip", h.requireAdmin(h.handleBlockIP))
	mux.HandleFunc("/admin/unblock-ip", h.requireAdmin(h.handleUnblockIP))
}

// requireAdmin gates a handler on the caller resolving to a configured
// admin user. Failures are logged as security events.
func (h *AdminHandler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		caller := h.server.resolver.ResolveCaller(r.Context(), token)

		if !h.server.authorizer.IsAdmin(caller) {
			h.server.logger.Warn("admin access denied",
				"path", r.URL.Path, "user_id", caller.UserID)
			if h.server.events != nil {
				h.server.events.Record(security.Event{
					Type:      security.EventAuthFailure,
					Severity:  security.SeverityMedium,
					SourceIP:  security.ClientIP(r),
					UserAgent: r.UserAgent(),
					UserID:    caller.UserID,
					Context:   map[string]string{"path": r.URL.Path},
				})
			}
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (h *AdminHandler) handleRateLimit(w http.ResponseWriter, _ *http.Request) {
	if h.chain == nil || h.chain.Limiter == nil {
		writeJSON(w, map[string]any{"enabled": false})
		return
	}
	stats := h.chain.Limiter.Stats()
	stats["enabled"] = true
	writeJSON(w, stats)
}

func (h *AdminHandler) handleSecurity(w http.ResponseWriter, _ *http.Request) {
	out := map[string]any{}
	if h.chain != nil && h.chain.Events != nil {
		out["events"] = h.chain.Events.Stats()
		out["recent"] = h.chain.Events.Events(50)
	}
	if h.chain != nil && h.chain.Netfilter != nil {
		out["blocked_ips"] = h.chain.Netfilter.Blocked()
	}
	writeJSON(w, out)
}

func (h *AdminHandler) handleAuth(w http.ResponseWriter, _ *http.Request) {
	if h.chain == nil || h.chain.Enforcer == nil {
		writeJSON(w, map[string]any{"enforcement": false})
		return
	}
	stats := h.chain.Enforcer.Stats()
	stats["enforcement"] = true
	writeJSON(w, stats)
}

func (h *AdminHandler) handleUsage(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	writeJSON(w, map[string]any{
		"uptime_seconds":  int64(time.Since(h.start).Seconds()),
		"goroutines":      runtime.NumGoroutine(),
		"heap_alloc":      mem.HeapAlloc,
		"heap_objects":    mem.HeapObjects,
		"total_alloc":     mem.TotalAlloc,
		"gc_cycles":       mem.NumGC,
		"active_tasks":    h.server.tasks.Count(),
		"registered_cpus": runtime.NumCPU(),
	})
}

type blockRequest struct {
	IP       string `json:"ip"`
	Duration string `json:"duration,omitempty"`
}

func (h *AdminHandler) handleBlockIP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.chain == nil || h.chain.Netfilter == nil {
		http.Error(w, "network filter disabled", http.StatusConflict)
		return
	}

	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	var duration time.Duration
	if req.Duration != "" {
		d, err := time.ParseDuration(req.Duration)
		if err != nil {
			http.Error(w, "Bad Request: invalid duration", http.StatusBadRequest)
			return
		}
		duration = d
	}

	h.chain.Netfilter.Block(req.IP, duration)
	h.recordAdminAction(r, "block-ip", req.IP)
	writeJSON(w, map[string]any{"blocked": req.IP})
}

func (h *AdminHandler) handleUnblockIP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.chain == nil || h.chain.Netfilter == nil {
		http.Error(w, "network filter disabled", http.StatusConflict)
		return
	}

	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	found := h.chain.Netfilter.Unblock(req.IP)
	h.recordAdminAction(r, "unblock-ip", req.IP)
	writeJSON(w, map[string]any{"unblocked": req.IP, "found": found})
}

func (h *AdminHandler) recordAdminAction(r *http.Request, action, target string) {
	if h.server.events == nil {
		return
	}
	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	caller := h.server.resolver.ResolveCaller(r.Context(), token)
	h.server.events.Record(security.Event{
		Type:     security.EventAdminAction,
		Severity: security.SeverityLow,
		SourceIP: security.ClientIP(r),
		UserID:   caller.UserID,
		Context:  map[string]string{"action": action, "target": target},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
