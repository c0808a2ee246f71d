// ABOUTME: Admin-only tools: runtime and process introspection
// ABOUTME: Requires the mcp:admin scope and membership in the admin allow-list

package builtins

import (
	"context"
	"encoding/json"
	"runtime"
	"time"

	"github.com/2389/warden-gateway/internal/auth"
	"github.com/2389/warden-gateway/internal/tools"
)

var processStart = time.Now()

// AdminTools returns tools restricted to configured admin users.
func AdminTools() []tools.Tool {
	return []tools.Tool{
		&tools.StaticTool{
			Definition: tools.Descriptor{
				Name:        "system_info",
				Description: "Report gateway process and runtime statistics",
				InputSchema: json.RawMessage(`{"type":"object"}`),
				Scopes: &auth.ScopeRequirement{
					AllOf:            []string{"mcp:admin"},
					Privileged:       true,
					RequireAdminUser: true,
				},
			},
			Handler: handleSystemInfo,
		},
	}
}

func handleSystemInfo(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return json.Marshal(map[string]any{
		"go_version":     runtime.Version(),
		"os":             runtime.GOOS,
		"arch":           runtime.GOARCH,
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc":     mem.HeapAlloc,
		"heap_objects":   mem.HeapObjects,
		"gc_cycles":      mem.NumGC,
		"uptime_seconds": int64(time.Since(processStart).Seconds()),
	})
}
