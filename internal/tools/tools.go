// ABOUTME: Tool interface and descriptor types for procedures exposed over MCP
// ABOUTME: Tools are registered explicitly at startup; no runtime reflection

package tools

import (
	"context"
	"encoding/json"

	"github.com/2389/warden-gateway/internal/auth"
)

// emptyObjectSchema is the permissive fallback schema used when a tool
// declares no input schema or its schema fails to compile.
const emptyObjectSchema = `{"type":"object"}`

// Descriptor describes a tool as exposed to MCP clients.
// Description is sanitized at registration time.
type Descriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema json.RawMessage        `json:"inputSchema"`
	Scopes      *auth.ScopeRequirement `json:"-"`
}

// Tool is an invokable operation exposed to MCP clients.
// Implementations must be safe for concurrent invocation.
type Tool interface {
	Name() string
	Describe() Descriptor
	Invoke(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
}

// Handler is the function signature for static tool implementations.
type Handler func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// StaticTool is a declarative Tool built from a descriptor and a handler.
type StaticTool struct {
	Definition Descriptor
	Handler    Handler
}

func (t *StaticTool) Name() string { return t.Definition.Name }

func (t *StaticTool) Describe() Descriptor { return t.Definition }

func (t *StaticTool) Invoke(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	return t.Handler(ctx, args)
}
