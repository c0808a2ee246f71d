// ABOUTME: Base tools exposed by the gateway: greeting, echo, calculate
// ABOUTME: greeting is public; echo requires the mcp:call scope

package builtins

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/2389/warden-gateway/internal/auth"
	"github.com/2389/warden-gateway/internal/tools"
)

// BaseTools returns the default tool set exposed to MCP clients.
func BaseTools() []tools.Tool {
	return []tools.Tool{
		&tools.StaticTool{
			Definition: tools.Descriptor{
				Name:        "greeting",
				Description: "Return a friendly greeting",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"name":{"type":"string","maxLength":128}}}`),
			},
			Handler: handleGreeting,
		},
		&tools.StaticTool{
			Definition: tools.Descriptor{
				Name:        "echo",
				Description: "Echo a message back to the caller",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"message":{"type":"string"}},"required":["message"]}`),
				Scopes:      &auth.ScopeRequirement{AnyOf: []string{"mcp:call"}},
			},
			Handler: handleEcho,
		},
		&tools.StaticTool{
			Definition: tools.Descriptor{
				Name:        "calculate",
				Description: "Evaluate an arithmetic expression",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"expression":{"type":"string","maxLength":256},"precision":{"type":"integer","minimum":0,"maximum":12}},"required":["expression"]}`),
			},
			Handler: handleCalculate,
		},
	}
}

type greetingInput struct {
	Name string `json:"name"`
}

func handleGreeting(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in greetingInput
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
	}
	if in.Name == "" {
		in.Name = "world"
	}
	return json.Marshal(map[string]string{"greeting": fmt.Sprintf("Hello, %s!", in.Name)})
}

type echoInput struct {
	Message string `json:"message"`
}

func handleEcho(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in echoInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	caller := auth.CallerFromContext(ctx)
	out := map[string]string{"echo": in.Message}
	if !caller.IsAnonymous() {
		out["caller"] = caller.UserID
	}
	return json.Marshal(out)
}

type calculateInput struct {
	Expression string `json:"expression"`
	Precision  *int   `json:"precision"`
}

func handleCalculate(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in calculateInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	value, err := evaluate(in.Expression)
	if err != nil {
		return nil, err
	}

	precision := 6
	if in.Precision != nil {
		precision = *in.Precision
	}
	value = round(value, precision)

	return json.Marshal(map[string]any{
		"expression": in.Expression,
		"result":     value,
	})
}
