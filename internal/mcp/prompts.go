// ABOUTME: Prompt template listing and retrieval for the prompts/* methods
// ABOUTME: Templates substitute {placeholder} markers from caller arguments

package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/2389/warden-gateway/internal/sanitize"
)

// promptInfo is the wire form of a prompt definition.
type promptInfo struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []promptArgument `json:"arguments,omitempty"`
}

type promptArgument struct {
	Name     string `json:"name"`
	Required bool   `json:"required,omitempty"`
}

// promptMessage is one message in a prompts/get result.
type promptMessage struct {
	Role    string     `json:"role"`
	Content MCPContent `json:"content"`
}

type promptGetParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

func (s *Server) handlePromptsList(context.Context, JSONRPCRequest, *callInfo) (any, *JSONRPCError) {
	infos := make([]promptInfo, 0, len(s.prompts))
	for _, p := range s.prompts {
		info := promptInfo{Name: p.Name, Description: p.Description}
		for _, arg := range p.Arguments {
			info.Arguments = append(info.Arguments, promptArgument{Name: arg, Required: true})
		}
		infos = append(infos, info)
	}
	return map[string]any{"prompts": infos}, nil
}

func (s *Server) handlePromptsGet(_ context.Context, req JSONRPCRequest, _ *callInfo) (any, *JSONRPCError) {
	var params promptGetParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "invalid params"}
		}
	}
	if params.Name == "" {
		return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "prompt name is required"}
	}

	for _, p := range s.prompts {
		if p.Name != params.Name {
			continue
		}
		text := p.Template
		for _, arg := range p.Arguments {
			value, ok := params.Arguments[arg]
			if !ok {
				return nil, &JSONRPCError{
					Code:    JSONRPCInvalidParams,
					Message: "missing required argument",
					Data:    arg,
				}
			}
			text = strings.ReplaceAll(text, "{"+arg+"}", sanitize.Text(value))
		}
		return map[string]any{
			"description": p.Description,
			"messages": []promptMessage{
				{Role: "user", Content: MCPContent{Type: "text", Text: text}},
			},
		}, nil
	}

	return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "prompt not found"}
}
