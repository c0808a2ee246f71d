// ABOUTME: Static resource listing and reads for the resources/* methods
// ABOUTME: Resources come from configuration, inline or loaded from disk

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/2389/warden-gateway/internal/config"
)

// resourceEntry is one readable resource with its content resolver.
type resourceEntry struct {
	name     string
	uri      string
	mimeType string
	read     func() (string, error)
}

// resourceInfo is the wire form of a resource definition.
type resourceInfo struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
}

// resourceContents is one entry of a resources/read result.
type resourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text"`
}

type resourceReadParams struct {
	URI string `json:"uri"`
}

// buildResources validates configured resources and binds their readers.
// Inline content and file-backed content are mutually exclusive.
func buildResources(cfgs []config.ResourceConfig) ([]resourceEntry, error) {
	entries := make([]resourceEntry, 0, len(cfgs))
	for _, rc := range cfgs {
		if rc.Name == "" || rc.URI == "" {
			return nil, fmt.Errorf("resource requires both name and uri")
		}
		if rc.Content != "" && rc.Path != "" {
			return nil, fmt.Errorf("resource %q: content and path are mutually exclusive", rc.Name)
		}

		entry := resourceEntry{name: rc.Name, uri: rc.URI, mimeType: rc.MimeType}
		switch {
		case rc.Path != "":
			path := rc.Path
			entry.read = func() (string, error) {
				data, err := os.ReadFile(path)
				if err != nil {
					return "", fmt.Errorf("reading resource file: %w", err)
				}
				return string(data), nil
			}
		default:
			content := rc.Content
			entry.read = func() (string, error) { return content, nil }
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Server) handleResourcesList(context.Context, JSONRPCRequest, *callInfo) (any, *JSONRPCError) {
	infos := make([]resourceInfo, 0, len(s.resources))
	for _, res := range s.resources {
		infos = append(infos, resourceInfo{
			URI:      res.uri,
			Name:     res.name,
			MimeType: res.mimeType,
		})
	}
	return map[string]any{"resources": infos}, nil
}

func (s *Server) handleResourcesRead(_ context.Context, req JSONRPCRequest, _ *callInfo) (any, *JSONRPCError) {
	var params resourceReadParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "invalid params"}
		}
	}
	if params.URI == "" {
		return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "resource uri is required"}
	}

	for _, res := range s.resources {
		if res.uri != params.URI {
			continue
		}
		text, err := res.read()
		if err != nil {
			s.logger.Warn("resource read failed", "uri", params.URI, "error", err)
			return nil, &JSONRPCError{Code: JSONRPCInternalError, Message: "resource read failed"}
		}
		return map[string]any{
			"contents": []resourceContents{
				{URI: res.uri, MimeType: res.mimeType, Text: text},
			},
		}, nil
	}

	return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "resource not found"}
}
