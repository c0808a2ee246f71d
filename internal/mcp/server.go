// ABOUTME: JSON-RPC 2.0 dispatcher for the MCP endpoint over HTTP POST
// ABOUTME: Routes methods through a typed handler table with caller resolution

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/warden-gateway/internal/auth"
	"github.com/2389/warden-gateway/internal/config"
	"github.com/2389/warden-gateway/internal/metrics"
	"github.com/2389/warden-gateway/internal/sanitize"
	"github.com/2389/warden-gateway/internal/security"
	"github.com/2389/warden-gateway/internal/tasks"
	"github.com/2389/warden-gateway/internal/tools"
)

// Supported MCP protocol versions
var supportedProtocolVersions = map[string]bool{
	"2025-03-26": true,
	"2025-11-25": true,
}

// latestProtocolVersion is the version we advertise in initialize responses
const latestProtocolVersion = "2025-11-25"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// MCP-specific types

// MCPToolInfo represents an MCP tool definition.
type MCPToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// MCPListToolsResult is the result for tools/list.
type MCPListToolsResult struct {
	Tools []MCPToolInfo `json:"tools"`
}

// MCPCallToolParams are the params for tools/call.
type MCPCallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MCPCallToolResult is the result for tools/call.
type MCPCallToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

// MCPContent represents content in a tool result.
type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// callInfo carries the resolved request identity into method handlers.
type callInfo struct {
	caller        *auth.CallerContext
	hasCredential bool
	sourceIP      string
	userAgent     string
}

// methodHandler processes one JSON-RPC method. A non-nil *JSONRPCError
// takes precedence over the result.
type methodHandler func(ctx context.Context, req JSONRPCRequest, info *callInfo) (any, *JSONRPCError)

// Config holds configuration for the MCP server.
type Config struct {
	Registry   *tools.Registry
	Authorizer *auth.Authorizer
	Resolver   *auth.Resolver
	Tasks      *tasks.Store
	Events     *security.EventLogger // optional
	Metrics    *metrics.Metrics      // optional
	Logger     *slog.Logger

	Prompts   []config.PromptConfig
	Resources []config.ResourceConfig

	ServerName    string
	ServerVersion string

	// RequireAuthForDiscovery rejects anonymous tools/list requests.
	RequireAuthForDiscovery bool
}

// Server dispatches JSON-RPC requests on the MCP endpoint.
type Server struct {
	registry   *tools.Registry
	authorizer *auth.Authorizer
	resolver   *auth.Resolver
	tasks      *tasks.Store
	events     *security.EventLogger
	metrics    *metrics.Metrics
	logger     *slog.Logger

	prompts   []config.PromptConfig
	resources []resourceEntry

	serverName    string
	serverVersion string
	authDiscovery bool

	methods map[string]methodHandler
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Authorizer == nil {
		return nil, errors.New("authorizer is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("caller resolver is required")
	}
	if cfg.Tasks == nil {
		return nil, errors.New("task store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.ServerName
	if name == "" {
		name = "warden-gateway"
	}
	version := cfg.ServerVersion
	if version == "" {
		version = "1.0.0"
	}

	s := &Server{
		registry:      cfg.Registry,
		authorizer:    cfg.Authorizer,
		resolver:      cfg.Resolver,
		tasks:         cfg.Tasks,
		events:        cfg.Events,
		metrics:       cfg.Metrics,
		logger:        logger.With("component", "mcp"),
		prompts:       cfg.Prompts,
		serverName:    name,
		serverVersion: version,
		authDiscovery: cfg.RequireAuthForDiscovery,
	}

	resources, err := buildResources(cfg.Resources)
	if err != nil {
		return nil, err
	}
	s.resources = resources

	s.methods = map[string]methodHandler{
		"initialize":     s.handleInitialize,
		"ping":           s.handlePing,
		"tools/list":     s.handleToolsList,
		"tools/call":     s.handleToolsCall,
		"prompts/list":   s.handlePromptsList,
		"prompts/get":    s.handlePromptsGet,
		"resources/list": s.handleResourcesList,
		"resources/read": s.handleResourcesRead,
	}
	return s, nil
}

// RegisterRoutes registers the MCP endpoint on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux, path string) {
	if path == "" {
		path = "/mcp"
	}
	mux.HandleFunc(path, s.handleMCP)
}

// handleMCP is the single MCP endpoint. Only POST carries JSON-RPC;
// OPTIONS serves CORS preflight so browser-based clients can connect.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "POST, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Protocol-Version")
}

// handlePost processes JSON-RPC messages sent via HTTP POST.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	// A panicking handler must never take the process down
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic in request handler", "panic", rec)
			s.sendJSONRPCError(w, nil, JSONRPCInternalError, "internal error", nil)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.sendJSONRPCError(w, nil, JSONRPCParseError, "failed to read request body", nil)
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.sendJSONRPCError(w, nil, JSONRPCInvalidRequest, "request body too large", nil)
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.sendJSONRPCError(w, nil, JSONRPCParseError, "invalid JSON", nil)
		return
	}
	if req.JSONRPC != "2.0" {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version", nil)
		return
	}

	if proto := r.Header.Get("Mcp-Protocol-Version"); proto != "" && req.Method != "initialize" {
		if !supportedProtocolVersions[proto] {
			http.Error(w, "Bad Request: unsupported MCP-Protocol-Version", http.StatusBadRequest)
			return
		}
	}

	info := s.resolveCall(r)
	isNotification := len(req.ID) == 0 || string(req.ID) == "null"

	s.logger.Debug("MCP request",
		"method", req.Method,
		"is_notification", isNotification,
		"user_id", info.caller.UserID,
	)

	// Notifications get HTTP 202 with no body regardless of outcome
	if isNotification {
		if strings.HasPrefix(req.Method, "notifications/") {
			s.handleNotification(req)
		} else {
			s.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	handler, ok := s.methods[req.Method]
	if !ok {
		s.sendJSONRPCError(w, req.ID, JSONRPCMethodNotFound, "method not found", nil)
		return
	}

	result, rpcErr := handler(r.Context(), req, info)
	if rpcErr != nil {
		s.sendJSONRPCError(w, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	s.sendJSONRPCResult(w, req.ID, result)
}

// DrainProgress logs task progress events until ctx is cancelled.
// Run in its own goroutine; without a drainer the progress channel
// fills and further events are dropped.
func (s *Server) DrainProgress(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-s.tasks.Progress():
			s.logger.Debug("task progress",
				"task_id", p.TaskID,
				"step", p.Current,
				"total", p.Total,
				"message", p.Message,
			)
		}
	}
}

// resolveCall extracts the bearer credential and resolves the caller.
// Resolution never fails: an unknown or expired credential yields the
// anonymous caller, and the authorization layer decides what that means.
func (s *Server) resolveCall(r *http.Request) *callInfo {
	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return &callInfo{
		caller:        s.resolver.ResolveCaller(r.Context(), token),
		hasCredential: token != "",
		sourceIP:      security.ClientIP(r),
		userAgent:     r.UserAgent(),
	}
}

// handleInitialize handles the MCP initialize handshake.
func (s *Server) handleInitialize(_ context.Context, _ JSONRPCRequest, _ *callInfo) (any, *JSONRPCError) {
	return map[string]any{
		"protocolVersion": latestProtocolVersion,
		"capabilities": map[string]any{
			"tools":     map[string]any{},
			"prompts":   map[string]any{},
			"resources": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    s.serverName,
			"version": s.serverVersion,
		},
	}, nil
}

// handlePing replies with an empty object, proving liveness.
func (s *Server) handlePing(context.Context, JSONRPCRequest, *callInfo) (any, *JSONRPCError) {
	return map[string]any{}, nil
}

// handleToolsList returns the tools visible to the resolved caller.
// Discovery and execution share one scope predicate, so a listed tool is
// always callable and a hidden tool is never callable.
func (s *Server) handleToolsList(_ context.Context, _ JSONRPCRequest, info *callInfo) (any, *JSONRPCError) {
	if s.authDiscovery && info.caller.IsAnonymous() {
		return nil, &JSONRPCError{Code: JSONRPCInvalidRequest, Message: "authentication required"}
	}

	descs := s.registry.Extract()
	result := MCPListToolsResult{Tools: make([]MCPToolInfo, 0, len(descs))}
	for _, desc := range descs {
		if !s.authorizer.IsVisible(desc.Scopes, info.caller) {
			continue
		}
		result.Tools = append(result.Tools, MCPToolInfo{
			Name:        desc.Name,
			Description: desc.Description,
			InputSchema: desc.InputSchema,
		})
	}

	s.logger.Debug("tools/list", "count", len(result.Tools), "user_id", info.caller.UserID)
	return result, nil
}

// handleToolsCall authorizes, sanitizes, validates, and invokes a tool.
func (s *Server) handleToolsCall(ctx context.Context, req JSONRPCRequest, info *callInfo) (any, *JSONRPCError) {
	var params MCPCallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "invalid params"}
		}
	}
	if params.Name == "" {
		return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "tool name is required"}
	}

	tool, desc, err := s.registry.Lookup(params.Name)
	if err != nil {
		// Disabled tools are indistinguishable from missing ones
		return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "tool not found"}
	}

	// From here on params.Name is a registered tool, safe to use as a
	// metric label value.
	if err := s.authorizer.Authorize(desc.Scopes, info.caller, info.hasCredential); err != nil {
		s.metrics.ObserveToolCall(params.Name, "unauthorized")
		return nil, s.authorizationError(params.Name, info, err)
	}

	cleaned := sanitize.Arguments(params.Arguments)
	if err := s.registry.Validate(params.Name, cleaned); err != nil {
		s.metrics.ObserveToolCall(params.Name, "invalid_arguments")
		var ve *tools.ValidationError
		if errors.As(err, &ve) {
			return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "invalid arguments", Data: ve.Detail}
		}
		return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "invalid arguments"}
	}

	s.logger.Debug("tools/call", "tool_name", params.Name, "user_id", info.caller.UserID)

	callCtx := auth.WithCaller(ctx, info.caller)
	out, err := tool.Invoke(callCtx, cleaned)
	if err != nil {
		s.metrics.ObserveToolCall(params.Name, "error")
		return nil, s.toolError(params.Name, err)
	}

	s.metrics.ObserveToolCall(params.Name, "ok")
	return MCPCallToolResult{
		Content: []MCPContent{{Type: "text", Text: string(out)}},
	}, nil
}

// authorizationError maps an authorization failure to a wire error.
// Anonymous callers get a generic message; authenticated callers learn
// which scopes they are missing.
func (s *Server) authorizationError(toolName string, info *callInfo, err error) *JSONRPCError {
	if s.events != nil {
		s.events.Record(security.Event{
			Type:      security.EventAuthFailure,
			Severity:  security.SeverityLow,
			SourceIP:  info.sourceIP,
			UserAgent: info.userAgent,
			UserID:    info.caller.UserID,
			Context:   map[string]string{"tool": toolName},
		})
	}

	switch {
	case errors.Is(err, auth.ErrAuthRequired):
		return &JSONRPCError{Code: JSONRPCInvalidRequest, Message: "authentication required"}
	case errors.Is(err, auth.ErrInvalidCredential):
		return &JSONRPCError{Code: JSONRPCInvalidRequest, Message: "invalid or expired credential"}
	}

	var sce *auth.ScopeError
	if errors.As(err, &sce) {
		return &JSONRPCError{Code: JSONRPCInvalidRequest, Message: sce.Error()}
	}
	return &JSONRPCError{Code: JSONRPCInvalidRequest, Message: "not authorized"}
}

// toolError maps tool execution failures onto JSON-RPC errors.
func (s *Server) toolError(toolName string, err error) *JSONRPCError {
	s.logger.Warn("tool execution failed", "tool_name", toolName, "error", err)

	code := JSONRPCInternalError
	message := "tool execution failed"

	switch {
	case errors.Is(err, tools.ErrToolNotFound), errors.Is(err, tools.ErrToolDisabled):
		code = JSONRPCInvalidParams
		message = "tool not found"
	case errors.Is(err, context.DeadlineExceeded):
		message = "tool execution timed out"
	case errors.Is(err, context.Canceled):
		message = "request cancelled"
	}
	return &JSONRPCError{Code: code, Message: message}
}

// cancelledParams are the params of a notifications/cancelled message.
type cancelledParams struct {
	RequestID string `json:"requestId"`
	Reason    string `json:"reason,omitempty"`
}

// handleNotification processes client notifications. Cancellation is
// best-effort: an unknown id is ignored, and a task already past its
// last checkpoint completes anyway.
func (s *Server) handleNotification(req JSONRPCRequest) {
	switch req.Method {
	case "notifications/cancelled":
		var params cancelledParams
		if err := json.Unmarshal(req.Params, &params); err != nil || params.RequestID == "" {
			s.logger.Warn("malformed cancellation notification")
			return
		}
		found := s.tasks.Cancel(params.RequestID)
		s.logger.Info("cancellation requested",
			"task_id", params.RequestID,
			"found", found,
			"reason", params.Reason,
		)
	default:
		s.logger.Debug("accepted MCP notification", "method", req.Method)
	}
}

// sendJSONRPCResult sends a successful JSON-RPC response.
func (s *Server) sendJSONRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}

// sendJSONRPCError sends a JSON-RPC error response.
func (s *Server) sendJSONRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string, data any) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC error response", "error", err)
	}
}
