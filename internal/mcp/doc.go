// ABOUTME: Package mcp implements the JSON-RPC protocol surface of the gateway
// ABOUTME: Dispatches MCP methods, prompts, resources, and operator endpoints

// Package mcp implements the gateway's MCP-compatible protocol surface:
// a JSON-RPC 2.0 dispatcher over HTTP POST covering the initialize
// handshake, tool discovery and invocation, prompt templates, static
// resources, and cancellation notifications, plus operator endpoints
// for inspecting the security pipeline.
//
// Tool discovery and invocation run the same scope predicate, so the
// set of tools a caller can see always equals the set it can call.
package mcp
