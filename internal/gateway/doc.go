// ABOUTME: Package gateway assembles every component into a runnable server
// ABOUTME: One constructor, one Run loop, one Shutdown path

// Package gateway wires configuration into a running server: session
// store, token verification, the security middleware chain, the tool
// registry with its builtin tools, the MCP dispatcher, the drift
// monitor, and optional Prometheus metrics.
package gateway
