// ABOUTME: Package security implements the layered request enforcement pipeline
// ABOUTME: Network filtering, rate limiting, event logging, and token enforcement

// Package security provides the HTTP middleware pipeline that guards the
// gateway: an IP allow/deny filter with temporary auto-blocks, tiered
// token-bucket rate limiting, a security event log with sliding-window
// anomaly detection, and structural bearer token enforcement.
//
// Stages run in a fixed order from cheapest to most expensive. Each
// stage can be disabled independently; a disabled stage is omitted from
// the pipeline entirely.
package security
