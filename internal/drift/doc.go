// ABOUTME: Package drift watches registered tool schemas for silent changes
// ABOUTME: Detects rug-pull style schema swaps after initial approval

// Package drift detects tool schema changes after registration. Each
// tool's input schema is fingerprinted into a canonical hash; a changed
// hash is classified parameter by parameter, graded by impact, checked
// against an operator approval allow-list, and surfaced as a security
// event. Critical drift can automatically disable the tool.
package drift
