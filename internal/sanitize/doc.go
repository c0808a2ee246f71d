// Package sanitize neutralizes injection patterns in untrusted text.
//
// # Overview
//
// Two entry points cover the gateway's input handling:
//
//   - Text: applies an ordered list of pre-compiled pattern replacements
//     to a single string, removing template-injection markers,
//     system-instruction overrides, shell metacharacters, command
//     substitution, invocation patterns, and destructive command
//     signatures, then truncates to MaxTextLength.
//   - Arguments: recursively applies Text to every string leaf of a JSON
//     argument payload, capping array lengths, restricting object keys to
//     a safe character set, and bounding recursion depth.
//
// # Idempotence
//
// Sanitization is idempotent: Text(Text(x)) == Text(x) for all x. The
// replacement token is chosen so it never re-triggers any pattern.
//
// # Call Sites
//
// The tool registry sanitizes descriptions at extraction time; the
// protocol dispatcher sanitizes call arguments before schema validation
// and invocation. The underlying procedure never observes raw input.
package sanitize
