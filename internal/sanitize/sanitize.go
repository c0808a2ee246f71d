// ABOUTME: Text sanitization for tool descriptions and call arguments
// ABOUTME: Ordered pattern replacements neutralizing injection attempts; idempotent by construction

package sanitize

import (
	"regexp"
)

// MaxTextLength is the maximum length of a sanitized string.
// Longer input is truncated before pattern replacement.
const MaxTextLength = 4096

// filteredToken replaces matched injection patterns. It contains no
// characters that any pattern matches, which keeps sanitization idempotent.
const filteredToken = "[filtered]"

// Patterns are compiled once at startup, never during a request.
// Order matters: composite signatures run before the single-character
// metacharacter sweep that would otherwise destroy them.
var textPatterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	// Template injection markers
	{regexp.MustCompile(`\{\{.*?\}\}`), filteredToken},
	// System-instruction overrides
	{regexp.MustCompile(`(?i)\bSYSTEM\s*:`), filteredToken},
	{regexp.MustCompile(`(?i)\[\s*SYSTEM\s*\]`), filteredToken},
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`), filteredToken},
	{regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions|rules|guidelines)`), filteredToken},
	// Destructive command signatures
	{regexp.MustCompile(`(?i)\brm\s+-[a-z]*[rf][a-z]*\s+[/~]\S*`), filteredToken},
	// Command substitution
	{regexp.MustCompile(`\$\([^)]*\)`), filteredToken},
	{regexp.MustCompile("`[^`]*`"), filteredToken},
	// Invocation patterns
	{regexp.MustCompile(`(?i)\b(eval|exec|execSync|spawn|system|popen|require|import)\s*\(`), filteredToken + " "},
	// Shell metacharacters
	{regexp.MustCompile("[;&|><$\\\\]"), ""},
}

// maxPasses bounds the fixpoint loop in Text. Stripping a metacharacter
// can splice the surrounding text into a fresh pattern match ("SYSTEM;:"
// collapses to "SYSTEM:"), so one table pass is not enough. Every changing
// pass removes at least one metacharacter or replaces matched text with
// the inert token, so the loop converges quickly.
const maxPasses = 8

// Text applies the ordered pattern replacements until the string stops
// changing, then truncates to MaxTextLength. Re-applying Text to its own
// output is a no-op.
func Text(s string) string {
	if len(s) > MaxTextLength {
		s = s[:MaxTextLength]
	}
	for i := 0; i < maxPasses; i++ {
		prev := s
		for _, p := range textPatterns {
			s = p.re.ReplaceAllString(s, p.replacement)
		}
		if s == prev {
			break
		}
	}
	// Replacement tokens are longer than some of the patterns they replace,
	// so the result can grow past the cap; truncate again. A token cut in
	// half matches no pattern, so a second pass is still a no-op.
	if len(s) > MaxTextLength {
		s = s[:MaxTextLength]
	}
	return s
}
