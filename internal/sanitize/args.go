// ABOUTME: Recursive sanitization of tool call arguments
// ABOUTME: Bounds recursion depth, array lengths, and object key counts on untrusted input

package sanitize

import (
	"encoding/json"
	"regexp"
)

// Structural bounds on untrusted argument trees.
const (
	MaxDepth      = 8
	MaxArrayItems = 128
	MaxObjectKeys = 64
)

// depthSentinel replaces any value nested past MaxDepth.
const depthSentinel = "[max depth exceeded]"

// safeKeyChars strips everything outside the safe object-key character set.
var safeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_.\-]`)

// Arguments sanitizes a JSON argument payload: every string leaf passes
// through Text, arrays are capped at MaxArrayItems, object keys are
// restricted to a safe character set and capped at MaxObjectKeys, and
// recursion past MaxDepth yields a sentinel value instead of descending.
// Invalid JSON yields an empty object rather than an error.
func Arguments(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return json.RawMessage("{}")
	}

	sanitized := walk(value, 0)

	out, err := json.Marshal(sanitized)
	if err != nil {
		return json.RawMessage("{}")
	}
	return out
}

// walk sanitizes a decoded JSON value at the given depth.
func walk(value any, depth int) any {
	if depth >= MaxDepth {
		return depthSentinel
	}

	switch v := value.(type) {
	case string:
		return Text(v)
	case []any:
		if len(v) > MaxArrayItems {
			v = v[:MaxArrayItems]
		}
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = walk(item, depth+1)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		count := 0
		for key, item := range v {
			if count >= MaxObjectKeys {
				break
			}
			safeKey := safeKeyChars.ReplaceAllString(key, "")
			if safeKey == "" {
				continue
			}
			out[safeKey] = walk(item, depth+1)
			count++
		}
		return out
	default:
		// Numbers, booleans, null pass through unchanged
		return v
	}
}
