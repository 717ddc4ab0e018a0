package secrets

import "strings"

// RedactedMarker replaces secret plaintext in stored node snapshots. The
// snapshots are display history only, so the replacement is never undone.
const RedactedMarker = "[redacted]"

// RedactString replaces every occurrence of the given secret values in s.
func RedactString(s string, secretValues []string) string {
	for _, v := range secretValues {
		if v == "" {
			continue
		}
		s = strings.ReplaceAll(s, v, RedactedMarker)
	}
	return s
}

// RedactValue walks a decoded JSON value and replaces secret plaintext
// wherever it appears, inside strings included.
func RedactValue(v any, secretValues []string) any {
	switch t := v.(type) {
	case string:
		return RedactString(t, secretValues)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = RedactValue(val, secretValues)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = RedactValue(val, secretValues)
		}
		return out
	default:
		return v
	}
}
