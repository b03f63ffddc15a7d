package decisionlog

import "strings"

// RedactionMarker replaces values whose field name matches the
// sensitive-term heuristic.
const RedactionMarker = "[REDACTED]"

var sensitiveTerms = []string{"password", "token", "secret", "key", "credential"}

// Sanitize returns a copy of the map with every sensitively-named field
// redacted, recursing through nested maps and slices. The input is
// never modified. Matching is a case-insensitive substring test on the
// field name.
func Sanitize(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	clean := make(map[string]any, len(fields))
	for name, value := range fields {
		if sensitiveName(name) {
			clean[name] = RedactionMarker
			continue
		}
		clean[name] = sanitizeValue(value)
	}
	return clean
}

func sanitizeValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return Sanitize(v)
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = sanitizeValue(item)
		}
		return items
	default:
		return value
	}
}

func sensitiveName(name string) bool {
	lowered := strings.ToLower(name)
	for _, term := range sensitiveTerms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}
