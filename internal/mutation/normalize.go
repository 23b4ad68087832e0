package mutation

import "golang.org/x/text/unicode/norm"

// NormalizeFields returns a copy of fields with every string value (including
// strings inside []string and []any values) normalized to NFC. User-entered
// text like place names can arrive in different Unicode compositions from
// different devices; normalizing on enqueue keeps remote comparisons stable.
func NormalizeFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return norm.NFC.String(val)
	case []string:
		return normalizeStrings(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case map[string]any:
		return NormalizeFields(val)
	default:
		return v
	}
}

func normalizeStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, s := range values {
		out[i] = norm.NFC.String(s)
	}
	return out
}
