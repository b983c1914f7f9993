package tools

import "strconv"

// asInt accepts the handful of JSON-decoded numeric shapes a tool
// parameter can arrive as (json.Unmarshal into map[string]any always
// produces float64, but handlers may also be called with int directly in
// tests).
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func itoa(n int) string { return strconv.Itoa(n) }
