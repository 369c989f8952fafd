package firestore

import (
	"time"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func normalizePageSize(size int) int {
	if size <= 0 {
		return defaultPageSize
	}
	if size > maxPageSize {
		return maxPageSize
	}
	return size
}

// cursorTime recovers a timestamp cursor component from a decoded page token.
// Tokens round-trip through JSON, so timestamps arrive as RFC 3339 strings.
func cursorTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

// cursorNumber recovers a numeric cursor component from a decoded page token.
func cursorNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
