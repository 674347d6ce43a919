package domain

import (
	"strconv"
	"strings"
)

// ParseCursor converts a Last-Event-ID style value into a cursor.
// Missing, unparseable, or negative values yield 0 (replay everything).
func ParseCursor(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
