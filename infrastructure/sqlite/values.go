package sqlite

import (
	"strings"
	"time"
)

// TimeLayout matches the text SQLite's CURRENT_TIMESTAMP produces, with
// milliseconds so rows written within one second still order by time.
const TimeLayout = "2006-01-02 15:04:05.000"

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// NullIfEmpty maps blank strings to NULL so optional unique columns (SKU,
// serial) do not collide on "".
func NullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.TrimSpace(s)
}

// NullableID maps a nil id to NULL.
func NullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
