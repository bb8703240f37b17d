package database

import (
	"errors"
	"strings"
	"time"
)

// Now returns the canonical timestamp string stored in TEXT columns.
func Now() string {
	return FormatTime(time.Now())
}

// FormatTime renders t as stored in TEXT columns.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime accepts RFC3339 and SQLite's default datetime layout.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// NullableString maps "" to SQL NULL.
func NullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// NullableInt64 maps 0 to SQL NULL.
func NullableInt64(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

// Placeholders returns a comma separated list of count '?' markers.
func Placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
