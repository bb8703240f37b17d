package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"clipforge/internal/queue"
)

func formatBytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

// formatClock renders seconds as H:MM:SS.mmm, dropping the hour when zero.
func formatClock(seconds float64) string {
	if seconds <= 0 || math.IsNaN(seconds) {
		return "0:00.000"
	}
	millis := int64(math.Round(seconds * 1000))
	h := millis / 3_600_000
	m := (millis % 3_600_000) / 60_000
	s := (millis % 60_000) / 1000
	ms := millis % 1000
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d.%03d", h, m, s, ms)
	}
	return fmt.Sprintf("%d:%02d.%03d", m, s, ms)
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "unknown"
	}
	return formatClock(seconds)
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func formatOptionalWhen(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatWhen(*t)
}

func parseID(value, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, value)
	}
	return id, nil
}

func parseStatuses(values []string) ([]queue.Status, error) {
	var statuses []queue.Status
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			status, ok := queue.ParseStatus(part)
			if !ok {
				return nil, fmt.Errorf("unknown status %q (want queued, running, done or failed)", part)
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-1]) + "…"
}
