// Package clips validates clip requests and extracts them from recordings.
//
// A request is validated synchronously and either rejected with a
// user-facing reason, with nothing persisted, or recorded as a pending clip
// request with a queued extraction job. Extraction re-encodes the range so
// every clip has a consistent codec, and attaches the result in the same
// transaction that marks the request done.
package clips

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"clipforge/internal/catalog"
	"clipforge/internal/services"
)

const stageName = "clips"

// Default duration bounds of a clip, in seconds.
const (
	DefaultMinSeconds = 1
	DefaultMaxSeconds = 300
)

// Request is a user's clip intent before validation.
type Request struct {
	RecordingID int64
	// ClipID names an existing clip to replace; zero creates a new clip.
	ClipID int64
	Title  string
	Start  string
	End    string
}

// Range is a validated clip range in seconds.
type Range struct {
	Start float64
	End   float64
}

// Duration returns the length of the range.
func (r Range) Duration() float64 {
	return r.End - r.Start
}

// Limits bounds the duration of a clip.
type Limits struct {
	MinSeconds float64
	MaxSeconds float64
}

// DefaultLimits returns the one second to five minute window.
func DefaultLimits() Limits {
	return Limits{MinSeconds: DefaultMinSeconds, MaxSeconds: DefaultMaxSeconds}
}

// ParseTimestamp converts "HH:MM:SS[.fff]", "MM:SS[.fff]" or plain seconds
// into seconds, keeping fractions.
func ParseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	parts := strings.Split(value, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("timestamp %q has too many fields", value)
	}
	var total float64
	for i, part := range parts {
		last := i == len(parts)-1
		var n float64
		if last {
			f, err := strconv.ParseFloat(part, 64)
			if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
				return 0, fmt.Errorf("timestamp %q is not numeric", value)
			}
			n = f
		} else {
			whole, err := strconv.ParseUint(part, 10, 32)
			if err != nil {
				return 0, fmt.Errorf("timestamp %q is not numeric", value)
			}
			n = float64(whole)
		}
		if n < 0 {
			return 0, fmt.Errorf("timestamp %q is negative", value)
		}
		if len(parts) > 1 && i > 0 && n >= 60 {
			return 0, fmt.Errorf("timestamp %q has a field out of range", value)
		}
		total = total*60 + n
	}
	return total, nil
}

// Validate checks req against rec in a fixed order and returns the parsed
// range. The first failing check wins; its message is user-facing. A
// recording whose duration is unknown skips the duration bound.
func Validate(rec *catalog.Recording, req Request, limits Limits) (Range, error) {
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}
	if rec == nil {
		return Range{}, invalid("Recording must be present to make clip")
	}
	if strings.TrimSpace(req.Start) == "" {
		return Range{}, invalid("Start time cannot be empty")
	}
	if strings.TrimSpace(req.End) == "" {
		return Range{}, invalid("End time cannot be empty")
	}
	start, err := ParseTimestamp(req.Start)
	if err != nil {
		return Range{}, invalid(fmt.Sprintf("Start time is invalid: %v", err))
	}
	end, err := ParseTimestamp(req.End)
	if err != nil {
		return Range{}, invalid(fmt.Sprintf("End time is invalid: %v", err))
	}
	if end <= start {
		return Range{}, invalid("Start time must be before end time")
	}
	duration := end - start
	if duration < limits.MinSeconds || duration > limits.MaxSeconds {
		return Range{}, invalid(fmt.Sprintf("Video duration must be between %s and %s seconds",
			formatSeconds(limits.MinSeconds), formatSeconds(limits.MaxSeconds)))
	}
	if rec.DurationSeconds > 0 && end > rec.DurationSeconds {
		return Range{}, invalid("End time exceeds recording duration")
	}
	if strings.TrimSpace(req.Title) == "" {
		return Range{}, invalid("Title can't be blank")
	}
	return Range{Start: start, End: end}, nil
}

func invalid(message string) error {
	return services.Wrap(services.ErrValidation, stageName, "validate", message, nil)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
