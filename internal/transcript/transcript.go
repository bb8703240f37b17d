// Package transcript converts speech recognizer output into ordered, time-coded
// segments.
//
// Two output shapes are understood. The utterance schema is whisper.cpp's -oj
// output (an object with a "transcription" array, or a bare array) whose
// entries carry "HH:MM:SS,mmm" timestamps. The numeric schema is an object
// with a "segments" array of {start, end, text} in seconds. The shape is
// detected once and parsed by a dedicated adapter; anything else is a parse
// failure rather than a best-effort guess.
package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"clipforge/internal/services"
)

// Schema identifies a recognizer output shape.
type Schema string

const (
	SchemaUtterances Schema = "utterances"
	SchemaSegments   Schema = "segments"
)

// Segment is one caption-sized span of recognized speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Duration returns the length of the segment in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Payload is the parsed form of one recognizer output document.
type Payload struct {
	Schema   Schema
	Raw      []byte
	Segments []Segment
}

// Options tunes parsing.
type Options struct {
	// MaxRepetitions caps runs of identical consecutive segment text; the
	// rest of a longer run is dropped. Zero disables.
	MaxRepetitions int
}

// DetectSchema inspects the top level of data and reports its shape.
func DetectSchema(data []byte) (Schema, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return "", parseError("detect schema", "empty document", nil)
	}
	switch trimmed[0] {
	case '[':
		return SchemaUtterances, nil
	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return "", parseError("detect schema", "invalid json", err)
		}
		if raw, ok := probe["transcription"]; ok && isArray(raw) {
			return SchemaUtterances, nil
		}
		if raw, ok := probe["segments"]; ok && isArray(raw) {
			return SchemaSegments, nil
		}
		return "", parseError("detect schema", "object has neither transcription nor segments array", nil)
	default:
		return "", parseError("detect schema", "unrecognized top-level value", nil)
	}
}

// Parse converts recognizer output into an ordered segment list.
func Parse(data []byte, opts Options) (Payload, error) {
	schema, err := DetectSchema(data)
	if err != nil {
		return Payload{}, err
	}

	var segments []Segment
	switch schema {
	case SchemaUtterances:
		segments, err = parseUtterances(data)
	case SchemaSegments:
		segments, err = parseNumeric(data)
	}
	if err != nil {
		return Payload{}, err
	}

	segments = normalize(segments)
	if opts.MaxRepetitions > 0 {
		segments = CollapseRepetitions(segments, opts.MaxRepetitions)
	}
	return Payload{Schema: schema, Raw: append([]byte(nil), data...), Segments: segments}, nil
}

// ParseFile reads and parses the recognizer output at path.
func ParseFile(path string, opts Options) (Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Payload{}, services.Wrap(services.ErrNotFound, "transcript", "read output", path, err)
	}
	return Parse(data, opts)
}

// ParseTimecode converts "HH:MM:SS,mmm", "HH:MM:SS.mmm" or "MM:SS" into seconds.
func ParseTimecode(value string) (float64, error) {
	value = strings.TrimSpace(strings.ReplaceAll(value, ",", "."))
	if value == "" {
		return 0, parseError("timecode", "empty timecode", nil)
	}
	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, parseError("timecode", fmt.Sprintf("unsupported timecode %q", value), nil)
	}
	var total float64
	for i, part := range parts {
		var n float64
		if i == len(parts)-1 {
			f, err := strconv.ParseFloat(part, 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
				return 0, parseError("timecode", fmt.Sprintf("invalid timecode %q", value), err)
			}
			n = f
		} else {
			whole, err := strconv.ParseUint(part, 10, 32)
			if err != nil {
				return 0, parseError("timecode", fmt.Sprintf("invalid timecode %q", value), err)
			}
			n = float64(whole)
		}
		if i > 0 && n >= 60 {
			return 0, parseError("timecode", fmt.Sprintf("timecode %q has a field out of range", value), nil)
		}
		total = total*60 + n
	}
	return total, nil
}

// CollapseRepetitions keeps at most max consecutive segments with identical
// text and drops the rest of the run. Recognizers stuck in a loop emit the
// same line for minutes at a time.
func CollapseRepetitions(segments []Segment, max int) []Segment {
	if max <= 0 || len(segments) == 0 {
		return segments
	}
	out := make([]Segment, 0, len(segments))
	run := 0
	for i, seg := range segments {
		if i > 0 && seg.Text == segments[i-1].Text {
			run++
		} else {
			run = 1
		}
		if run > max {
			continue
		}
		out = append(out, seg)
	}
	return out
}

type utterance struct {
	Timestamps *struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"timestamps"`
	Offsets *struct {
		From float64 `json:"from"`
		To   float64 `json:"to"`
	} `json:"offsets"`
	Text string `json:"text"`
}

func parseUtterances(data []byte) ([]Segment, error) {
	var entries []utterance
	trimmed := bytes.TrimSpace(data)
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, parseError("utterances", "decode array", err)
		}
	} else {
		var doc struct {
			Transcription []utterance `json:"transcription"`
		}
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, parseError("utterances", "decode transcription", err)
		}
		entries = doc.Transcription
	}

	segments := make([]Segment, 0, len(entries))
	for i, entry := range entries {
		var start, end float64
		switch {
		case entry.Timestamps != nil:
			var err error
			if start, err = ParseTimecode(entry.Timestamps.From); err != nil {
				return nil, parseError("utterances", fmt.Sprintf("entry %d start", i), err)
			}
			if end, err = ParseTimecode(entry.Timestamps.To); err != nil {
				return nil, parseError("utterances", fmt.Sprintf("entry %d end", i), err)
			}
		case entry.Offsets != nil:
			start = entry.Offsets.From / 1000
			end = entry.Offsets.To / 1000
		default:
			return nil, parseError("utterances", fmt.Sprintf("entry %d has no timestamps", i), nil)
		}
		segments = append(segments, Segment{Start: start, End: end, Text: entry.Text})
	}
	return segments, nil
}

func parseNumeric(data []byte) ([]Segment, error) {
	var doc struct {
		Segments []struct {
			Start *float64 `json:"start"`
			End   *float64 `json:"end"`
			Text  string   `json:"text"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, parseError("segments", "decode segments", err)
	}
	segments := make([]Segment, 0, len(doc.Segments))
	for i, entry := range doc.Segments {
		if entry.Start == nil || entry.End == nil {
			return nil, parseError("segments", fmt.Sprintf("entry %d missing start or end", i), nil)
		}
		segments = append(segments, Segment{Start: *entry.Start, End: *entry.End, Text: entry.Text})
	}
	return segments, nil
}

// normalize trims text, drops empty entries, clamps inverted ranges and
// orders by start time while keeping recognizer order for ties.
func normalize(segments []Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" {
			continue
		}
		if seg.Start < 0 {
			seg.Start = 0
		}
		if seg.End < seg.Start {
			seg.End = seg.Start
		}
		out = append(out, seg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func parseError(op, msg string, err error) error {
	return services.Wrap(services.ErrParse, "transcript", op, msg, err)
}
