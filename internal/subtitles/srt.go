// Package subtitles renders transcript segments as SRT captions and burns
// them into a recording's video.
//
// The stage handler owns the full swap: it fetches the current video into a
// workspace scope, renders captions with the configured display offset,
// burns them with ffmpeg, passes the result through the compression ladder
// and replaces the recording's attachment conditional on the video version
// read at the start. A recording is never left pointing at a half-written
// file.
package subtitles

import (
	"fmt"
	"math"
	"os"
	"strings"

	"clipforge/internal/transcript"
)

// DefaultOffsetSeconds is added to every caption boundary to compensate for
// recognizer timestamps landing slightly ahead of speech.
const DefaultOffsetSeconds = 0.2

// FormatTimestamp renders seconds as an SRT timestamp "HH:MM:SS,mmm".
// Negative values clamp to zero.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	totalMillis := int64(math.Round(seconds * 1000))
	hours := totalMillis / 3_600_000
	minutes := (totalMillis % 3_600_000) / 60_000
	secs := (totalMillis % 60_000) / 1000
	millis := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// Render formats segments as SRT cues numbered from 1, shifting both bounds
// of every cue by offset seconds.
func Render(segments []transcript.Segment, offset float64) string {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1,
			FormatTimestamp(seg.Start+offset),
			FormatTimestamp(seg.End+offset),
			strings.TrimSpace(seg.Text),
		)
	}
	return b.String()
}

// WriteSRT renders segments into path.
func WriteSRT(path string, segments []transcript.Segment, offset float64) error {
	if err := os.WriteFile(path, []byte(Render(segments, offset)), 0o644); err != nil {
		return fmt.Errorf("write srt: %w", err)
	}
	return nil
}
