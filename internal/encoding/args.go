package encoding

import (
	"fmt"
	"strconv"
	"strings"
)

// BurnSettings configures the caption burn encode.
type BurnSettings struct {
	CRF          int
	Preset       string
	Threads      int
	Style        string
	AudioBitrate string
}

// BurnArgs returns the ffmpeg argv that renders srt onto the video of src.
// Video goes through the subtitles filter; audio is mapped from the input
// explicitly so it survives the filter graph.
func BurnArgs(src, srt, out string, s BurnSettings) []string {
	preset := s.Preset
	if preset == "" {
		preset = "medium"
	}
	audio := s.AudioBitrate
	if audio == "" {
		audio = "96k"
	}
	filter := fmt.Sprintf("[0:v]subtitles=%s:force_style='%s'[v]", EscapeFilterPath(srt), s.Style)
	args := []string{
		"-y",
		"-i", src,
		"-filter_complex", filter,
		"-map", "[v]",
		"-map", "0:a",
		"-c:v", "libx264",
		"-crf", strconv.Itoa(s.CRF),
		"-preset", preset,
		"-profile:v", "high",
		"-level", "4.0",
	}
	if s.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(s.Threads))
	}
	return append(args,
		"-c:a", "aac",
		"-b:a", audio,
		"-movflags", "+faststart",
		"-max_muxing_queue_size", "4096",
		"-pix_fmt", "yuv420p",
		out,
	)
}

// EmergencyArgs returns the argv of the aggressive second pass.
func EmergencyArgs(in, out string, crf int) []string {
	return []string{
		"-y",
		"-i", in,
		"-c:v", "libx264",
		"-crf", strconv.Itoa(crf),
		"-preset", "slow",
		"-profile:v", "main",
		"-level", "4.0",
		"-c:a", "aac",
		"-b:a", "64k",
		"-movflags", "+faststart",
		"-pix_fmt", "yuv420p",
		out,
	}
}

// ClipSettings configures clip extraction.
type ClipSettings struct {
	CRF    int
	Preset string
}

// ClipArgs returns the argv that re-encodes [start, start+duration) of src.
// Seeking before -i is fast; re-encoding keeps the cut frame-accurate.
func ClipArgs(src string, start, duration float64, out string, s ClipSettings) []string {
	preset := s.Preset
	if preset == "" {
		preset = "fast"
	}
	crf := s.CRF
	if crf <= 0 {
		crf = 23
	}
	return []string{
		"-y",
		"-ss", FormatSeconds(start),
		"-i", src,
		"-t", FormatSeconds(duration),
		"-c:v", "libx264",
		"-preset", preset,
		"-crf", strconv.Itoa(crf),
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-pix_fmt", "yuv420p",
		out,
	}
}

// FormatSeconds renders seconds with millisecond precision and no trailing zeros.
func FormatSeconds(seconds float64) string {
	return strconv.FormatFloat(float64(int64(seconds*1000+0.5))/1000, 'f', -1, 64)
}

var filterPathEscaper = strings.NewReplacer(
	`\`, `\\\\`,
	`'`, `\\\'`,
	`:`, `\\:`,
	`,`, `\,`,
	`;`, `\;`,
	`[`, `\[`,
	`]`, `\]`,
)

// EscapeFilterPath escapes a file path for use as a filtergraph option value.
func EscapeFilterPath(path string) string {
	return filterPathEscaper.Replace(path)
}
