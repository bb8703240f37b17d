package subtitles

import (
	"os"
	"path/filepath"
	"testing"

	"clipforge/internal/transcript"
)

func TestFormatTimestamp(t *testing.T) {
	cases := map[float64]string{
		0:        "00:00:00,000",
		1.5:      "00:00:01,500",
		61.0004:  "00:01:01,000",
		59.9996:  "00:01:00,000",
		3723.25:  "01:02:03,250",
		-3:       "00:00:00,000",
		360000.5: "100:00:00,500",
	}
	for in, want := range cases {
		if got := FormatTimestamp(in); got != want {
			t.Fatalf("FormatTimestamp(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestRenderAppliesOffset(t *testing.T) {
	segments := []transcript.Segment{
		{Start: 0, End: 2, Text: " Hello world "},
		{Start: 2, End: 4.5, Text: "Second caption"},
	}
	got := Render(segments, 0.2)
	want := "1\n00:00:00,200 --> 00:00:02,200\nHello world\n\n" +
		"2\n00:00:02,200 --> 00:00:04,700\nSecond caption\n\n"
	if got != want {
		t.Fatalf("Render mismatch\n got: %q\nwant: %q", got, want)
	}
	if Render(nil, 0.2) != "" {
		t.Fatal("expected empty render for no segments")
	}
}

func TestWriteSRT(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captions.srt")
	if err := WriteSRT(path, []transcript.Segment{{Start: 1, End: 2, Text: "hi"}}, 0); err != nil {
		t.Fatalf("WriteSRT: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "1\n00:00:01,000 --> 00:00:02,000\nhi\n\n" {
		t.Fatalf("unexpected srt %q", data)
	}
}

func TestSubtitledFilename(t *testing.T) {
	if got := SubtitledFilename("Any% Speedrun: Day 2", 17); got != "subtitled_any-speedrun-day-2_17.mp4" {
		t.Fatalf("unexpected filename %q", got)
	}
}
