package ffprobe

import (
	"context"
	"errors"
	"testing"

	"clipforge/internal/procexec"
	"clipforge/internal/services"
)

type fakeRunner struct {
	stdout string
	err    error
	calls  []procexec.Command
}

func (f *fakeRunner) Run(_ context.Context, cmd procexec.Command) (procexec.Result, error) {
	f.calls = append(f.calls, cmd)
	return procexec.Result{Stdout: []byte(f.stdout)}, f.err
}

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video"},
			{CodecType: "audio"},
			{CodecType: "audio"},
		},
		Format: Format{
			Duration: "123.45",
			Size:     "1000",
		},
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.VideoStreamCount())
	}
	if result.AudioStreamCount() != 2 {
		t.Fatalf("expected 2 audio streams, got %d", result.AudioStreamCount())
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 1000 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
}

func TestDurationFallsBackToLongestStream(t *testing.T) {
	result := Result{
		Streams: []Stream{{Duration: "10.5"}, {Duration: "bad"}, {Duration: "12.25"}},
		Format:  Format{Duration: "N/A", Size: "-1"},
	}
	if got := result.DurationSeconds(); got != 12.25 {
		t.Fatalf("expected stream fallback 12.25, got %v", got)
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
}

func TestProberDuration(t *testing.T) {
	runner := &fakeRunner{stdout: `{"streams":[],"format":{"duration":"7201.5"}}`}
	p := &Prober{Binary: "ffprobe", Runner: runner}

	got, err := p.Duration(context.Background(), "/tmp/in.mp4")
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if got != 7201.5 {
		t.Fatalf("unexpected duration %v", got)
	}
	args := runner.calls[0].Args
	if args[len(args)-1] != "/tmp/in.mp4" || args[len(args)-2] != "--" {
		t.Fatalf("expected path after --, got %v", args)
	}
}

func TestProberErrors(t *testing.T) {
	p := &Prober{Runner: &fakeRunner{stdout: "not json"}}
	if _, err := p.Inspect(context.Background(), "/x.mp4"); !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}

	p = &Prober{Runner: &fakeRunner{stdout: `{"format":{}}`}}
	if _, err := p.Duration(context.Background(), "/x.mp4"); !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected ErrParse for missing duration, got %v", err)
	}

	toolErr := services.Wrap(services.ErrExternalTool, "ffprobe", "ffprobe", "exit status 1", nil)
	p = &Prober{Runner: &fakeRunner{err: toolErr}}
	if _, err := p.Inspect(context.Background(), "/x.mp4"); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected runner error passthrough, got %v", err)
	}

	if _, err := p.Inspect(context.Background(), " "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
