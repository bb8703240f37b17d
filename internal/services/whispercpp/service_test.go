package whispercpp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"clipforge/internal/procexec"
	"clipforge/internal/services"
)

type scriptedRunner struct {
	calls []procexec.Command
	// write is called with each command to simulate tool output.
	write func(cmd procexec.Command) error
}

func (r *scriptedRunner) Run(_ context.Context, cmd procexec.Command) (procexec.Result, error) {
	r.calls = append(r.calls, cmd)
	if r.write != nil {
		if err := r.write(cmd); err != nil {
			return procexec.Result{ExitCode: 1}, err
		}
	}
	return procexec.Result{}, nil
}

func argAfter(args []string, flag string) string {
	idx := slices.Index(args, flag)
	if idx < 0 || idx+1 >= len(args) {
		return ""
	}
	return args[idx+1]
}

func TestTranscribeBuildsWhisperArguments(t *testing.T) {
	dir := t.TempDir()
	wav := filepath.Join(dir, "audio.wav")
	if err := os.WriteFile(wav, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	prefix := filepath.Join(dir, "whisper_out")

	runner := &scriptedRunner{write: func(cmd procexec.Command) error {
		return os.WriteFile(argAfter(cmd.Args, "-of")+".json", []byte(`{"transcription":[]}`), 0o644)
	}}
	svc := NewService(Config{ModelPath: "/models/ggml-large-v2.bin", WordThreshold: 0.01}, "", runner)

	result, err := svc.Transcribe(context.Background(), wav, prefix)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.JSONPath != prefix+".json" || result.TextPath != prefix+".txt" {
		t.Fatalf("unexpected result %#v", result)
	}

	cmd := runner.calls[0]
	want := []string{
		"-m", "/models/ggml-large-v2.bin",
		"-f", wav,
		"-of", prefix,
		"-otxt", "-oj",
		"-t", "4",
		"-ng",
		"--no-timestamps",
		"--max-len", "0",
		"--word-thold", "0.01",
	}
	if cmd.Name != DefaultBinary || !slices.Equal(cmd.Args, want) {
		t.Fatalf("unexpected command %s %v", cmd.Name, cmd.Args)
	}
}

func TestTranscribeMissingJSONIsFailure(t *testing.T) {
	dir := t.TempDir()
	wav := filepath.Join(dir, "audio.wav")
	if err := os.WriteFile(wav, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	svc := NewService(Config{ModelPath: "m"}, "", &scriptedRunner{})
	_, err := svc.Transcribe(context.Background(), wav, filepath.Join(dir, "out"))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
}

func TestTranscribeMissingInput(t *testing.T) {
	svc := NewService(Config{ModelPath: "m"}, "", &scriptedRunner{})
	_, err := svc.Transcribe(context.Background(), filepath.Join(t.TempDir(), "none.wav"), "/tmp/out")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExtractAudioArguments(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "audio.wav")
	runner := &scriptedRunner{write: func(cmd procexec.Command) error {
		return os.WriteFile(cmd.Args[len(cmd.Args)-1], []byte("RIFF"), 0o644)
	}}
	svc := NewService(Config{}, "/usr/bin/ffmpeg", runner)

	if err := svc.ExtractAudio(context.Background(), "/in/video.mp4", dest); err != nil {
		t.Fatalf("ExtractAudio: %v", err)
	}
	want := []string{"-y", "-i", "/in/video.mp4", "-ar", "16000", "-ac", "1", "-f", "wav", dest}
	if got := runner.calls[0]; got.Name != "/usr/bin/ffmpeg" || !slices.Equal(got.Args, want) {
		t.Fatalf("unexpected command %s %v", got.Name, got.Args)
	}
}

func TestExtractAudioPropagatesToolFailure(t *testing.T) {
	toolErr := services.Wrap(services.ErrExternalTool, "transcription", "ffmpeg", "exit status 1", nil)
	runner := &scriptedRunner{write: func(procexec.Command) error { return toolErr }}
	svc := NewService(Config{}, "", runner)
	if err := svc.ExtractAudio(context.Background(), "/in.mp4", filepath.Join(t.TempDir(), "a.wav")); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
}
