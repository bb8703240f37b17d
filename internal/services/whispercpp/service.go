package whispercpp

import (
	"context"
	"os"
	"strconv"
	"strings"

	"clipforge/internal/procexec"
	"clipforge/internal/services"
)

// Service provides whisper.cpp transcription capabilities.
type Service struct {
	cfg          Config
	ffmpegBinary string
	runner       procexec.Runner
}

// NewService creates a whisper.cpp service with the given configuration.
func NewService(cfg Config, ffmpegBinary string, runner procexec.Runner) *Service {
	if ffmpegBinary == "" {
		ffmpegBinary = FFmpegCommand
	}
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.Threads <= 0 {
		cfg.Threads = DefaultThreads
	}
	return &Service{cfg: cfg, ffmpegBinary: ffmpegBinary, runner: runner}
}

// Model returns the configured model path for logging.
func (s *Service) Model() string {
	return s.cfg.ModelPath
}

// ExtractAudio converts the audio of source into a mono 16kHz WAV at dest.
func (s *Service) ExtractAudio(ctx context.Context, source, dest string) error {
	if strings.TrimSpace(source) == "" || strings.TrimSpace(dest) == "" {
		return services.Wrap(services.ErrValidation, "transcription", "extract audio", "source and destination are required", nil)
	}
	_, err := s.runner.Run(ctx, procexec.Command{
		Name:    s.ffmpegBinary,
		Args:    BuildExtractArgs(source, dest),
		Timeout: s.cfg.ExtractTimeout,
		Stage:   "transcription",
	})
	if err != nil {
		return err
	}
	_, err = procexec.VerifyOutput("transcription", dest, 1)
	return err
}

// TranscribeResult contains the outputs of a recognizer run.
type TranscribeResult struct {
	// JSONPath is the recognizer's JSON output (<prefix>.json).
	JSONPath string
	// TextPath is the plain text output (<prefix>.txt).
	TextPath string
}

// Transcribe runs whisper-cli on wav, writing outputs next to prefix. A run
// that exits 0 without producing the JSON file is a failure.
func (s *Service) Transcribe(ctx context.Context, wav, prefix string) (TranscribeResult, error) {
	var result TranscribeResult
	if strings.TrimSpace(wav) == "" || strings.TrimSpace(prefix) == "" {
		return result, services.Wrap(services.ErrValidation, "transcription", "transcribe", "audio path and output prefix are required", nil)
	}
	info, err := os.Stat(wav)
	if err != nil || info.IsDir() {
		return result, services.Wrap(services.ErrNotFound, "transcription", "transcribe", "audio input is missing or unreadable: "+wav, err)
	}

	if _, err := s.runner.Run(ctx, procexec.Command{
		Name:    s.cfg.Binary,
		Args:    s.buildArgs(wav, prefix),
		Timeout: s.cfg.RecognitionTimeout,
		Stage:   "transcription",
	}); err != nil {
		return result, err
	}

	result.JSONPath = prefix + ".json"
	result.TextPath = prefix + ".txt"
	if _, err := os.Stat(result.JSONPath); err != nil {
		return result, services.Wrap(services.ErrExternalTool, "transcription", "transcribe", "recognizer JSON output not found: "+result.JSONPath, err)
	}
	return result, nil
}

// BuildExtractArgs returns the ffmpeg argument vector for audio extraction.
func BuildExtractArgs(source, dest string) []string {
	return []string{
		"-y",
		"-i", source,
		"-ar", SampleRate,
		"-ac", Channels,
		"-f", "wav",
		dest,
	}
}

func (s *Service) buildArgs(wav, prefix string) []string {
	return []string{
		"-m", s.cfg.ModelPath,
		"-f", wav,
		"-of", prefix,
		"-otxt",
		"-oj",
		"-t", strconv.Itoa(s.cfg.Threads),
		"-ng",
		"--no-timestamps",
		"--max-len", MaxLen,
		"--word-thold", strconv.FormatFloat(s.cfg.WordThreshold, 'f', -1, 64),
	}
}
