package whispercpp

import "time"

// Config captures runtime settings for whisper.cpp operations.
type Config struct {
	// Binary is the whisper-cli executable.
	Binary string
	// ModelPath is the ggml model file passed with -m.
	ModelPath string
	// Threads is the CPU thread count passed with -t.
	Threads int
	// WordThreshold lowers whisper.cpp's word confidence cut-off.
	WordThreshold float64
	// ExtractTimeout bounds audio extraction.
	ExtractTimeout time.Duration
	// RecognitionTimeout bounds a single recognizer run.
	RecognitionTimeout time.Duration
}

// whisper.cpp and ffmpeg constants.
const (
	DefaultBinary  = "whisper-cli"
	DefaultThreads = 4
	SampleRate     = "16000"
	Channels       = "1"
	// MaxLen 0 disables segment length limits that trigger repetition loops.
	MaxLen        = "0"
	FFmpegCommand = "ffmpeg"
)
