package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"clipforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.AttachmentsDir = filepath.Join(base, "attachments")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.OpsBind = "127.0.0.1:0"
	cfgVal.Recognizer.ModelPath = filepath.Join(base, "models", "ggml-test.bin")
	cfgVal.Workspace.MinFreeGiB = 0
	cfgVal.Dispatcher.PollIntervalMS = 20
	cfgVal.Dispatcher.RetryBackoffSecs = 0
	cfgVal.Logging.Level = "error"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithQueueLimit overrides the concurrency cap of one queue.
func WithQueueLimit(queue string, limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Dispatcher.QueueLimits[queue] = limit
	}
}

// WithMaxAttempts overrides the dispatcher retry budget.
func WithMaxAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Dispatcher.MaxAttempts = n
	}
}

// WithStubbedBinaries writes POSIX shell stubs for ffmpeg, ffprobe and
// whisper-cli, points the config at them and prepends them to PATH. A model
// file is created so dependency checks pass.
//
// Stub behavior is steered through environment variables read at run time:
//
//	CLIPFORGE_STUB_LOG            append each invocation ("name args...") to this file
//	CLIPFORGE_STUB_FFMPEG_BYTES   bytes written to ffmpeg's output path (default 2000000)
//	CLIPFORGE_STUB_FFMPEG_EXIT    exit status of ffmpeg (default 0)
//	CLIPFORGE_STUB_DURATION       duration reported by ffprobe (default 600.0)
//	CLIPFORGE_STUB_TRANSCRIPT     file copied to whisper-cli's <prefix>.json
//	CLIPFORGE_STUB_WHISPER_EXIT   exit status of whisper-cli (default 0)
func WithStubbedBinaries() ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		stubs := map[string]string{
			"ffmpeg":      ffmpegStub,
			"ffprobe":     ffprobeStub,
			"whisper-cli": whisperStub,
		}
		for name, script := range stubs {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.cfg.Transcoder.FFmpegBinary = filepath.Join(binDir, "ffmpeg")
		b.cfg.Transcoder.FFprobeBinary = filepath.Join(binDir, "ffprobe")
		b.cfg.Recognizer.Binary = filepath.Join(binDir, "whisper-cli")
		WriteFile(b.t, b.cfg.Recognizer.ModelPath, 16)

		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

const stubLogPrelude = `if [ -n "$CLIPFORGE_STUB_LOG" ]; then
  printf '%s' "$(basename "$0")" >> "$CLIPFORGE_STUB_LOG"
  for arg in "$@"; do printf ' %s' "$arg" >> "$CLIPFORGE_STUB_LOG"; done
  printf '\n' >> "$CLIPFORGE_STUB_LOG"
fi
`

const ffmpegStub = "#!/bin/sh\n" + stubLogPrelude + `code="${CLIPFORGE_STUB_FFMPEG_EXIT:-0}"
if [ "$code" != "0" ]; then
  echo "stub ffmpeg failure" >&2
  exit "$code"
fi
for last; do :; done
head -c "${CLIPFORGE_STUB_FFMPEG_BYTES:-2000000}" /dev/zero > "$last"
exit 0
`

const ffprobeStub = "#!/bin/sh\n" + stubLogPrelude + `duration="${CLIPFORGE_STUB_DURATION:-600.0}"
cat <<EOF
{"streams":[{"index":0,"codec_name":"h264","codec_type":"video","width":1920,"height":1080,"duration":"$duration"},{"index":1,"codec_name":"aac","codec_type":"audio","channels":2,"duration":"$duration"}],"format":{"filename":"stub","nb_streams":2,"duration":"$duration","size":"2000000","bit_rate":"8000"}}
EOF
exit 0
`

const whisperStub = "#!/bin/sh\n" + stubLogPrelude + `code="${CLIPFORGE_STUB_WHISPER_EXIT:-0}"
if [ "$code" != "0" ]; then
  echo "stub whisper failure" >&2
  exit "$code"
fi
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-of" ]; then
    shift
    out="$1"
  fi
  shift
done
if [ -z "$out" ]; then
  echo "missing -of" >&2
  exit 2
fi
if [ -n "$CLIPFORGE_STUB_TRANSCRIPT" ]; then
  cp "$CLIPFORGE_STUB_TRANSCRIPT" "$out.json"
else
  cat > "$out.json" <<'EOF'
{"transcription":[{"timestamps":{"from":"00:00:00,000","to":"00:00:02,000"},"text":" Hello world"},{"timestamps":{"from":"00:00:02,000","to":"00:00:04,500"},"text":" Second caption"}]}
EOF
fi
echo "Hello world" > "$out.txt"
exit 0
`
