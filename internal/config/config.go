package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains storage locations and the operations bind address.
type Paths struct {
	DataDir        string `toml:"data_dir"`
	WorkDir        string `toml:"work_dir"`
	AttachmentsDir string `toml:"attachments_dir"`
	LogDir         string `toml:"log_dir"`
	OpsBind        string `toml:"ops_bind"`
}

// Transcoder configures the ffmpeg/ffprobe pair used for every video operation.
type Transcoder struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	Threads       int    `toml:"threads"`
	Preset        string `toml:"preset"`
	SubtitleStyle string `toml:"subtitle_style"`
	AudioBitrate  string `toml:"audio_bitrate"`
}

// Recognizer configures the whisper.cpp speech recognition binary.
type Recognizer struct {
	Binary         string  `toml:"binary"`
	ModelPath      string  `toml:"model_path"`
	Threads        int     `toml:"threads"`
	WordThreshold  float64 `toml:"word_threshold"`
	MaxRepetitions int     `toml:"max_repetitions"`
}

// Subtitles configures caption rendering.
type Subtitles struct {
	// OffsetSeconds shifts every caption forward to compensate for display lag.
	OffsetSeconds float64 `toml:"offset_seconds"`
}

// Compression configures the size ceilings applied after a subtitle burn.
type Compression struct {
	EmergencyTriggerGiB float64 `toml:"emergency_trigger_gib"`
	EmergencyRejectGiB  float64 `toml:"emergency_reject_gib"`
	AttachCeilingGiB    float64 `toml:"attach_ceiling_gib"`
	EmergencyCRF        int     `toml:"emergency_crf"`
	MinOutputBytes      int64   `toml:"min_output_bytes"`
}

// Clips configures clip validation bounds and encoding.
type Clips struct {
	MinSeconds     float64 `toml:"min_seconds"`
	MaxSeconds     float64 `toml:"max_seconds"`
	CRF            int     `toml:"crf"`
	Preset         string  `toml:"preset"`
	MinOutputBytes int64   `toml:"min_output_bytes"`
}

// Timeouts holds the wall-clock ceiling, in seconds, for each external process.
type Timeouts struct {
	Probe        int `toml:"probe"`
	AudioExtract int `toml:"audio_extract"`
	Recognition  int `toml:"recognition"`
	Burn         int `toml:"burn"`
	Emergency    int `toml:"emergency"`
	Clip         int `toml:"clip"`
}

// Dispatcher configures the worker pool and the per-queue retry policy.
type Dispatcher struct {
	Workers           int            `toml:"workers"`
	PollIntervalMS    int            `toml:"poll_interval_ms"`
	MaxAttempts       int            `toml:"max_attempts"`
	RetryBackoffSecs  int            `toml:"retry_backoff_seconds"`
	QueueLimits       map[string]int `toml:"queue_limits"`
	FinishedRetention int            `toml:"finished_retention_hours"`
}

// Workspace configures the scratch area used for intermediate files.
type Workspace struct {
	StaleAfterHours int     `toml:"stale_after_hours"`
	MinFreeGiB      float64 `toml:"min_free_gib"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for clipforge.
//
// Configuration sections by subsystem:
//   - Paths: database, attachment store, scratch and log locations
//   - Transcoder / Recognizer: external binaries and their tuning
//   - Subtitles / Compression: caption offset and size ceilings for burn-in
//   - Clips: clip bounds and encoder settings
//   - Timeouts: per-process wall-clock ceilings
//   - Dispatcher: worker pool, queue limits and retry budget
//   - Workspace: stale scratch cleanup and free space warnings
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Transcoder  Transcoder  `toml:"transcoder"`
	Recognizer  Recognizer  `toml:"recognizer"`
	Subtitles   Subtitles   `toml:"subtitles"`
	Compression Compression `toml:"compression"`
	Clips       Clips       `toml:"clips"`
	Timeouts    Timeouts    `toml:"timeouts"`
	Dispatcher  Dispatcher  `toml:"dispatcher"`
	Workspace   Workspace   `toml:"workspace"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("clipforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and CLI operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.WorkDir, c.Paths.AttachmentsDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "clipforge.db")
}

// LockPath returns the daemon lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "clipforge.lock")
}

// QueueLimit returns the concurrency cap for the named queue.
func (c *Config) QueueLimit(queue string) int {
	if limit, ok := c.Dispatcher.QueueLimits[queue]; ok && limit > 0 {
		return limit
	}
	return defaultQueueLimit
}

// PollInterval returns the idle wait between queue polls.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Dispatcher.PollIntervalMS) * time.Millisecond
}

// RetryBackoff returns the delay applied before a failed job becomes claimable again.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Dispatcher.RetryBackoffSecs) * time.Second
}

// StaleAfter returns the age after which leftover scratch files are removed.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Workspace.StaleAfterHours) * time.Hour
}

// Timeout converts a seconds value from the [timeouts] section into a duration.
func Timeout(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// GiB converts a gibibyte quantity into bytes.
func GiB(value float64) int64 {
	return int64(value * float64(1<<30))
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
