package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeRecognizer(); err != nil {
		return err
	}
	c.normalizeTranscoder()
	c.normalizeClips()
	c.normalizeDispatcher()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if strings.TrimSpace(c.Paths.AttachmentsDir) == "" {
		c.Paths.AttachmentsDir = defaultAttachmentsDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}

	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.AttachmentsDir, err = expandPath(c.Paths.AttachmentsDir); err != nil {
		return fmt.Errorf("paths.attachments_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.OpsBind = strings.TrimSpace(c.Paths.OpsBind)
	return nil
}

func (c *Config) normalizeRecognizer() error {
	c.Recognizer.Binary = strings.TrimSpace(c.Recognizer.Binary)
	if c.Recognizer.Binary == "" {
		c.Recognizer.Binary = defaultRecognizerBinary
	}
	if c.Recognizer.Threads <= 0 {
		c.Recognizer.Threads = defaultRecognizerThreads
	}
	var err error
	if c.Recognizer.ModelPath, err = expandPath(strings.TrimSpace(c.Recognizer.ModelPath)); err != nil {
		return fmt.Errorf("recognizer.model_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeTranscoder() {
	c.Transcoder.FFmpegBinary = strings.TrimSpace(c.Transcoder.FFmpegBinary)
	if c.Transcoder.FFmpegBinary == "" {
		c.Transcoder.FFmpegBinary = defaultFFmpegBinary
	}
	c.Transcoder.FFprobeBinary = strings.TrimSpace(c.Transcoder.FFprobeBinary)
	if c.Transcoder.FFprobeBinary == "" {
		c.Transcoder.FFprobeBinary = defaultFFprobeBinary
	}
	c.Transcoder.Preset = strings.ToLower(strings.TrimSpace(c.Transcoder.Preset))
	if c.Transcoder.Preset == "" {
		c.Transcoder.Preset = defaultPreset
	}
	c.Transcoder.SubtitleStyle = strings.TrimSpace(c.Transcoder.SubtitleStyle)
	if c.Transcoder.SubtitleStyle == "" {
		c.Transcoder.SubtitleStyle = defaultSubtitleStyle
	}
	c.Transcoder.AudioBitrate = strings.TrimSpace(c.Transcoder.AudioBitrate)
	if c.Transcoder.AudioBitrate == "" {
		c.Transcoder.AudioBitrate = defaultAudioBitrate
	}
	if c.Transcoder.Threads <= 0 {
		c.Transcoder.Threads = defaultThreads
	}
}

func (c *Config) normalizeClips() {
	c.Clips.Preset = strings.ToLower(strings.TrimSpace(c.Clips.Preset))
	if c.Clips.Preset == "" {
		c.Clips.Preset = defaultClipPreset
	}
}

func (c *Config) normalizeDispatcher() {
	if c.Dispatcher.QueueLimits == nil {
		c.Dispatcher.QueueLimits = make(map[string]int, len(QueueNames))
	}
	normalized := make(map[string]int, len(c.Dispatcher.QueueLimits))
	for name, limit := range c.Dispatcher.QueueLimits {
		normalized[strings.ToLower(strings.TrimSpace(name))] = limit
	}
	for _, name := range QueueNames {
		if _, ok := normalized[name]; !ok {
			normalized[name] = defaultQueueLimit
		}
	}
	c.Dispatcher.QueueLimits = normalized
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
