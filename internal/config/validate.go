package config

import (
	"errors"
	"fmt"
	"slices"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRecognizer(); err != nil {
		return err
	}
	if err := c.validateSubtitles(); err != nil {
		return err
	}
	if err := c.validateCompression(); err != nil {
		return err
	}
	if err := c.validateClips(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validateDispatcher(); err != nil {
		return err
	}
	if err := c.validateWorkspace(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateRecognizer() error {
	if c.Recognizer.ModelPath == "" {
		return errors.New("recognizer.model_path must be set")
	}
	if c.Recognizer.WordThreshold < 0 || c.Recognizer.WordThreshold > 1 {
		return errors.New("recognizer.word_threshold must be between 0 and 1")
	}
	if c.Recognizer.MaxRepetitions < 0 {
		return errors.New("recognizer.max_repetitions must be >= 0")
	}
	return nil
}

func (c *Config) validateSubtitles() error {
	if c.Subtitles.OffsetSeconds < 0 || c.Subtitles.OffsetSeconds > 5 {
		return errors.New("subtitles.offset_seconds must be between 0 and 5")
	}
	return nil
}

func (c *Config) validateCompression() error {
	cmp := c.Compression
	if cmp.EmergencyTriggerGiB <= 0 || cmp.EmergencyRejectGiB <= 0 || cmp.AttachCeilingGiB <= 0 {
		return errors.New("compression thresholds must be positive")
	}
	if cmp.EmergencyTriggerGiB > cmp.EmergencyRejectGiB {
		return errors.New("compression.emergency_trigger_gib must not exceed compression.emergency_reject_gib")
	}
	if cmp.EmergencyRejectGiB > cmp.AttachCeilingGiB {
		return errors.New("compression.emergency_reject_gib must not exceed compression.attach_ceiling_gib")
	}
	if cmp.EmergencyCRF < 0 || cmp.EmergencyCRF > 51 {
		return errors.New("compression.emergency_crf must be between 0 and 51")
	}
	if cmp.MinOutputBytes <= 0 {
		return errors.New("compression.min_output_bytes must be positive")
	}
	return nil
}

func (c *Config) validateClips() error {
	if c.Clips.MinSeconds <= 0 {
		return errors.New("clips.min_seconds must be positive")
	}
	if c.Clips.MaxSeconds < c.Clips.MinSeconds {
		return errors.New("clips.max_seconds must be >= clips.min_seconds")
	}
	if c.Clips.CRF < 0 || c.Clips.CRF > 51 {
		return errors.New("clips.crf must be between 0 and 51")
	}
	if c.Clips.MinOutputBytes <= 0 {
		return errors.New("clips.min_output_bytes must be positive")
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	values := map[string]int{
		"timeouts.probe":         c.Timeouts.Probe,
		"timeouts.audio_extract": c.Timeouts.AudioExtract,
		"timeouts.recognition":   c.Timeouts.Recognition,
		"timeouts.burn":          c.Timeouts.Burn,
		"timeouts.emergency":     c.Timeouts.Emergency,
		"timeouts.clip":          c.Timeouts.Clip,
	}
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func (c *Config) validateDispatcher() error {
	if c.Dispatcher.Workers <= 0 {
		return errors.New("dispatcher.workers must be positive")
	}
	if c.Dispatcher.PollIntervalMS <= 0 {
		return errors.New("dispatcher.poll_interval_ms must be positive")
	}
	if c.Dispatcher.MaxAttempts <= 0 {
		return errors.New("dispatcher.max_attempts must be positive")
	}
	if c.Dispatcher.RetryBackoffSecs < 0 {
		return errors.New("dispatcher.retry_backoff_seconds must be >= 0")
	}
	for name, limit := range c.Dispatcher.QueueLimits {
		if !slices.Contains(QueueNames, name) {
			return fmt.Errorf("dispatcher.queue_limits: unknown queue %q", name)
		}
		if limit <= 0 {
			return fmt.Errorf("dispatcher.queue_limits.%s must be positive", name)
		}
	}
	return nil
}

func (c *Config) validateWorkspace() error {
	if c.Workspace.StaleAfterHours <= 0 {
		return errors.New("workspace.stale_after_hours must be positive")
	}
	if c.Workspace.MinFreeGiB < 0 {
		return errors.New("workspace.min_free_gib must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
