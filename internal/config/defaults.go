package config

const (
	defaultConfigPath     = "~/.config/clipforge/config.toml"
	defaultDataDir        = "~/.local/share/clipforge"
	defaultWorkDir        = "~/.local/share/clipforge/work"
	defaultAttachmentsDir = "~/.local/share/clipforge/attachments"
	defaultLogDir         = "~/.local/share/clipforge/logs"
	defaultOpsBind        = "127.0.0.1:7491"

	defaultFFmpegBinary  = "ffmpeg"
	defaultFFprobeBinary = "ffprobe"
	defaultThreads       = 12
	defaultPreset        = "medium"
	defaultSubtitleStyle = "FontName=Arial,FontSize=24,PrimaryColour=&Hffffff,OutlineColour=&H000000,Outline=2"
	defaultAudioBitrate  = "96k"

	defaultRecognizerBinary   = "whisper-cli"
	defaultRecognizerModel    = "~/.local/share/clipforge/models/ggml-large-v2.bin"
	defaultRecognizerThreads  = 4
	defaultWordThreshold      = 0.01
	defaultSubtitleOffset     = 0.2
	defaultEmergencyTrigger   = 4.5
	defaultEmergencyReject    = 4.8
	defaultAttachCeiling      = 4.9
	defaultEmergencyCRF       = 32
	defaultMinOutputBytes     = 1_000_000
	defaultClipMinSeconds     = 1
	defaultClipMaxSeconds     = 300
	defaultClipCRF            = 23
	defaultClipPreset         = "fast"
	defaultClipMinOutputBytes = 10_000

	defaultProbeTimeout        = 120
	defaultAudioExtractTimeout = 2 * 60 * 60
	defaultRecognitionTimeout  = 3 * 24 * 60 * 60
	defaultBurnTimeout         = 10 * 60 * 60
	defaultEmergencyTimeout    = 10 * 60 * 60
	defaultClipTimeout         = 5 * 60

	defaultWorkers           = 4
	defaultPollIntervalMS    = 2000
	defaultMaxAttempts       = 3
	defaultRetryBackoffSecs  = 30
	defaultQueueLimit        = 1
	defaultFinishedRetention = 24 * 7

	defaultStaleAfterHours = 48
	defaultMinFreeGiB      = 20

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// QueueNames lists the pipeline queues in their canonical order.
var QueueNames = []string{"ingest", "transcription", "subtitles", "clips"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	limits := make(map[string]int, len(QueueNames))
	for _, name := range QueueNames {
		limits[name] = defaultQueueLimit
	}
	return Config{
		Paths: Paths{
			DataDir:        defaultDataDir,
			WorkDir:        defaultWorkDir,
			AttachmentsDir: defaultAttachmentsDir,
			LogDir:         defaultLogDir,
			OpsBind:        defaultOpsBind,
		},
		Transcoder: Transcoder{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			Threads:       defaultThreads,
			Preset:        defaultPreset,
			SubtitleStyle: defaultSubtitleStyle,
			AudioBitrate:  defaultAudioBitrate,
		},
		Recognizer: Recognizer{
			Binary:        defaultRecognizerBinary,
			ModelPath:     defaultRecognizerModel,
			Threads:       defaultRecognizerThreads,
			WordThreshold: defaultWordThreshold,
		},
		Subtitles: Subtitles{
			OffsetSeconds: defaultSubtitleOffset,
		},
		Compression: Compression{
			EmergencyTriggerGiB: defaultEmergencyTrigger,
			EmergencyRejectGiB:  defaultEmergencyReject,
			AttachCeilingGiB:    defaultAttachCeiling,
			EmergencyCRF:        defaultEmergencyCRF,
			MinOutputBytes:      defaultMinOutputBytes,
		},
		Clips: Clips{
			MinSeconds:     defaultClipMinSeconds,
			MaxSeconds:     defaultClipMaxSeconds,
			CRF:            defaultClipCRF,
			Preset:         defaultClipPreset,
			MinOutputBytes: defaultClipMinOutputBytes,
		},
		Timeouts: Timeouts{
			Probe:        defaultProbeTimeout,
			AudioExtract: defaultAudioExtractTimeout,
			Recognition:  defaultRecognitionTimeout,
			Burn:         defaultBurnTimeout,
			Emergency:    defaultEmergencyTimeout,
			Clip:         defaultClipTimeout,
		},
		Dispatcher: Dispatcher{
			Workers:           defaultWorkers,
			PollIntervalMS:    defaultPollIntervalMS,
			MaxAttempts:       defaultMaxAttempts,
			RetryBackoffSecs:  defaultRetryBackoffSecs,
			QueueLimits:       limits,
			FinishedRetention: defaultFinishedRetention,
		},
		Workspace: Workspace{
			StaleAfterHours: defaultStaleAfterHours,
			MinFreeGiB:      defaultMinFreeGiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
