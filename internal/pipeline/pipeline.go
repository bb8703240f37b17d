// Package pipeline assembles the stores, external tool adapters and queue
// handlers of a clipforge instance from configuration.
//
// Both the daemon and the CLI open a Pipeline. The CLI uses it to register
// recordings and clip requests, which only enqueue work; the daemon
// additionally starts the dispatcher that drains the queues.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"clipforge/internal/attachments"
	"clipforge/internal/catalog"
	"clipforge/internal/clips"
	"clipforge/internal/config"
	"clipforge/internal/database"
	"clipforge/internal/dispatcher"
	"clipforge/internal/encoding"
	"clipforge/internal/ingest"
	"clipforge/internal/logging"
	"clipforge/internal/media/ffprobe"
	"clipforge/internal/procexec"
	"clipforge/internal/queue"
	"clipforge/internal/services/whispercpp"
	"clipforge/internal/stage"
	"clipforge/internal/subtitles"
	"clipforge/internal/transcript"
	"clipforge/internal/transcription"
	"clipforge/internal/workspace"
)

// Pipeline holds every wired component of a clipforge instance.
type Pipeline struct {
	Config *config.Config
	DB     *sql.DB

	Jobs       *queue.Store
	Catalog    *catalog.Store
	Blobs      *attachments.Store
	Workspace  *workspace.Manager
	Prober     *ffprobe.Prober
	Recognizer *whispercpp.Service
	Dispatcher *dispatcher.Dispatcher

	Ingest        *ingest.Stage
	Transcription *transcription.Stage
	Subtitles     *subtitles.Stage
	Clips         *clips.Service
}

// Open builds the pipeline. Metrics are registered with reg when non-nil.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, cfg.DatabasePath())
	if err != nil {
		return nil, err
	}
	blobs, err := attachments.NewStore(cfg.Paths.AttachmentsDir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open attachment store: %w", err)
	}
	ws, err := workspace.NewManager(cfg.Paths.WorkDir, config.GiB(cfg.Workspace.MinFreeGiB), logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open workspace: %w", err)
	}

	runner := procexec.NewRunner(logger)
	p := &Pipeline{
		Config:    cfg,
		DB:        db,
		Jobs:      queue.NewStore(db),
		Catalog:   catalog.NewStore(db),
		Blobs:     blobs,
		Workspace: ws,
		Prober: &ffprobe.Prober{
			Binary:  cfg.Transcoder.FFprobeBinary,
			Runner:  runner,
			Timeout: config.Timeout(cfg.Timeouts.Probe),
		},
		Recognizer: whispercpp.NewService(whispercpp.Config{
			Binary:             cfg.Recognizer.Binary,
			ModelPath:          cfg.Recognizer.ModelPath,
			Threads:            cfg.Recognizer.Threads,
			WordThreshold:      cfg.Recognizer.WordThreshold,
			ExtractTimeout:     config.Timeout(cfg.Timeouts.AudioExtract),
			RecognitionTimeout: config.Timeout(cfg.Timeouts.Recognition),
		}, cfg.Transcoder.FFmpegBinary, runner),
	}

	p.Dispatcher = dispatcher.New(p.Jobs, dispatcher.Options{
		Workers:      cfg.Dispatcher.Workers,
		PollInterval: cfg.PollInterval(),
		MaxAttempts:  cfg.Dispatcher.MaxAttempts,
		RetryBackoff: cfg.RetryBackoff(),
		Metrics:      dispatcher.NewMetrics(reg),
		Logger:       logger,
	})

	p.Ingest = ingest.NewStage(ingest.Options{
		Catalog:  p.Catalog,
		Blobs:    blobs,
		Prober:   p.Prober,
		Enqueuer: p.Dispatcher,
		Logger:   logger,
	})
	p.Transcription = transcription.NewStage(transcription.Options{
		Catalog:    p.Catalog,
		Blobs:      blobs,
		Workspace:  ws,
		Recognizer: p.Recognizer,
		Enqueuer:   p.Dispatcher,
		Parse:      transcript.Options{MaxRepetitions: cfg.Recognizer.MaxRepetitions},
		Logger:     logger,
	})
	p.Subtitles = subtitles.NewStage(subtitles.StageOptions{
		Catalog:   p.Catalog,
		Blobs:     blobs,
		Workspace: ws,
		Compositor: &subtitles.Compositor{
			Runner: runner,
			FFmpeg: cfg.Transcoder.FFmpegBinary,
			Settings: encoding.BurnSettings{
				Preset:       cfg.Transcoder.Preset,
				Threads:      cfg.Transcoder.Threads,
				Style:        cfg.Transcoder.SubtitleStyle,
				AudioBitrate: cfg.Transcoder.AudioBitrate,
			},
			Timeout: config.Timeout(cfg.Timeouts.Burn),
			Logger:  logger,
		},
		Ladder: encoding.Ladder{
			Runner:           runner,
			FFmpeg:           cfg.Transcoder.FFmpegBinary,
			Thresholds:       Thresholds(cfg),
			EmergencyTimeout: config.Timeout(cfg.Timeouts.Emergency),
			Logger:           logger,
		},
		OffsetSeconds: cfg.Subtitles.OffsetSeconds,
		Logger:        logger,
	})
	p.Clips = clips.NewService(clips.Options{
		Catalog:   p.Catalog,
		Blobs:     blobs,
		Workspace: ws,
		Runner:    runner,
		Prober:    p.Prober,
		Enqueuer:  p.Dispatcher,
		FFmpeg:    cfg.Transcoder.FFmpegBinary,
		Settings: encoding.ClipSettings{
			CRF:    cfg.Clips.CRF,
			Preset: cfg.Clips.Preset,
		},
		Limits: clips.Limits{
			MinSeconds: cfg.Clips.MinSeconds,
			MaxSeconds: cfg.Clips.MaxSeconds,
		},
		Timeout:        config.Timeout(cfg.Timeouts.Clip),
		MinOutputBytes: cfg.Clips.MinOutputBytes,
		MaxAttempts:    cfg.Dispatcher.MaxAttempts,
		Logger:         logger,
	})

	handlers := []struct {
		queue   string
		handler stage.Handler
	}{
		{stage.QueueIngest, p.Ingest},
		{stage.QueueTranscription, p.Transcription},
		{stage.QueueSubtitles, p.Subtitles},
		{stage.QueueClips, p.Clips},
	}
	for _, h := range handlers {
		if err := p.Dispatcher.Register(h.queue, h.handler, cfg.QueueLimit(h.queue)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("register %s handler: %w", h.queue, err)
		}
	}
	return p, nil
}

// Thresholds converts the [compression] section into byte thresholds.
func Thresholds(cfg *config.Config) encoding.Thresholds {
	return encoding.Thresholds{
		EmergencyTrigger: config.GiB(cfg.Compression.EmergencyTriggerGiB),
		EmergencyReject:  config.GiB(cfg.Compression.EmergencyRejectGiB),
		AttachCeiling:    config.GiB(cfg.Compression.AttachCeilingGiB),
		MinOutputBytes:   cfg.Compression.MinOutputBytes,
		EmergencyCRF:     cfg.Compression.EmergencyCRF,
	}
}

// Close stops the dispatcher if it is running and releases the database.
func (p *Pipeline) Close() error {
	if p == nil {
		return nil
	}
	if p.Dispatcher != nil {
		p.Dispatcher.Stop()
	}
	if p.DB != nil {
		return p.DB.Close()
	}
	return nil
}
