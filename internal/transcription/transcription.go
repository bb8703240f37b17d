// Package transcription runs speech recognition for a recording, persists
// the resulting segments and chains the subtitle burn.
//
// Subtitles are only queued after the transcript transaction committed, so
// the burn never sees a partial segment set.
package transcription

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"clipforge/internal/attachments"
	"clipforge/internal/catalog"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/services/whispercpp"
	"clipforge/internal/stage"
	"clipforge/internal/transcript"
	"clipforge/internal/workspace"
)

const stageName = "transcription"

// Options carries the collaborators of the transcription stage.
type Options struct {
	Catalog    *catalog.Store
	Blobs      *attachments.Store
	Workspace  *workspace.Manager
	Recognizer *whispercpp.Service
	Enqueuer   stage.Enqueuer
	Parse      transcript.Options
	Logger     *slog.Logger
}

// Stage is the transcription queue handler.
type Stage struct {
	catalog    *catalog.Store
	blobs      *attachments.Store
	workspace  *workspace.Manager
	recognizer *whispercpp.Service
	enqueuer   stage.Enqueuer
	parse      transcript.Options
	logger     *slog.Logger
}

// NewStage constructs the transcription stage.
func NewStage(opts Options) *Stage {
	return &Stage{
		catalog:    opts.Catalog,
		blobs:      opts.Blobs,
		workspace:  opts.Workspace,
		recognizer: opts.Recognizer,
		enqueuer:   opts.Enqueuer,
		parse:      opts.Parse,
		logger:     logging.NewComponentLogger(opts.Logger, "transcription"),
	}
}

// Execute transcribes the recording named by the job payload.
func (s *Stage) Execute(ctx context.Context, job *queue.Job) (stage.Ref, error) {
	started := time.Now()
	if s == nil || s.recognizer == nil {
		return stage.Ref{}, services.Wrap(services.ErrConfiguration, stageName, "execute", "Transcription stage is not configured", nil)
	}
	if job == nil {
		return stage.Ref{}, services.Wrap(services.ErrValidation, stageName, "execute", "Job is nil", nil)
	}
	rec, err := s.catalog.GetRecording(ctx, job.PayloadID)
	if err != nil {
		return stage.Ref{}, err
	}
	logger := logging.WithContext(ctx, s.logger)

	scope, err := s.workspace.Open(stageName, rec.ID)
	if err != nil {
		return stage.Ref{}, err
	}
	defer func() {
		_ = scope.Close()
	}()

	ext := filepath.Ext(rec.Video.Filename)
	if ext == "" {
		ext = ".mp4"
	}
	source := scope.Path("source", ext)
	if _, err := s.blobs.Fetch(ctx, rec.Video.Key, source); err != nil {
		return stage.Ref{}, err
	}
	wav := scope.Path("audio", ".wav")
	if err := s.recognizer.ExtractAudio(ctx, source, wav); err != nil {
		return stage.Ref{}, err
	}

	prefix := scope.Path("transcript", "")
	scope.Track(prefix + ".json")
	scope.Track(prefix + ".txt")
	result, err := s.recognizer.Transcribe(ctx, wav, prefix)
	if err != nil {
		return stage.Ref{}, err
	}
	payload, err := transcript.ParseFile(result.JSONPath, s.parse)
	if err != nil {
		return stage.Ref{}, err
	}
	tr, err := s.catalog.ReplaceTranscript(ctx, rec.ID, payload)
	if err != nil {
		return stage.Ref{}, err
	}

	if len(payload.Segments) == 0 {
		logging.WarnWithContext(logger, "recognizer produced no speech segments", "transcript_empty",
			logging.Int64("transcript_id", tr.ID),
			logging.String(logging.FieldErrorHint, "check the recording has an audio track with speech"),
			logging.String(logging.FieldImpact, "subtitle burn skipped"),
		)
	} else if _, err := s.enqueuer.Enqueue(ctx, stage.QueueSubtitles, rec.ID); err != nil {
		return stage.Ref{}, err
	}

	logger.Info("transcript stored",
		logging.Int64("transcript_id", tr.ID),
		logging.String("schema", string(payload.Schema)),
		logging.Int("segments", len(payload.Segments)),
		logging.Duration("stage_duration", time.Since(started)),
	)
	return stage.Ref{Kind: "transcript", ID: tr.ID}, nil
}

// HealthCheck reports readiness of the transcription stage.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s == nil || s.recognizer == nil || s.catalog == nil || s.blobs == nil || s.workspace == nil {
		return stage.Unhealthy(stageName, "stage not configured")
	}
	if s.recognizer.Model() == "" {
		return stage.Unhealthy(stageName, "recognizer model not configured")
	}
	return stage.Healthy(stageName)
}
