package subtitles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"clipforge/internal/attachments"
	"clipforge/internal/catalog"
	"clipforge/internal/encoding"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/stage"
	"clipforge/internal/textutil"
	"clipforge/internal/workspace"
)

const (
	stageName = "subtitles"
	// SubtitledContentType is the content type of burned videos.
	SubtitledContentType = "video/mp4"
)

// Stage is the subtitles queue handler.
type Stage struct {
	catalog    *catalog.Store
	blobs      *attachments.Store
	workspace  *workspace.Manager
	compositor *Compositor
	ladder     encoding.Ladder
	offset     float64
	logger     *slog.Logger
}

// StageOptions carries the collaborators of the subtitles stage.
type StageOptions struct {
	Catalog    *catalog.Store
	Blobs      *attachments.Store
	Workspace  *workspace.Manager
	Compositor *Compositor
	Ladder     encoding.Ladder
	// OffsetSeconds shifts captions; negative values fall back to the default.
	OffsetSeconds float64
	Logger        *slog.Logger
}

// NewStage constructs the subtitles stage handler.
func NewStage(opts StageOptions) *Stage {
	offset := opts.OffsetSeconds
	if offset < 0 {
		offset = DefaultOffsetSeconds
	}
	return &Stage{
		catalog:    opts.Catalog,
		blobs:      opts.Blobs,
		workspace:  opts.Workspace,
		compositor: opts.Compositor,
		ladder:     opts.Ladder,
		offset:     offset,
		logger:     logging.NewComponentLogger(opts.Logger, "subtitle-stage"),
	}
}

// SubtitledFilename names the burned attachment of a recording.
func SubtitledFilename(title string, recordingID int64) string {
	return fmt.Sprintf("subtitled_%s_%d.mp4", textutil.Parameterize(title), recordingID)
}

// Execute burns the recording's transcript into its video and swaps the
// attachment.
func (s *Stage) Execute(ctx context.Context, job *queue.Job) (stage.Ref, error) {
	stageStart := time.Now()
	if s == nil || s.compositor == nil || s.catalog == nil {
		return stage.Ref{}, services.Wrap(services.ErrConfiguration, stageName, "execute", "Subtitle stage is not configured", nil)
	}
	if job == nil {
		return stage.Ref{}, services.Wrap(services.ErrValidation, stageName, "execute", "Job is nil", nil)
	}
	logger := logging.WithContext(ctx, s.logger)

	rec, err := s.catalog.GetRecording(ctx, job.PayloadID)
	if err != nil {
		return stage.Ref{}, err
	}
	version := rec.VideoVersion

	tr, err := s.catalog.TranscriptForRecording(ctx, rec.ID)
	if errors.Is(err, services.ErrNotFound) {
		return stage.Ref{}, services.Wrap(services.ErrValidation, stageName, "load transcript",
			fmt.Sprintf("Recording %d has no transcript", rec.ID), nil)
	}
	if err != nil {
		return stage.Ref{}, err
	}
	if len(tr.Segments) == 0 {
		return stage.Ref{}, services.Wrap(services.ErrValidation, stageName, "load transcript",
			fmt.Sprintf("Transcript for recording %d has no segments", rec.ID), nil)
	}

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
	srtPath := scope.Path("captions", ".srt")
	if err := WriteSRT(srtPath, tr.Segments, s.offset); err != nil {
		return stage.Ref{}, services.Wrap(services.ErrTransient, stageName, "render captions", "", err)
	}

	burned, err := s.compositor.Burn(ctx, scope, source, srtPath)
	if err != nil {
		return stage.Ref{}, err
	}
	final, err := s.ladder.Finalize(ctx, scope, burned)
	if err != nil {
		return stage.Ref{}, err
	}

	blob, err := s.blobs.Adopt(ctx, final.Path, SubtitledFilename(rec.Title, rec.ID), SubtitledContentType)
	if err != nil {
		return stage.Ref{}, err
	}
	previous, err := s.catalog.ReplaceRecordingVideo(ctx, rec.ID, version, blob)
	if err != nil {
		if delErr := s.blobs.Delete(blob.Key); delErr != nil {
			logging.WarnWithContext(logger, "failed to discard unattached video", "attachment_orphaned",
				logging.String("key", blob.Key),
				logging.Error(delErr),
				logging.String(logging.FieldImpact, "orphaned blob occupies attachment storage"),
			)
		}
		return stage.Ref{}, err
	}
	if !previous.IsZero() && previous.Key != blob.Key {
		if err := s.blobs.Delete(previous.Key); err != nil {
			logging.WarnWithContext(logger, "failed to delete replaced video", "attachment_orphaned",
				logging.String("key", previous.Key),
				logging.Error(err),
				logging.String(logging.FieldImpact, "orphaned blob occupies attachment storage"),
			)
		}
	}

	logger.Info("subtitled video attached",
		logging.Int("segments", len(tr.Segments)),
		logging.Int64("primary_bytes", final.PrimaryBytes),
		logging.Int64("final_bytes", final.Size),
		logging.Bool("emergency_pass", final.Emergency),
		logging.String("filename", blob.Filename),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	return stage.Ref{Kind: "recording", ID: rec.ID}, nil
}

// HealthCheck reports readiness of the subtitles stage.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s == nil || s.compositor == nil || s.catalog == nil || s.blobs == nil || s.workspace == nil {
		return stage.Unhealthy(stageName, "stage not configured")
	}
	if s.compositor.Runner == nil {
		return stage.Unhealthy(stageName, "process runner unavailable")
	}
	return stage.Healthy(stageName)
}
