// Package ingest registers uploaded recordings and runs the first pipeline
// stage: probing the video and chaining transcription.
package ingest

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"clipforge/internal/attachments"
	"clipforge/internal/catalog"
	"clipforge/internal/logging"
	"clipforge/internal/media/ffprobe"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/stage"
	"clipforge/internal/textutil"
)

const stageName = "ingest"

// DefaultContentType is assumed for uploads without an explicit type.
const DefaultContentType = "video/mp4"

// Options carries the collaborators of the ingest stage.
type Options struct {
	Catalog  *catalog.Store
	Blobs    *attachments.Store
	Prober   *ffprobe.Prober
	Enqueuer stage.Enqueuer
	Logger   *slog.Logger
}

// Stage adds recordings and serves the ingest queue.
type Stage struct {
	catalog  *catalog.Store
	blobs    *attachments.Store
	prober   *ffprobe.Prober
	enqueuer stage.Enqueuer
	logger   *slog.Logger
}

// NewStage constructs the ingest stage.
func NewStage(opts Options) *Stage {
	return &Stage{
		catalog:  opts.Catalog,
		blobs:    opts.Blobs,
		prober:   opts.Prober,
		enqueuer: opts.Enqueuer,
		logger:   logging.NewComponentLogger(opts.Logger, "ingest"),
	}
}

// AddRequest describes an upload to register.
type AddRequest struct {
	Path        string
	Title       string
	GameName    string
	ContentType string
}

// Add copies the upload into the attachment store, creates the recording and
// queues its ingest job. The upload file itself is left in place.
func (s *Stage) Add(ctx context.Context, req AddRequest) (*catalog.Recording, *queue.Job, error) {
	path := strings.TrimSpace(req.Path)
	if path == "" {
		return nil, nil, services.Wrap(services.ErrValidation, stageName, "add", "video path is required", nil)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	blob, err := s.blobs.Put(ctx, path, textutil.SanitizeFileName(filepath.Base(path)), contentType)
	if err != nil {
		return nil, nil, err
	}
	rec, err := s.catalog.CreateRecording(ctx, catalog.NewRecording{
		Title:    title,
		GameName: strings.TrimSpace(req.GameName),
		Video:    blob,
	})
	if err != nil {
		_ = s.blobs.Delete(blob.Key)
		return nil, nil, err
	}
	job, err := s.enqueuer.Enqueue(ctx, stage.QueueIngest, rec.ID)
	if err != nil {
		return rec, nil, err
	}
	logging.WithContext(ctx, s.logger).Info("recording added",
		logging.Int64("recording_id", rec.ID),
		logging.String("title", rec.Title),
		logging.Int64("size_bytes", blob.Size),
		logging.Int64(logging.FieldJobID, job.ID),
	)
	return rec, job, nil
}

// Execute probes the recording's duration when unknown and queues
// transcription.
func (s *Stage) Execute(ctx context.Context, job *queue.Job) (stage.Ref, error) {
	if job == nil {
		return stage.Ref{}, services.Wrap(services.ErrValidation, stageName, "execute", "Job is nil", nil)
	}
	rec, err := s.catalog.GetRecording(ctx, job.PayloadID)
	if err != nil {
		return stage.Ref{}, err
	}
	logger := logging.WithContext(ctx, s.logger)

	if rec.DurationSeconds <= 0 {
		if !s.blobs.Exists(rec.Video.Key) {
			return stage.Ref{}, services.Wrap(services.ErrNotFound, stageName, "probe", "recording video is missing", nil)
		}
		duration, err := s.prober.Duration(ctx, s.blobs.Path(rec.Video.Key))
		if err != nil {
			return stage.Ref{}, err
		}
		if err := s.catalog.SetRecordingDuration(ctx, rec.ID, duration); err != nil {
			return stage.Ref{}, err
		}
		logger.Info("recording probed", logging.Float64("duration_seconds", duration))
	}

	next, err := s.enqueuer.Enqueue(ctx, stage.QueueTranscription, rec.ID)
	if err != nil {
		return stage.Ref{}, err
	}
	logger.Debug("transcription queued", logging.Int64("next_job_id", next.ID))
	return stage.Ref{Kind: "recording", ID: rec.ID}, nil
}

// HealthCheck reports readiness of the ingest stage.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s == nil || s.catalog == nil || s.blobs == nil || s.prober == nil || s.enqueuer == nil {
		return stage.Unhealthy(stageName, "stage not configured")
	}
	return stage.Healthy(stageName)
}
