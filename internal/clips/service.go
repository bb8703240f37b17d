package clips

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
	"clipforge/internal/media/ffprobe"
	"clipforge/internal/procexec"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/stage"
	"clipforge/internal/textutil"
	"clipforge/internal/workspace"
)

// ContentType is the content type of extracted clips.
const ContentType = "video/mp4"

// DefaultMinOutputBytes rejects clip outputs too small to hold video.
const DefaultMinOutputBytes int64 = 10_000

// Options carries the collaborators of the clip service.
type Options struct {
	Catalog   *catalog.Store
	Blobs     *attachments.Store
	Workspace *workspace.Manager
	Runner    procexec.Runner
	Prober    *ffprobe.Prober
	Enqueuer  stage.Enqueuer
	FFmpeg    string
	Settings  encoding.ClipSettings
	Limits    Limits
	Timeout   time.Duration
	// MinOutputBytes defaults to DefaultMinOutputBytes.
	MinOutputBytes int64
	// MaxAttempts lets Execute tell a final failure from a retryable one.
	MaxAttempts int
	Logger      *slog.Logger
}

// Service accepts clip requests and serves the clips queue.
type Service struct {
	catalog     *catalog.Store
	blobs       *attachments.Store
	workspace   *workspace.Manager
	runner      procexec.Runner
	prober      *ffprobe.Prober
	enqueuer    stage.Enqueuer
	ffmpeg      string
	settings    encoding.ClipSettings
	limits      Limits
	timeout     time.Duration
	minOutput   int64
	maxAttempts int
	logger      *slog.Logger
}

// NewService constructs a clip service.
func NewService(opts Options) *Service {
	limits := opts.Limits
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}
	minOutput := opts.MinOutputBytes
	if minOutput <= 0 {
		minOutput = DefaultMinOutputBytes
	}
	ffmpeg := opts.FFmpeg
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	return &Service{
		catalog:     opts.Catalog,
		blobs:       opts.Blobs,
		workspace:   opts.Workspace,
		runner:      opts.Runner,
		prober:      opts.Prober,
		enqueuer:    opts.Enqueuer,
		ffmpeg:      ffmpeg,
		settings:    opts.Settings,
		limits:      limits,
		timeout:     opts.Timeout,
		minOutput:   minOutput,
		maxAttempts: opts.MaxAttempts,
		logger:      logging.NewComponentLogger(opts.Logger, "clips"),
	}
}

// Request validates req and, when it passes, records a clip request and
// queues its extraction. A rejected request persists nothing.
func (s *Service) Request(ctx context.Context, req Request) stage.Outcome {
	rec, err := s.catalog.GetRecording(ctx, req.RecordingID)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		return stage.Failed(err)
	}
	if rec != nil && rec.DurationSeconds <= 0 {
		if err := s.probeDuration(ctx, rec); err != nil {
			return stage.Failed(err)
		}
	}

	rng, err := Validate(rec, req, s.limits)
	if err != nil {
		return stage.Failed(err)
	}
	if req.ClipID != 0 {
		existing, err := s.catalog.GetClip(ctx, req.ClipID)
		if err != nil {
			return stage.Failed(err)
		}
		if existing.RecordingID != rec.ID {
			return stage.Failed(invalid(fmt.Sprintf("Clip %d does not belong to recording %d", existing.ID, rec.ID)))
		}
	}

	clipReq, err := s.catalog.CreateClipRequest(ctx, catalog.NewClipRequest{
		RecordingID: rec.ID,
		ClipID:      req.ClipID,
		Title:       req.Title,
		StartTime:   rng.Start,
		EndTime:     rng.End,
	})
	if err != nil {
		return stage.Failed(err)
	}
	if s.enqueuer != nil {
		if _, err := s.enqueuer.Enqueue(ctx, stage.QueueClips, clipReq.ID); err != nil {
			_ = s.catalog.FailClipRequest(ctx, clipReq.ID, "could not queue extraction")
			return stage.Failed(err)
		}
	}
	logging.WithContext(ctx, s.logger).Info("clip requested",
		logging.Int64("recording_id", rec.ID),
		logging.Int64("clip_request_id", clipReq.ID),
		logging.Float64("start", rng.Start),
		logging.Float64("end", rng.End),
	)
	return stage.Succeeded(stage.Ref{Kind: "clip_request", ID: clipReq.ID})
}

// Execute runs extraction for the clip request named by the job payload.
// A failure that will not be retried marks the request failed.
func (s *Service) Execute(ctx context.Context, job *queue.Job) (stage.Ref, error) {
	if job == nil {
		return stage.Ref{}, services.Wrap(services.ErrValidation, stageName, "execute", "Job is nil", nil)
	}
	clip, err := s.Extract(ctx, job.PayloadID)
	if err != nil {
		if ctx.Err() == nil && (!services.Retryable(err) || (s.maxAttempts > 0 && job.Attempts >= s.maxAttempts)) {
			if markErr := s.catalog.FailClipRequest(ctx, job.PayloadID, services.Message(err)); markErr != nil && !errors.Is(markErr, services.ErrNotFound) {
				logging.WarnWithContext(logging.WithContext(ctx, s.logger), "failed to record clip failure", "clip_request_update_failed",
					logging.Int64("clip_request_id", job.PayloadID),
					logging.Error(markErr),
					logging.String(logging.FieldImpact, "clip request stays pending"),
				)
			}
		}
		return stage.Ref{}, err
	}
	return stage.Ref{Kind: "clip", ID: clip.ID}, nil
}

// Extract re-encodes the requested range and attaches it. Re-running a
// request that already finished returns its clip.
func (s *Service) Extract(ctx context.Context, requestID int64) (*catalog.Clip, error) {
	started := time.Now()
	req, err := s.catalog.GetClipRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status == catalog.ClipRequestDone && req.ClipID != 0 {
		return s.catalog.GetClip(ctx, req.ClipID)
	}
	rec, err := s.catalog.GetRecording(ctx, req.RecordingID)
	if err != nil {
		return nil, err
	}
	if req.Duration() < s.limits.MinSeconds || req.Duration() > s.limits.MaxSeconds {
		return nil, invalid(fmt.Sprintf("Video duration must be between %s and %s seconds",
			formatSeconds(s.limits.MinSeconds), formatSeconds(s.limits.MaxSeconds)))
	}
	logger := logging.WithContext(ctx, s.logger)

	scope, err := s.workspace.Open(stageName, req.ID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = scope.Close()
	}()

	ext := filepath.Ext(rec.Video.Filename)
	if ext == "" {
		ext = ".mp4"
	}
	source := scope.Path("source", ext)
	if err := s.fetchSource(ctx, rec, source); err != nil {
		return nil, err
	}
	output := scope.Path("clip", ".mp4")
	if _, err := s.runner.Run(ctx, procexec.Command{
		Name:    s.ffmpeg,
		Args:    encoding.ClipArgs(source, req.StartTime, req.Duration(), output, s.settings),
		Timeout: s.timeout,
		Stage:   stageName,
	}); err != nil {
		return nil, err
	}
	size, err := procexec.VerifyOutput(stageName, output, s.minOutput)
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("clip_%s_%d.mp4", textutil.Parameterize(req.Title), req.ID)
	blob, err := s.blobs.Adopt(ctx, output, filename, ContentType)
	if err != nil {
		return nil, err
	}
	clip, replaced, err := s.catalog.SaveClip(ctx, req.ID, blob)
	if err != nil {
		_ = s.blobs.Delete(blob.Key)
		return nil, err
	}
	if !replaced.IsZero() && replaced.Key != blob.Key {
		if err := s.blobs.Delete(replaced.Key); err != nil {
			logging.WarnWithContext(logger, "failed to delete replaced clip video", "attachment_orphaned",
				logging.String("key", replaced.Key),
				logging.Error(err),
				logging.String(logging.FieldImpact, "orphaned blob occupies attachment storage"),
			)
		}
	}

	logger.Info("clip extracted",
		logging.Int64("clip_id", clip.ID),
		logging.Int64("recording_id", rec.ID),
		logging.Int64("size_bytes", size),
		logging.Duration("stage_duration", time.Since(started)),
	)
	return clip, nil
}

// fetchSource copies the recording video to dst. A burn may replace the
// video between reading the recording and fetching its blob, so a missing
// blob is retried once against the current key and otherwise reported as a
// retryable conflict.
func (s *Service) fetchSource(ctx context.Context, rec *catalog.Recording, dst string) error {
	_, err := s.blobs.Fetch(ctx, rec.Video.Key, dst)
	if err == nil || !errors.Is(err, services.ErrNotFound) {
		return err
	}
	current, getErr := s.catalog.GetRecording(ctx, rec.ID)
	if getErr != nil {
		return getErr
	}
	if current.Video.Key != "" && current.Video.Key != rec.Video.Key {
		_, retryErr := s.blobs.Fetch(ctx, current.Video.Key, dst)
		if retryErr == nil {
			return nil
		}
		if !errors.Is(retryErr, services.ErrNotFound) {
			return retryErr
		}
	}
	return services.Wrap(services.ErrConflict, stageName, "fetch source",
		fmt.Sprintf("recording %d video changed or missing during extraction", rec.ID), err)
}

// HealthCheck reports readiness of the clips stage.
func (s *Service) HealthCheck(context.Context) stage.Health {
	if s == nil || s.catalog == nil || s.blobs == nil || s.workspace == nil {
		return stage.Unhealthy(stageName, "stage not configured")
	}
	if s.runner == nil {
		return stage.Unhealthy(stageName, "process runner unavailable")
	}
	return stage.Healthy(stageName)
}

func (s *Service) probeDuration(ctx context.Context, rec *catalog.Recording) error {
	if s.prober == nil || rec.Video.Key == "" {
		return nil
	}
	duration, err := s.prober.Duration(ctx, s.blobs.Path(rec.Video.Key))
	if err != nil {
		return err
	}
	if err := s.catalog.SetRecordingDuration(ctx, rec.ID, duration); err != nil {
		return err
	}
	rec.DurationSeconds = duration
	return nil
}
