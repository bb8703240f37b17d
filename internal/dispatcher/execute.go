package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/stage"
)

func (d *Dispatcher) execute(ctx context.Context, q *queueState, job *queue.Job) {
	jobCtx := services.WithJobID(ctx, job.ID)
	jobCtx = services.WithQueue(jobCtx, q.name)
	jobCtx = services.WithStage(jobCtx, q.name)
	jobCtx = services.WithPayloadID(jobCtx, job.PayloadID)
	jobCtx = services.WithRequestID(jobCtx, uuid.NewString())
	logger := logging.WithContext(jobCtx, d.logger).With(logging.Int(logging.FieldAttempt, job.Attempts))

	// Interrupted attempts stay counted, so a job resumed after a crash or
	// shutdown can arrive here already past its budget.
	if job.Attempts > d.maxAttempts {
		err := services.Wrap(services.ErrTransient, q.name, "execute",
			fmt.Sprintf("retry budget exhausted after %d interrupted attempts", job.Attempts-1), nil)
		d.settle(ctx, q, job, stage.Failed(err), 0, logger)
		return
	}

	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.Int("max_attempts", d.maxAttempts),
	)

	q.active.Add(1)
	d.metrics.running.WithLabelValues(q.name).Inc()
	started := time.Now()
	ref, err := invoke(jobCtx, q.handler, job)
	elapsed := time.Since(started)
	d.metrics.running.WithLabelValues(q.name).Dec()
	q.active.Add(-1)
	d.metrics.duration.WithLabelValues(q.name).Observe(elapsed.Seconds())

	var outcome stage.Outcome
	if err != nil {
		outcome = stage.Failed(err)
	} else {
		outcome = stage.Succeeded(ref)
	}
	d.settle(ctx, q, job, outcome, elapsed, logger)
}

// invoke runs the handler, converting a panic into a retryable error.
func invoke(ctx context.Context, handler stage.Handler, job *queue.Job) (ref stage.Ref, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrTransient, job.Queue, "execute", fmt.Sprintf("handler panicked: %v", r), nil)
		}
	}()
	return handler.Execute(ctx, job)
}

func (d *Dispatcher) settle(ctx context.Context, q *queueState, job *queue.Job, outcome stage.Outcome, elapsed time.Duration, logger *slog.Logger) {
	// Settling must succeed even when shutdown cancelled the run context.
	storeCtx := context.WithoutCancel(ctx)

	if outcome.OK {
		if err := d.store.Complete(storeCtx, job.ID, outcome.Ref.String()); err != nil {
			d.logSettleFailure(logger, "complete", err)
			return
		}
		d.metrics.jobs.WithLabelValues(q.name, OutcomeDone).Inc()
		logger.Info("job completed",
			logging.String(logging.FieldEventType, "job_complete"),
			logging.String("result_ref", outcome.Ref.String()),
			logging.Duration("stage_duration", elapsed),
		)
		return
	}

	err := outcome.Error
	message := outcome.Message()
	kind := services.Kind(err)

	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		if reqErr := d.store.Requeue(storeCtx, job.ID, "interrupted by shutdown", "transient", d.now()); reqErr != nil {
			d.logSettleFailure(logger, "requeue", reqErr)
			return
		}
		d.metrics.jobs.WithLabelValues(q.name, OutcomeInterrupted).Inc()
		logger.Info("job interrupted by shutdown",
			logging.String(logging.FieldEventType, "job_interrupted"),
			logging.Duration("stage_duration", elapsed),
		)
		return
	}

	if services.Retryable(err) && job.Attempts < d.maxAttempts {
		availableAt := d.now().Add(d.retryBackoff)
		if reqErr := d.store.Requeue(storeCtx, job.ID, message, kind, availableAt); reqErr != nil {
			d.logSettleFailure(logger, "requeue", reqErr)
			return
		}
		d.metrics.jobs.WithLabelValues(q.name, OutcomeRetried).Inc()
		logging.WarnWithContext(logger, "job failed; retry scheduled", "job_retry",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, kind),
			logging.String("available_at", availableAt.Format(time.RFC3339)),
			logging.Duration("stage_duration", elapsed),
			logging.String(logging.FieldImpact, "job will run again after backoff"),
		)
		if d.retryBackoff <= 0 {
			d.signal()
		}
		return
	}

	if failErr := d.store.Fail(storeCtx, job.ID, message, kind); failErr != nil {
		d.logSettleFailure(logger, "fail", failErr)
		return
	}
	d.metrics.jobs.WithLabelValues(q.name, OutcomeFailed).Inc()
	hint := "fix the cause and retry the job with 'clipforge queue retry'"
	if services.Retryable(err) {
		hint = "retry budget exhausted; check the external tool output and retry the job"
	}
	logging.ErrorWithContext(logger, "job abandoned", "job_abandoned",
		logging.Error(err),
		logging.String(logging.FieldErrorKind, kind),
		logging.String(logging.FieldErrorHint, hint),
		logging.String(logging.FieldImpact, "downstream stages for this payload will not run"),
		logging.Duration("stage_duration", elapsed),
		logging.Alert("job_failed"),
	)
}

func (d *Dispatcher) logSettleFailure(logger *slog.Logger, op string, err error) {
	logger.Error("failed to record job outcome",
		logging.String("operation", op),
		logging.Error(err),
		logging.String(logging.FieldEventType, "job_settle_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access; the job is reset on next start"),
	)
}
