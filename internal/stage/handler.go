// Package stage defines the contract between the dispatcher and the pipeline
// stages it runs.
package stage

import (
	"context"

	"clipforge/internal/queue"
)

// Queue names. Each queue is served by exactly one handler.
const (
	QueueIngest        = "ingest"
	QueueTranscription = "transcription"
	QueueSubtitles     = "subtitles"
	QueueClips         = "clips"
)

// Handler describes the contract the dispatcher needs from each stage.
// Execute must be idempotent: a retry re-runs the whole stage.
type Handler interface {
	Execute(context.Context, *queue.Job) (Ref, error)
	HealthCheck(context.Context) Health
}

// Enqueuer persists follow-up work. The dispatcher satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName string, payloadID int64) (*queue.Job, error)
}
