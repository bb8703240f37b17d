package testsupport

import (
	"context"
	"sync"

	"clipforge/internal/queue"
)

// EnqueueCall records one Enqueue invocation.
type EnqueueCall struct {
	Queue     string
	PayloadID int64
}

// Enqueuer is an in-memory stage.Enqueuer that records calls.
type Enqueuer struct {
	mu    sync.Mutex
	calls []EnqueueCall
	// Err, when set, is returned by every Enqueue call.
	Err error
}

// Enqueue records the call and returns a synthetic queued job.
func (e *Enqueuer) Enqueue(_ context.Context, queueName string, payloadID int64) (*queue.Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	e.calls = append(e.calls, EnqueueCall{Queue: queueName, PayloadID: payloadID})
	return &queue.Job{ID: int64(len(e.calls)), Queue: queueName, PayloadID: payloadID, Status: queue.StatusQueued}, nil
}

// Calls returns a copy of the recorded calls.
func (e *Enqueuer) Calls() []EnqueueCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]EnqueueCall(nil), e.calls...)
}

// Queues returns the queue names of the recorded calls in order.
func (e *Enqueuer) Queues() []string {
	calls := e.Calls()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Queue)
	}
	return out
}
