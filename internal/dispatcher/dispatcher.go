// Package dispatcher drains the persistent job queues with a fixed pool of
// workers.
//
// Every queue has its own concurrency cap enforced with a weighted
// semaphore. A worker acquires a queue's slot before claiming from it and
// releases the slot once the job reached a terminal or requeued state, so a
// long burn never blocks transcription or clip jobs waiting on other queues.
// Queues are visited round-robin and jobs within one queue are claimed oldest
// first.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/stage"
)

const (
	defaultWorkers      = 1
	defaultPollInterval = 2 * time.Second
	defaultMaxAttempts  = 3
)

// Options configures a Dispatcher.
type Options struct {
	Workers      int
	PollInterval time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	Metrics      *Metrics
	Logger       *slog.Logger
}

type queueState struct {
	name    string
	handler stage.Handler
	limit   int64
	sem     *semaphore.Weighted
	active  atomic.Int64
}

// Dispatcher coordinates queue processing using registered stage handlers.
type Dispatcher struct {
	store        *queue.Store
	logger       *slog.Logger
	metrics      *Metrics
	workers      int
	pollInterval time.Duration
	maxAttempts  int
	retryBackoff time.Duration
	now          func() time.Time

	queues map[string]*queueState
	order  []string
	next   atomic.Uint64
	wake   chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a dispatcher over store.
func New(store *queue.Store, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBackoff < 0 {
		opts.RetryBackoff = 0
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	return &Dispatcher{
		store:        store,
		logger:       logging.NewComponentLogger(opts.Logger, "dispatcher"),
		metrics:      opts.Metrics,
		workers:      opts.Workers,
		pollInterval: opts.PollInterval,
		maxAttempts:  opts.MaxAttempts,
		retryBackoff: opts.RetryBackoff,
		now:          time.Now,
		queues:       make(map[string]*queueState),
		wake:         make(chan struct{}, opts.Workers),
	}
}

// Register binds a handler to a queue with the given concurrency cap. It must
// be called before Start.
func (d *Dispatcher) Register(queueName string, handler stage.Handler, limit int) error {
	queueName = strings.TrimSpace(queueName)
	if queueName == "" {
		return services.Wrap(services.ErrValidation, "dispatcher", "register", "queue name is required", nil)
	}
	if handler == nil {
		return services.Wrap(services.ErrValidation, "dispatcher", "register", fmt.Sprintf("queue %q has no handler", queueName), nil)
	}
	if limit <= 0 {
		limit = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("dispatcher already running")
	}
	if _, exists := d.queues[queueName]; exists {
		return services.Wrap(services.ErrConflict, "dispatcher", "register", fmt.Sprintf("queue %q already registered", queueName), nil)
	}
	d.queues[queueName] = &queueState{
		name:    queueName,
		handler: handler,
		limit:   int64(limit),
		sem:     semaphore.NewWeighted(int64(limit)),
	}
	d.order = append(d.order, queueName)
	return nil
}

// Queues returns the registered queue names in registration order.
func (d *Dispatcher) Queues() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.order...)
}

// Enqueue persists a job for a registered queue and wakes an idle worker.
func (d *Dispatcher) Enqueue(ctx context.Context, queueName string, payloadID int64) (*queue.Job, error) {
	if d.lookup(queueName) == nil {
		return nil, services.Wrap(services.ErrValidation, "dispatcher", "enqueue", fmt.Sprintf("unknown queue %q", queueName), nil)
	}
	job, err := d.store.Enqueue(ctx, queueName, payloadID)
	if err != nil {
		return nil, err
	}
	d.metrics.enqueued.WithLabelValues(queueName).Inc()
	d.signal()
	logging.WithContext(ctx, d.logger).Debug("job enqueued",
		logging.Int64("enqueued_job_id", job.ID),
		logging.String("target_queue", queueName),
		logging.Int64("target_payload_id", payloadID),
	)
	return job, nil
}

// Start resets jobs interrupted by a previous run and begins background
// processing.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("dispatcher already running")
	}
	if len(d.queues) == 0 {
		d.mu.Unlock()
		return errors.New("dispatcher queues not configured")
	}

	reset, err := d.store.ResetRunning(ctx)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("reset running jobs: %w", err)
	}
	if reset > 0 {
		d.logger.Info("requeued jobs interrupted by previous run",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "jobs_reset"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.wg.Add(d.workers)
	d.mu.Unlock()

	for i := range d.workers {
		go d.runWorker(runCtx, i)
	}
	d.logger.Info("dispatcher started",
		logging.Int("workers", d.workers),
		logging.String("queues", strings.Join(d.order, ",")),
		logging.Duration("poll_interval", d.pollInterval),
	)
	return nil
}

// Stop terminates background processing and waits for in-flight jobs.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	cancel()
	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

// Running reports whether workers are active.
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Active returns the number of jobs currently executing on queueName.
func (d *Dispatcher) Active(queueName string) int64 {
	if q := d.lookup(queueName); q != nil {
		return q.active.Load()
	}
	return 0
}

// Stats returns persisted job counts per queue.
func (d *Dispatcher) Stats(ctx context.Context) (map[string]queue.Counts, error) {
	return d.store.Stats(ctx)
}

// Health collects the readiness of every registered handler.
func (d *Dispatcher) Health(ctx context.Context) []stage.Health {
	names := d.Queues()
	out := make([]stage.Health, 0, len(names))
	for _, name := range names {
		q := d.lookup(name)
		h := q.handler.HealthCheck(ctx)
		if h.Name == "" {
			h.Name = name
		}
		out = append(out, h)
	}
	return out
}

// RunOnce claims and executes at most one job from any registered queue,
// honoring the per-queue caps. It reports whether a job ran.
func (d *Dispatcher) RunOnce(ctx context.Context) (bool, error) {
	names := d.Queues()
	if len(names) == 0 {
		return false, nil
	}
	start := int(d.next.Add(1)-1) % len(names)
	var firstErr error
	for i := range names {
		q := d.lookup(names[(start+i)%len(names)])
		ran, err := d.tryQueue(ctx, q)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if ran {
			return true, nil
		}
	}
	return false, firstErr
}

func (d *Dispatcher) tryQueue(ctx context.Context, q *queueState) (bool, error) {
	if !q.sem.TryAcquire(1) {
		return false, nil
	}
	defer q.sem.Release(1)

	job, err := d.store.ClaimNext(ctx, q.name)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	d.execute(ctx, q, job)
	return true, nil
}

func (d *Dispatcher) lookup(name string) *queueState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queues[name]
}

func (d *Dispatcher) signal() {
	for range d.workers {
		select {
		case d.wake <- struct{}{}:
		default:
			return
		}
	}
}

func (d *Dispatcher) runWorker(ctx context.Context, index int) {
	defer d.wg.Done()
	logger := d.logger.With(logging.Int("worker", index))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ran, err := d.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Error("failed to claim next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_claim_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		if ran {
			continue
		}
		d.waitForJobOrShutdown(ctx)
	}
}

func (d *Dispatcher) waitForJobOrShutdown(ctx context.Context) {
	timer := time.NewTimer(d.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-d.wake:
	case <-timer.C:
	}
}
