package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/pipeline"
	"clipforge/internal/queue"
	"clipforge/internal/stage"
)

const defaultMaintenanceInterval = time.Hour

// Daemon coordinates background processing and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	pipeline *pipeline.Pipeline
	gatherer prometheus.Gatherer

	lockPath string
	lock     *flock.Flock
	ops      *opsServer

	maintenanceInterval time.Duration

	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                    `json:"running"`
	PID          int                     `json:"pid"`
	StartedAt    *time.Time              `json:"started_at,omitempty"`
	OpsAddress   string                  `json:"ops_address,omitempty"`
	DatabasePath string                  `json:"database_path"`
	LockPath     string                  `json:"lock_path"`
	FreeBytes    uint64                  `json:"workspace_free_bytes"`
	Queues       map[string]queue.Counts `json:"queues"`
	Health       []stage.Health          `json:"health"`
}

// New constructs a daemon around an opened pipeline. gatherer backs the
// /metrics endpoint and may be nil.
func New(cfg *config.Config, p *pipeline.Pipeline, gatherer prometheus.Gatherer, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || p == nil {
		return nil, errors.New("daemon requires config and pipeline")
	}
	if gatherer == nil {
		gatherer = prometheus.NewRegistry()
	}
	d := &Daemon{
		cfg:                 cfg,
		logger:              logging.NewComponentLogger(logger, "daemon"),
		pipeline:            p,
		gatherer:            gatherer,
		lockPath:            cfg.LockPath(),
		lock:                flock.New(cfg.LockPath()),
		maintenanceInterval: defaultMaintenanceInterval,
	}
	d.ops = newOpsServer(cfg.Paths.OpsBind, d, d.logger)
	return d, nil
}

// Start acquires the daemon lock, runs housekeeping and launches the
// dispatcher and the operations server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another clipforge daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cleanScratch(runCtx)
	d.purgeJobs(runCtx)

	if err := d.pipeline.Dispatcher.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start dispatcher: %w", err)
	}
	if err := d.ops.start(runCtx); err != nil {
		d.pipeline.Dispatcher.Stop()
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start ops server: %w", err)
	}

	d.cancel = cancel
	d.startedAt = time.Now()
	d.wg.Add(1)
	go d.maintenanceLoop(runCtx)

	d.running.Store(true)
	d.logger.Info("clipforge daemon started",
		logging.String("lock", d.lockPath),
		logging.String("ops_address", d.ops.address()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.pipeline.Dispatcher.Stop()
	d.ops.stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("clipforge daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases the pipeline.
func (d *Daemon) Close() error {
	d.Stop()
	return d.pipeline.Close()
}

// Running reports whether the daemon is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// OpsAddress returns the bound operations server address, or "" when disabled.
func (d *Daemon) OpsAddress() string {
	return d.ops.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		OpsAddress:   d.ops.address(),
		DatabasePath: d.cfg.DatabasePath(),
		LockPath:     d.lockPath,
		Health:       d.pipeline.Dispatcher.Health(ctx),
	}
	if status.Running {
		started := d.startedAt
		status.StartedAt = &started
	}
	if free, err := d.pipeline.Workspace.FreeBytes(); err == nil {
		status.FreeBytes = free
	}
	if counts, err := d.pipeline.Dispatcher.Stats(ctx); err == nil {
		status.Queues = counts
	} else {
		d.logger.Warn("queue stats unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_stats_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	}
	return status
}

func (d *Daemon) maintenanceLoop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.purgeJobs(ctx)
		}
	}
}

// cleanScratch only runs before the dispatcher starts; no scope is open yet.
func (d *Daemon) cleanScratch(ctx context.Context) {
	maxAge := d.cfg.StaleAfter()
	if maxAge <= 0 {
		return
	}
	result := d.pipeline.Workspace.CleanStale(ctx, maxAge)
	if len(result.Removed) > 0 || len(result.Errors) > 0 {
		d.logger.Info("stale scratch cleanup finished",
			logging.Int("removed", len(result.Removed)),
			logging.Int("errors", len(result.Errors)),
			logging.String(logging.FieldEventType, "workspace_cleanup_summary"),
		)
	}
}

func (d *Daemon) purgeJobs(ctx context.Context) {
	hours := d.cfg.Dispatcher.FinishedRetention
	if hours <= 0 {
		return
	}
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	purged, err := d.pipeline.Jobs.PurgeFinished(ctx, cutoff)
	if err != nil {
		logging.WarnWithContext(d.logger, "failed to purge finished jobs", "job_purge_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String(logging.FieldImpact, "finished job rows accumulate"),
		)
		return
	}
	if purged > 0 {
		d.logger.Info("purged finished jobs",
			logging.Int64("count", purged),
			logging.String(logging.FieldEventType, "job_purge"),
		)
	}
}
