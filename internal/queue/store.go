package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"clipforge/internal/database"
	"clipforge/internal/services"
)

const jobColumns = "id, queue, payload_id, status, attempts, error_message, error_kind, result_ref, enqueued_at, available_at, started_at, finished_at"

// Store manages job persistence backed by SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Enqueue persists a job that is immediately available.
func (s *Store) Enqueue(ctx context.Context, queueName string, payloadID int64) (*Job, error) {
	return s.EnqueueAt(ctx, queueName, payloadID, s.now())
}

// EnqueueAt persists a job that becomes claimable at availableAt.
func (s *Store) EnqueueAt(ctx context.Context, queueName string, payloadID int64, availableAt time.Time) (*Job, error) {
	queueName = strings.TrimSpace(queueName)
	if queueName == "" {
		return nil, services.Wrap(services.ErrValidation, "queue", "enqueue", "queue name is required", nil)
	}
	res, err := database.Exec(ctx, s.db,
		`INSERT INTO jobs (queue, payload_id, status, attempts, enqueued_at, available_at) VALUES (?, ?, ?, 0, ?, ?)`,
		queueName, payloadID, StatusQueued, database.FormatTime(s.now()), availableAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("job id: %w", err)
	}
	return s.Get(ctx, id)
}

// ClaimNext atomically moves the oldest available queued job of queueName to
// running and increments its attempt count. It returns nil when nothing is
// available.
func (s *Store) ClaimNext(ctx context.Context, queueName string) (*Job, error) {
	now := s.now()
	var job *Job
	err := database.RetryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`UPDATE jobs
             SET status = ?, attempts = attempts + 1, started_at = ?, finished_at = NULL
             WHERE id = (
                 SELECT id FROM jobs
                 WHERE queue = ? AND status = ? AND available_at <= ?
                 ORDER BY available_at, id
                 LIMIT 1
             )
             RETURNING `+jobColumns,
			StatusRunning, database.FormatTime(now), queueName, StatusQueued, now.UnixMilli(),
		)
		claimed, scanErr := scanJob(row)
		if scanErr != nil {
			return scanErr
		}
		job = claimed
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Complete marks a running job done and records its result reference.
func (s *Store) Complete(ctx context.Context, id int64, resultRef string) error {
	_, err := database.Exec(ctx, s.db,
		`UPDATE jobs SET status = ?, result_ref = ?, error_message = NULL, error_kind = NULL, finished_at = ? WHERE id = ?`,
		StatusDone, database.NullableString(resultRef), database.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("complete job %d: %w", id, err)
	}
	return nil
}

// Requeue returns a job to queued after a retryable failure, keeping the
// attempt count and recording the failure that caused the retry.
func (s *Store) Requeue(ctx context.Context, id int64, message, kind string, availableAt time.Time) error {
	_, err := database.Exec(ctx, s.db,
		`UPDATE jobs SET status = ?, error_message = ?, error_kind = ?, available_at = ?, started_at = NULL WHERE id = ?`,
		StatusQueued, database.NullableString(message), database.NullableString(kind), availableAt.UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("requeue job %d: %w", id, err)
	}
	return nil
}

// Fail marks a job permanently failed.
func (s *Store) Fail(ctx context.Context, id int64, message, kind string) error {
	_, err := database.Exec(ctx, s.db,
		`UPDATE jobs SET status = ?, error_message = ?, error_kind = ?, finished_at = ? WHERE id = ?`,
		StatusFailed, database.NullableString(message), database.NullableString(kind), database.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("fail job %d: %w", id, err)
	}
	return nil
}

// ResetRunning returns jobs left running by a previous process to queued.
// The interrupted attempt still counts toward the retry budget.
func (s *Store) ResetRunning(ctx context.Context) (int64, error) {
	res, err := database.Exec(ctx, s.db,
		`UPDATE jobs SET status = ?, started_at = NULL, error_message = 'interrupted by daemon restart', error_kind = 'transient' WHERE status = ?`,
		StatusQueued, StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reset running jobs: %w", err)
	}
	return res.RowsAffected()
}

// Retry re-queues a failed job with a fresh attempt budget.
func (s *Store) Retry(ctx context.Context, id int64) (*Job, error) {
	res, err := database.Exec(ctx, s.db,
		`UPDATE jobs SET status = ?, attempts = 0, error_message = NULL, error_kind = NULL, result_ref = NULL,
             available_at = ?, started_at = NULL, finished_at = NULL
         WHERE id = ? AND status = ?`,
		StatusQueued, s.now().UnixMilli(), id, StatusFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("retry job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, services.Wrap(services.ErrValidation, "queue", "retry",
			fmt.Sprintf("job %d is %s, only failed jobs can be retried", id, job.Status), nil)
	}
	return job, nil
}

// Get fetches one job by id.
func (s *Store) Get(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "queue", "get", fmt.Sprintf("job %d", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	return job, nil
}

// List returns jobs matching filter, oldest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Job, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Queue != "" {
		clauses = append(clauses, "queue = ?")
		args = append(args, filter.Queue)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+database.Placeholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Stats returns per-queue job counts.
func (s *Store) Stats(ctx context.Context) (map[string]Counts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT queue, status, COUNT(1) FROM jobs GROUP BY queue, status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]Counts)
	for rows.Next() {
		var (
			queueName string
			status    Status
			count     int
		)
		if err := rows.Scan(&queueName, &status, &count); err != nil {
			return nil, err
		}
		counts := stats[queueName]
		counts.add(status, count)
		stats[queueName] = counts
	}
	return stats, rows.Err()
}

// PurgeFinished deletes done and failed jobs that finished before cutoff.
func (s *Store) PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := database.Exec(ctx, s.db,
		`DELETE FROM jobs WHERE status IN (?, ?) AND finished_at IS NOT NULL AND finished_at < ?`,
		StatusDone, StatusFailed, database.FormatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("purge finished jobs: %w", err)
	}
	return res.RowsAffected()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job          Job
		statusStr    string
		errorMessage sql.NullString
		errorKind    sql.NullString
		resultRef    sql.NullString
		enqueuedRaw  string
		availableMS  int64
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.Queue,
		&job.PayloadID,
		&statusStr,
		&job.Attempts,
		&errorMessage,
		&errorKind,
		&resultRef,
		&enqueuedRaw,
		&availableMS,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	job.Status = Status(statusStr)
	job.ErrorMessage = errorMessage.String
	job.ErrorKind = errorKind.String
	job.ResultRef = resultRef.String
	job.AvailableAt = time.UnixMilli(availableMS).UTC()
	if enqueued, err := database.ParseTime(enqueuedRaw); err == nil {
		job.EnqueuedAt = enqueued
	}
	if startedRaw.Valid {
		if started, err := database.ParseTime(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if finishedRaw.Valid {
		if finished, err := database.ParseTime(finishedRaw.String); err == nil {
			job.FinishedAt = &finished
		}
	}
	return &job, nil
}
