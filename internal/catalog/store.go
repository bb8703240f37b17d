// Package catalog persists recordings, transcripts, clips and clip requests.
//
// It is the metadata side of the pipeline: stages read what they operate on
// from here and write results back in single transactions, so a reader never
// observes a transcript with half its segments or a recording whose video
// points at a blob that was never committed.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"clipforge/internal/attachments"
	"clipforge/internal/database"
	"clipforge/internal/services"
)

const recordingColumns = "id, title, game_name, video_key, video_filename, video_content_type, video_size, video_version, duration_seconds, created_at, updated_at"

// ErrNotFound and ErrConflict alias the service markers for callers that only
// import catalog.
var (
	ErrNotFound = services.ErrNotFound
	ErrConflict = services.ErrConflict
)

// Store provides catalog persistence on a shared database handle.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateRecording inserts a recording with its initial video attachment.
func (s *Store) CreateRecording(ctx context.Context, rec NewRecording) (*Recording, error) {
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "create recording", "title is required", nil)
	}
	if rec.Video.IsZero() {
		return nil, services.Wrap(services.ErrValidation, "catalog", "create recording", "video attachment is required", nil)
	}
	now := database.Now()
	res, err := database.Exec(ctx, s.db,
		`INSERT INTO recordings (title, game_name, video_key, video_filename, video_content_type, video_size, video_version, duration_seconds, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		title, database.NullableString(strings.TrimSpace(rec.GameName)),
		rec.Video.Key, rec.Video.Filename, rec.Video.ContentType, rec.Video.Size,
		rec.DurationSeconds, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert recording: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("recording id: %w", err)
	}
	return s.GetRecording(ctx, id)
}

// GetRecording fetches a recording by id.
func (s *Store) GetRecording(ctx context.Context, id int64) (*Recording, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "get recording", fmt.Sprintf("recording %d", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get recording %d: %w", id, err)
	}
	return rec, nil
}

// ListRecordings returns all recordings, newest first.
func (s *Store) ListRecordings(ctx context.Context) ([]*Recording, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordingColumns+` FROM recordings ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var out []*Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SetRecordingDuration records the probed duration of a recording's video.
func (s *Store) SetRecordingDuration(ctx context.Context, id int64, seconds float64) error {
	res, err := database.Exec(ctx, s.db,
		`UPDATE recordings SET duration_seconds = ?, updated_at = ? WHERE id = ?`,
		seconds, database.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("set recording duration: %w", err)
	}
	return requireAffected(res, "set recording duration", fmt.Sprintf("recording %d", id))
}

// ReplaceRecordingVideo swaps the recording's video attachment if its version
// still equals expectedVersion. It returns the blob that was replaced so the
// caller can delete it once the swap is durable. A stale version yields
// ErrConflict and leaves the row untouched.
func (s *Store) ReplaceRecordingVideo(ctx context.Context, id, expectedVersion int64, blob attachments.Blob) (attachments.Blob, error) {
	if blob.IsZero() {
		return attachments.Blob{}, services.Wrap(services.ErrValidation, "catalog", "replace video", "replacement blob is empty", nil)
	}
	var previous attachments.Blob
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id)
		current, err := scanRecording(row)
		if errors.Is(err, sql.ErrNoRows) {
			return services.Wrap(services.ErrNotFound, "catalog", "replace video", fmt.Sprintf("recording %d", id), nil)
		}
		if err != nil {
			return err
		}
		if current.VideoVersion != expectedVersion {
			return services.Wrap(services.ErrConflict, "catalog", "replace video",
				fmt.Sprintf("recording %d video version is %d, expected %d", id, current.VideoVersion, expectedVersion), nil)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE recordings
             SET video_key = ?, video_filename = ?, video_content_type = ?, video_size = ?,
                 video_version = video_version + 1, updated_at = ?
             WHERE id = ? AND video_version = ?`,
			blob.Key, blob.Filename, blob.ContentType, blob.Size, database.Now(), id, expectedVersion,
		); err != nil {
			return err
		}
		previous = current.Video
		return nil
	})
	if err != nil {
		return attachments.Blob{}, err
	}
	return previous, nil
}

func scanRecording(scanner interface{ Scan(dest ...any) error }) (*Recording, error) {
	var (
		rec        Recording
		gameName   sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.Title,
		&gameName,
		&rec.Video.Key,
		&rec.Video.Filename,
		&rec.Video.ContentType,
		&rec.Video.Size,
		&rec.VideoVersion,
		&rec.DurationSeconds,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	rec.GameName = gameName.String
	if created, err := database.ParseTime(createdRaw); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := database.ParseTime(updatedRaw); err == nil {
		rec.UpdatedAt = updated
	}
	return &rec, nil
}

func requireAffected(res sql.Result, op, subject string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return services.Wrap(services.ErrNotFound, "catalog", op, subject, nil)
	}
	return nil
}
