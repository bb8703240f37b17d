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

const (
	clipColumns        = "id, recording_id, title, start_time, end_time, video_key, video_filename, video_content_type, video_size, created_at, updated_at"
	clipRequestColumns = "id, recording_id, clip_id, title, start_time, end_time, status, error_message, created_at, updated_at"
)

// CreateClipRequest records a validated clip request in pending state.
func (s *Store) CreateClipRequest(ctx context.Context, req NewClipRequest) (*ClipRequest, error) {
	now := database.Now()
	res, err := database.Exec(ctx, s.db,
		`INSERT INTO clip_requests (recording_id, clip_id, title, start_time, end_time, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.RecordingID, database.NullableInt64(req.ClipID), strings.TrimSpace(req.Title),
		req.StartTime, req.EndTime, ClipRequestPending, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert clip request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("clip request id: %w", err)
	}
	return s.GetClipRequest(ctx, id)
}

// GetClipRequest fetches a clip request by id.
func (s *Store) GetClipRequest(ctx context.Context, id int64) (*ClipRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clipRequestColumns+` FROM clip_requests WHERE id = ?`, id)
	req, err := scanClipRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "get clip request", fmt.Sprintf("clip request %d", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get clip request %d: %w", id, err)
	}
	return req, nil
}

// FailClipRequest marks a request failed with a user-facing message.
func (s *Store) FailClipRequest(ctx context.Context, id int64, message string) error {
	res, err := database.Exec(ctx, s.db,
		`UPDATE clip_requests SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		ClipRequestFailed, database.NullableString(message), database.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("fail clip request: %w", err)
	}
	return requireAffected(res, "fail clip request", fmt.Sprintf("clip request %d", id))
}

// SaveClip attaches blob to the clip described by requestID and marks the
// request done, in one transaction. A request without a clip id creates a new
// clip; otherwise the existing clip's range, title and video are replaced and
// the previous blob is returned for deletion.
func (s *Store) SaveClip(ctx context.Context, requestID int64, blob attachments.Blob) (*Clip, attachments.Blob, error) {
	if blob.IsZero() {
		return nil, attachments.Blob{}, services.Wrap(services.ErrValidation, "catalog", "save clip", "clip blob is empty", nil)
	}
	var (
		clipID   int64
		replaced attachments.Blob
	)
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+clipRequestColumns+` FROM clip_requests WHERE id = ?`, requestID)
		req, err := scanClipRequest(row)
		if errors.Is(err, sql.ErrNoRows) {
			return services.Wrap(services.ErrNotFound, "catalog", "save clip", fmt.Sprintf("clip request %d", requestID), nil)
		}
		if err != nil {
			return err
		}

		now := database.Now()
		if req.ClipID == 0 {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO clips (recording_id, title, start_time, end_time, video_key, video_filename, video_content_type, video_size, created_at, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				req.RecordingID, req.Title, req.StartTime, req.EndTime,
				blob.Key, blob.Filename, blob.ContentType, blob.Size, now, now,
			)
			if err != nil {
				return fmt.Errorf("insert clip: %w", err)
			}
			if clipID, err = res.LastInsertId(); err != nil {
				return err
			}
		} else {
			existing, err := scanClip(tx.QueryRowContext(ctx, `SELECT `+clipColumns+` FROM clips WHERE id = ?`, req.ClipID))
			if errors.Is(err, sql.ErrNoRows) {
				return services.Wrap(services.ErrNotFound, "catalog", "save clip", fmt.Sprintf("clip %d", req.ClipID), nil)
			}
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE clips SET title = ?, start_time = ?, end_time = ?, video_key = ?, video_filename = ?,
                     video_content_type = ?, video_size = ?, updated_at = ?
                 WHERE id = ?`,
				req.Title, req.StartTime, req.EndTime, blob.Key, blob.Filename, blob.ContentType, blob.Size, now, req.ClipID,
			); err != nil {
				return fmt.Errorf("update clip: %w", err)
			}
			clipID = req.ClipID
			replaced = existing.Video
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE clip_requests SET status = ?, clip_id = ?, error_message = NULL, updated_at = ? WHERE id = ?`,
			ClipRequestDone, clipID, now, requestID,
		); err != nil {
			return fmt.Errorf("complete clip request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, attachments.Blob{}, err
	}
	clip, err := s.GetClip(ctx, clipID)
	if err != nil {
		return nil, attachments.Blob{}, err
	}
	return clip, replaced, nil
}

// GetClip fetches a clip by id.
func (s *Store) GetClip(ctx context.Context, id int64) (*Clip, error) {
	clip, err := scanClip(s.db.QueryRowContext(ctx, `SELECT `+clipColumns+` FROM clips WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "get clip", fmt.Sprintf("clip %d", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get clip %d: %w", id, err)
	}
	return clip, nil
}

// ListClips returns clips of recordingID ordered by start time, or every clip
// when recordingID is zero.
func (s *Store) ListClips(ctx context.Context, recordingID int64) ([]*Clip, error) {
	query := `SELECT ` + clipColumns + ` FROM clips`
	var args []any
	if recordingID != 0 {
		query += ` WHERE recording_id = ?`
		args = append(args, recordingID)
	}
	query += ` ORDER BY recording_id, start_time, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list clips: %w", err)
	}
	defer rows.Close()

	var out []*Clip
	for rows.Next() {
		clip, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, clip)
	}
	return out, rows.Err()
}

func scanClip(scanner interface{ Scan(dest ...any) error }) (*Clip, error) {
	var (
		clip       Clip
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&clip.ID,
		&clip.RecordingID,
		&clip.Title,
		&clip.StartTime,
		&clip.EndTime,
		&clip.Video.Key,
		&clip.Video.Filename,
		&clip.Video.ContentType,
		&clip.Video.Size,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	if created, err := database.ParseTime(createdRaw); err == nil {
		clip.CreatedAt = created
	}
	if updated, err := database.ParseTime(updatedRaw); err == nil {
		clip.UpdatedAt = updated
	}
	return &clip, nil
}

func scanClipRequest(scanner interface{ Scan(dest ...any) error }) (*ClipRequest, error) {
	var (
		req          ClipRequest
		clipID       sql.NullInt64
		status       string
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&req.ID,
		&req.RecordingID,
		&clipID,
		&req.Title,
		&req.StartTime,
		&req.EndTime,
		&status,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	req.ClipID = clipID.Int64
	req.Status = ClipRequestStatus(status)
	req.ErrorMessage = errorMessage.String
	if created, err := database.ParseTime(createdRaw); err == nil {
		req.CreatedAt = created
	}
	if updated, err := database.ParseTime(updatedRaw); err == nil {
		req.UpdatedAt = updated
	}
	return &req, nil
}
