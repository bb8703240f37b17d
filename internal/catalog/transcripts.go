package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clipforge/internal/database"
	"clipforge/internal/services"
	"clipforge/internal/transcript"
)

// ReplaceTranscript upserts the transcript of recordingID and replaces its
// entire segment set in one transaction. Segment positions follow the payload
// order, which the transcript package guarantees is sorted by start time.
func (s *Store) ReplaceTranscript(ctx context.Context, recordingID int64, payload transcript.Payload) (*Transcript, error) {
	if len(payload.Raw) == 0 {
		return nil, services.Wrap(services.ErrValidation, "catalog", "replace transcript", "transcript data is empty", nil)
	}
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM recordings WHERE id = ?`, recordingID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return services.Wrap(services.ErrNotFound, "catalog", "replace transcript", fmt.Sprintf("recording %d", recordingID), nil)
		}

		now := database.Now()
		var transcriptID int64
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO transcripts (recording_id, data, schema, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?)
             ON CONFLICT(recording_id) DO UPDATE SET data = excluded.data, schema = excluded.schema, updated_at = excluded.updated_at
             RETURNING id`,
			recordingID, string(payload.Raw), string(payload.Schema), now, now,
		).Scan(&transcriptID); err != nil {
			return fmt.Errorf("upsert transcript: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE transcript_id = ?`, transcriptID); err != nil {
			return fmt.Errorf("clear segments: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO segments (transcript_id, position, start_time, end_time, text) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, seg := range payload.Segments {
			if _, err := stmt.ExecContext(ctx, transcriptID, i, seg.Start, seg.End, seg.Text); err != nil {
				return fmt.Errorf("insert segment %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.TranscriptForRecording(ctx, recordingID)
}

// TranscriptForRecording loads a recording's transcript with its segments
// ordered by start time.
func (s *Store) TranscriptForRecording(ctx context.Context, recordingID int64) (*Transcript, error) {
	var (
		tr         Transcript
		data       string
		schema     string
		createdRaw string
		updatedRaw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, recording_id, data, schema, created_at, updated_at FROM transcripts WHERE recording_id = ?`,
		recordingID,
	).Scan(&tr.ID, &tr.RecordingID, &data, &schema, &createdRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "get transcript", fmt.Sprintf("recording %d has no transcript", recordingID), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	tr.Data = []byte(data)
	tr.Schema = transcript.Schema(schema)
	if created, err := database.ParseTime(createdRaw); err == nil {
		tr.CreatedAt = created
	}
	if updated, err := database.ParseTime(updatedRaw); err == nil {
		tr.UpdatedAt = updated
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT start_time, end_time, text FROM segments WHERE transcript_id = ? ORDER BY start_time, position`,
		tr.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var seg transcript.Segment
		if err := rows.Scan(&seg.Start, &seg.End, &seg.Text); err != nil {
			return nil, err
		}
		tr.Segments = append(tr.Segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &tr, nil
}
