package catalog

import (
	"time"

	"clipforge/internal/attachments"
	"clipforge/internal/transcript"
)

// Recording is a long-form source video and its derived state.
type Recording struct {
	ID       int64
	Title    string
	GameName string
	Video    attachments.Blob
	// VideoVersion is the single-writer token for Video. Every swap bumps it
	// and is conditional on the version the writer read.
	VideoVersion    int64
	DurationSeconds float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewRecording carries the fields supplied when a recording is added.
type NewRecording struct {
	Title           string
	GameName        string
	Video           attachments.Blob
	DurationSeconds float64
}

// Transcript is the persisted recognizer output of a recording.
type Transcript struct {
	ID          int64
	RecordingID int64
	Schema      transcript.Schema
	Data        []byte
	Segments    []transcript.Segment
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clip is a finished excerpt of a recording.
type Clip struct {
	ID          int64
	RecordingID int64
	Title       string
	StartTime   float64
	EndTime     float64
	Video       attachments.Blob
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ClipRequestStatus tracks a clip request through extraction.
type ClipRequestStatus string

const (
	ClipRequestPending ClipRequestStatus = "pending"
	ClipRequestDone    ClipRequestStatus = "done"
	ClipRequestFailed  ClipRequestStatus = "failed"
)

// ClipRequest is the validated intent to extract a clip. It is the payload of
// clips jobs; a Clip row only exists once extraction succeeded.
type ClipRequest struct {
	ID          int64
	RecordingID int64
	// ClipID is zero for a new clip, or the clip whose video is replaced.
	ClipID       int64
	Title        string
	StartTime    float64
	EndTime      float64
	Status       ClipRequestStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Duration returns the requested clip length in seconds.
func (r *ClipRequest) Duration() float64 {
	return r.EndTime - r.StartTime
}

// NewClipRequest carries a validated clip request.
type NewClipRequest struct {
	RecordingID int64
	ClipID      int64
	Title       string
	StartTime   float64
	EndTime     float64
}
