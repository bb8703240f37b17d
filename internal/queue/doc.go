// Package queue persists dispatcher jobs in SQLite.
//
// A job names a queue (ingest, transcription, subtitles, clips) and the id of
// the record it operates on. The Store hands jobs out FIFO per queue by
// (available_at, id): ClaimNext flips the oldest available queued row to
// running and increments its attempt counter in a single UPDATE ... RETURNING
// statement, so two workers can never claim the same job.
//
// Rows only track attempt accounting and the outcome of the last attempt. The
// records a job refers to live in the catalog; this package never interprets
// payload ids.
package queue
