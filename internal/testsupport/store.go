package testsupport

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"clipforge/internal/attachments"
	"clipforge/internal/catalog"
	"clipforge/internal/config"
	"clipforge/internal/database"
)

// MustOpenDB opens the migrated test database and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *sql.DB {
	t.Helper()

	db, err := database.Open(context.Background(), cfg.DatabasePath())
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// MustAttachmentStore opens the attachment store configured in cfg.
func MustAttachmentStore(t testing.TB, cfg *config.Config) *attachments.Store {
	t.Helper()

	store, err := attachments.NewStore(cfg.Paths.AttachmentsDir)
	if err != nil {
		t.Fatalf("attachments.NewStore: %v", err)
	}
	return store
}

// NewRecording stores a fake video of size bytes and creates a recording
// pointing at it.
func NewRecording(t testing.TB, cat *catalog.Store, blobs *attachments.Store, title string, size int64, durationSeconds float64) *catalog.Recording {
	t.Helper()

	src := filepath.Join(t.TempDir(), "upload.mp4")
	WriteFile(t, src, size)
	blob, err := blobs.Put(context.Background(), src, "upload.mp4", "video/mp4")
	if err != nil {
		t.Fatalf("attachments.Put: %v", err)
	}
	rec, err := cat.CreateRecording(context.Background(), catalog.NewRecording{
		Title:           title,
		Video:           blob,
		DurationSeconds: durationSeconds,
	})
	if err != nil {
		t.Fatalf("catalog.CreateRecording: %v", err)
	}
	return rec
}
