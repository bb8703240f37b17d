package ingest_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"clipforge/internal/catalog"
	"clipforge/internal/ingest"
	"clipforge/internal/logging"
	"clipforge/internal/media/ffprobe"
	"clipforge/internal/procexec"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/testsupport"
)

func newStage(t *testing.T) (*ingest.Stage, *catalog.Store, *testsupport.Enqueuer) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	db := testsupport.MustOpenDB(t, cfg)
	cat := catalog.NewStore(db)
	blobs := testsupport.MustAttachmentStore(t, cfg)
	enq := &testsupport.Enqueuer{}
	st := ingest.NewStage(ingest.Options{
		Catalog: cat,
		Blobs:   blobs,
		Prober: &ffprobe.Prober{
			Binary:  cfg.Transcoder.FFprobeBinary,
			Runner:  procexec.NewRunner(logging.NewNop()),
			Timeout: time.Minute,
		},
		Enqueuer: enq,
	})
	return st, cat, enq
}

func TestAddThenExecuteChainsTranscription(t *testing.T) {
	st, cat, enq := newStage(t)
	t.Setenv("CLIPFORGE_STUB_DURATION", "1834.5")

	upload := filepath.Join(t.TempDir(), "Stream VOD: part 1.mkv")
	testsupport.WriteFile(t, upload, 4096)

	rec, job, err := st.Add(context.Background(), ingest.AddRequest{Path: upload, GameName: "Celeste"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if rec.Title != "Stream VOD: part 1" || rec.GameName != "Celeste" {
		t.Fatalf("unexpected recording %+v", rec)
	}
	if rec.Video.Filename != "Stream VOD- part 1.mkv" || rec.Video.Size != 4096 {
		t.Fatalf("unexpected blob %+v", rec.Video)
	}
	if job.Queue != "ingest" || job.PayloadID != rec.ID {
		t.Fatalf("unexpected job %+v", job)
	}

	ref, err := st.Execute(context.Background(), &queue.Job{Queue: "ingest", PayloadID: rec.ID})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if ref.Kind != "recording" || ref.ID != rec.ID {
		t.Fatalf("unexpected ref %+v", ref)
	}
	updated, _ := cat.GetRecording(context.Background(), rec.ID)
	if updated.DurationSeconds != 1834.5 {
		t.Fatalf("expected probed duration, got %v", updated.DurationSeconds)
	}
	if got := enq.Queues(); !slices.Equal(got, []string{"ingest", "transcription"}) {
		t.Fatalf("unexpected enqueue order %v", got)
	}
}

func TestAddRequiresPath(t *testing.T) {
	st, _, _ := newStage(t)
	if _, _, err := st.Add(context.Background(), ingest.AddRequest{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestExecuteMissingRecording(t *testing.T) {
	st, _, enq := newStage(t)
	_, err := st.Execute(context.Background(), &queue.Job{PayloadID: 404})
	if !errors.Is(err, services.ErrNotFound) || services.Retryable(err) {
		t.Fatalf("expected terminal ErrNotFound, got %v", err)
	}
	if len(enq.Calls()) != 0 {
		t.Fatal("expected nothing enqueued")
	}
}

func TestHealthCheck(t *testing.T) {
	st, _, _ := newStage(t)
	if h := st.HealthCheck(context.Background()); !h.Ready {
		t.Fatalf("expected ready, got %+v", h)
	}
	if h := ingest.NewStage(ingest.Options{}).HealthCheck(context.Background()); h.Ready {
		t.Fatal("expected unconfigured stage unhealthy")
	}
}
