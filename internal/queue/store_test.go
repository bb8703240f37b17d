package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/testsupport"
)

func newStore(t *testing.T) *queue.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return queue.NewStore(testsupport.MustOpenDB(t, cfg))
}

func TestEnqueueAndGet(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	job, err := store.Enqueue(ctx, "ingest", 42)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if job.ID == 0 || job.Status != queue.StatusQueued || job.Attempts != 0 || job.PayloadID != 42 {
		t.Fatalf("unexpected job: %#v", job)
	}
	if job.EnqueuedAt.IsZero() {
		t.Fatal("expected enqueued_at to be set")
	}

	if _, err := store.Get(ctx, 9999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Enqueue(ctx, " ", 1); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank queue, got %v", err)
	}
}

func TestClaimNextIsFIFOPerQueue(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	second, _ := store.EnqueueAt(ctx, "clips", 2, base.Add(2*time.Second))
	first, _ := store.EnqueueAt(ctx, "clips", 1, base)
	other, _ := store.EnqueueAt(ctx, "subtitles", 3, base.Add(-time.Second))

	claimed, err := store.ClaimNext(ctx, "clips")
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected job %d first, got %#v", first.ID, claimed)
	}
	if claimed.Status != queue.StatusRunning || claimed.Attempts != 1 || claimed.StartedAt == nil {
		t.Fatalf("claim did not flip state: %#v", claimed)
	}

	claimed, err = store.ClaimNext(ctx, "clips")
	if err != nil || claimed == nil || claimed.ID != second.ID {
		t.Fatalf("expected job %d second, got %#v (err=%v)", second.ID, claimed, err)
	}

	claimed, err = store.ClaimNext(ctx, "clips")
	if err != nil || claimed != nil {
		t.Fatalf("expected empty clips queue, got %#v (err=%v)", claimed, err)
	}

	claimed, err = store.ClaimNext(ctx, "subtitles")
	if err != nil || claimed == nil || claimed.ID != other.ID {
		t.Fatalf("expected subtitles job, got %#v (err=%v)", claimed, err)
	}
}

func TestClaimNextSkipsFutureJobs(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, err := store.EnqueueAt(ctx, "ingest", 1, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("EnqueueAt failed: %v", err)
	}
	claimed, err := store.ClaimNext(ctx, "ingest")
	if err != nil || claimed != nil {
		t.Fatalf("expected no claimable job, got %#v (err=%v)", claimed, err)
	}
}

func TestConcurrentClaimsNeverShareAJob(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if _, err := store.Enqueue(ctx, "transcription", int64(i)); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	var (
		mu   sync.Mutex
		seen = map[int64]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := store.ClaimNext(ctx, "transcription")
				if err != nil {
					t.Errorf("ClaimNext failed: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 10 {
		t.Fatalf("expected 10 distinct claims, got %d", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("job %d claimed %d times", id, n)
		}
	}
}

func TestRequeueKeepsAttemptsAndFailRecordsKind(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	job, _ := store.Enqueue(ctx, "subtitles", 5)
	claimed, _ := store.ClaimNext(ctx, "subtitles")

	if err := store.Requeue(ctx, claimed.ID, "ffmpeg exited 1", "process", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}
	again, err := store.ClaimNext(ctx, "subtitles")
	if err != nil || again == nil || again.ID != job.ID {
		t.Fatalf("expected requeued job to be claimable, got %#v (err=%v)", again, err)
	}
	if again.Attempts != 2 {
		t.Fatalf("expected attempts=2, got %d", again.Attempts)
	}

	if err := store.Fail(ctx, again.ID, "too large", "size_constraint"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	failed, _ := store.Get(ctx, job.ID)
	if failed.Status != queue.StatusFailed || failed.ErrorKind != "size_constraint" || failed.FinishedAt == nil {
		t.Fatalf("unexpected failed job: %#v", failed)
	}
	if !failed.IsTerminal() {
		t.Fatal("expected failed job to be terminal")
	}
}

func TestCompleteStoresResultRef(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	store.Enqueue(ctx, "clips", 9)
	claimed, _ := store.ClaimNext(ctx, "clips")
	if err := store.Complete(ctx, claimed.ID, "clip:3"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	done, _ := store.Get(ctx, claimed.ID)
	if done.Status != queue.StatusDone || done.ResultRef != "clip:3" || done.ErrorMessage != "" {
		t.Fatalf("unexpected done job: %#v", done)
	}
}

func TestResetRunning(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	store.Enqueue(ctx, "ingest", 1)
	claimed, _ := store.ClaimNext(ctx, "ingest")

	n, err := store.ResetRunning(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 reset job, got %d (err=%v)", n, err)
	}
	reset, _ := store.Get(ctx, claimed.ID)
	if reset.Status != queue.StatusQueued || reset.Attempts != 1 {
		t.Fatalf("unexpected reset job: %#v", reset)
	}
}

func TestRetryOnlyAcceptsFailedJobs(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	job, _ := store.Enqueue(ctx, "clips", 1)
	if _, err := store.Retry(ctx, job.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error retrying queued job, got %v", err)
	}

	claimed, _ := store.ClaimNext(ctx, "clips")
	store.Fail(ctx, claimed.ID, "boom", "process")

	retried, err := store.Retry(ctx, job.ID)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if retried.Status != queue.StatusQueued || retried.Attempts != 0 || retried.ErrorMessage != "" {
		t.Fatalf("unexpected retried job: %#v", retried)
	}
}

func TestListStatsAndPurge(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	store.Enqueue(ctx, "ingest", 1)
	store.Enqueue(ctx, "ingest", 2)
	store.Enqueue(ctx, "clips", 3)
	claimed, _ := store.ClaimNext(ctx, "ingest")
	store.Complete(ctx, claimed.ID, "")

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if got := stats["ingest"]; got.Queued != 1 || got.Done != 1 || got.Total() != 2 {
		t.Fatalf("unexpected ingest stats: %#v", got)
	}
	if got := stats["clips"]; got.Queued != 1 {
		t.Fatalf("unexpected clips stats: %#v", got)
	}

	queued, err := store.List(ctx, queue.Filter{Statuses: []queue.Status{queue.StatusQueued}})
	if err != nil || len(queued) != 2 {
		t.Fatalf("expected 2 queued jobs, got %d (err=%v)", len(queued), err)
	}
	ingest, err := store.List(ctx, queue.Filter{Queue: "ingest", Limit: 1})
	if err != nil || len(ingest) != 1 || ingest[0].Queue != "ingest" {
		t.Fatalf("unexpected filtered list: %#v (err=%v)", ingest, err)
	}

	purged, err := store.PurgeFinished(ctx, time.Now().Add(time.Minute))
	if err != nil || purged != 1 {
		t.Fatalf("expected 1 purged job, got %d (err=%v)", purged, err)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := queue.ParseStatus("failed"); !ok || status != queue.StatusFailed {
		t.Fatalf("unexpected parse result %q %v", status, ok)
	}
	if _, ok := queue.ParseStatus("bogus"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}
