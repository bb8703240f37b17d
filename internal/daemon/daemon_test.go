package daemon_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"clipforge/internal/config"
	"clipforge/internal/daemon"
	"clipforge/internal/logging"
	"clipforge/internal/pipeline"
	"clipforge/internal/queue"
	"clipforge/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	reg := prometheus.NewRegistry()
	p, err := pipeline.Open(context.Background(), cfg, logging.NewNop(), reg)
	if err != nil {
		t.Fatalf("open pipeline: %v", err)
	}
	d, err := daemon.New(cfg, p, reg, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func get(t *testing.T, d *daemon.Daemon, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + d.OpsAddress() + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestSecondDaemonCannotStart(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Paths.OpsBind = ""
	first := newDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}

	second := newDaemon(t, cfg)
	err := second.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock contention error, got %v", err)
	}

	first.Stop()
	if first.Running() {
		t.Fatal("expected first daemon stopped")
	}
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("second start after release: %v", err)
	}
}

func TestStartRemovesStaleScratch(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Paths.OpsBind = ""
	stale := filepath.Join(cfg.Paths.WorkDir, "subtitles_1_source_1_1_1.mp4")
	fresh := filepath.Join(cfg.Paths.WorkDir, "subtitles_2_source_1_1_2.mp4")
	testsupport.WriteFile(t, stale, 10)
	testsupport.WriteFile(t, fresh, 10)
	old := time.Now().Add(-time.Duration(cfg.Workspace.StaleAfterHours+1) * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	d := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected stale scratch removed, stat err=%v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("expected fresh scratch kept: %v", err)
	}
}

func TestOpsEndpoints(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	d := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if d.OpsAddress() == "" {
		t.Fatal("expected ops server bound")
	}

	code, body := get(t, d, "/healthz")
	if code != http.StatusOK || !strings.Contains(body, `"transcription"`) {
		t.Fatalf("healthz = %d %s", code, body)
	}

	code, body = get(t, d, "/status")
	if code != http.StatusOK {
		t.Fatalf("status = %d %s", code, body)
	}
	var status daemon.Status
	if err := json.Unmarshal([]byte(body), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.LockPath != cfg.LockPath() {
		t.Fatalf("unexpected status %+v", status)
	}

	code, body = get(t, d, "/queue?status=bogus")
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d %s", code, body)
	}
	code, _ = get(t, d, "/queue/424242")
	if code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing job, got %d", code)
	}
}

func TestOpsQueueAndMetricsReflectJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	reg := prometheus.NewRegistry()
	p, err := pipeline.Open(context.Background(), cfg, logging.NewNop(), reg)
	if err != nil {
		t.Fatal(err)
	}
	d, err := daemon.New(cfg, p, reg, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	// No recording 999 exists, so the ingest job fails terminally.
	job, err := p.Dispatcher.Enqueue(context.Background(), "ingest", 999)
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := p.Jobs.Get(context.Background(), job.ID)
		if err == nil && got.Status == queue.StatusFailed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for failed job, last=%+v err=%v", got, err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	code, body := get(t, d, "/queue?queue=ingest&status=failed")
	if code != http.StatusOK {
		t.Fatalf("queue = %d %s", code, body)
	}
	var listing struct {
		Jobs []struct {
			ID        int64  `json:"id"`
			Status    string `json:"status"`
			ErrorKind string `json:"error_kind"`
		} `json:"jobs"`
	}
	if err := json.Unmarshal([]byte(body), &listing); err != nil {
		t.Fatal(err)
	}
	if len(listing.Jobs) != 1 || listing.Jobs[0].ID != job.ID || listing.Jobs[0].ErrorKind != "not_found" {
		t.Fatalf("unexpected listing %+v", listing)
	}

	want := []string{
		`clipforge_jobs_enqueued_total{queue="ingest"} 1`,
		`clipforge_jobs_total{outcome="failed",queue="ingest"} 1`,
	}
	var metrics string
	for attempt := 0; attempt < 50; attempt++ {
		_, metrics = get(t, d, "/metrics")
		if containsAll(metrics, want) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("metrics missing %v:\n%s", want, metrics)
}

func containsAll(s string, parts []string) bool {
	for _, part := range parts {
		if !strings.Contains(s, part) {
			return false
		}
	}
	return true
}
