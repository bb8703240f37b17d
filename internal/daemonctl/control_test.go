package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/daemon"
)

func TestNewClientRequiresBind(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.OpsBind = " "
	if _, err := NewClient(&cfg); err == nil {
		t.Fatal("expected error for empty bind")
	}
	cfg.Paths.OpsBind = ":7481"
	client, err := NewClient(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	if client.BaseURL != "http://127.0.0.1:7481" {
		t.Fatalf("unexpected base url %q", client.BaseURL)
	}
}

func TestStatusDecodesDaemonStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(daemon.Status{Running: true, PID: 42, LockPath: "/tmp/clipforge.lock"})
	}))
	defer srv.Close()

	client := &Client{BaseURL: srv.URL, HTTP: srv.Client()}
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !status.Running || status.PID != 42 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestStatusReportsNotRunning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := &Client{BaseURL: url, HTTP: &http.Client{Timeout: time.Second}}
	if _, err := client.Status(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestWaitReadyPollsUntilRunning(t *testing.T) {
	calls := make(chan struct{}, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls <- struct{}{}
		_ = json.NewEncoder(w).Encode(daemon.Status{Running: len(calls) >= 2})
	}))
	defer srv.Close()

	client := &Client{BaseURL: srv.URL, HTTP: srv.Client()}
	status, err := client.WaitReady(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !status.Running {
		t.Fatal("expected running status")
	}
}

func TestWaitReadyTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := &Client{BaseURL: srv.URL, HTTP: srv.Client()}
	_, err := client.WaitReady(context.Background(), 300*time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "failed to start") {
		t.Fatalf("expected start failure, got %v", err)
	}
}

func TestStopWithoutPIDFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	if err := Stop(&cfg, time.Second); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := Launch("", LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable path")
	}
}
