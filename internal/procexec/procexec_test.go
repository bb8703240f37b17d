package procexec

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clipforge/internal/logging"
	"clipforge/internal/services"
)

func newTestRunner() *ExecRunner {
	return &ExecRunner{Logger: logging.NewNop(), WaitDelay: time.Second}
}

func TestRunCapturesOutput(t *testing.T) {
	res, err := newTestRunner().Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err >&2"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(string(res.Stdout)) != "out" || strings.TrimSpace(string(res.Stderr)) != "err" {
		t.Fatalf("unexpected output %q / %q", res.Stdout, res.Stderr)
	}
	if res.ExitCode != 0 || res.Duration <= 0 {
		t.Fatalf("unexpected result %#v", res)
	}
}

func TestRunNonZeroExitIsExternalToolError(t *testing.T) {
	res, err := newTestRunner().Run(context.Background(), Command{
		Name:  "sh",
		Args:  []string{"-c", "echo 'Invalid data found' >&2; exit 3"},
		Stage: "subtitles",
	})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", res.ExitCode)
	}
	if !strings.Contains(err.Error(), "Invalid data found") || !strings.Contains(err.Error(), "subtitles") {
		t.Fatalf("expected stderr and stage in error, got %v", err)
	}
	if !services.Retryable(err) {
		t.Fatal("expected process errors to be retryable")
	}
}

func TestRunTimeoutKillsProcessGroup(t *testing.T) {
	started := time.Now()
	_, err := newTestRunner().Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "sleep 30 & wait"},
		Timeout: 200 * time.Millisecond,
	})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > 3*time.Second {
		t.Fatalf("timeout took %s; process group was not killed", elapsed)
	}
}

func TestRunParentCancellationIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_, err := newTestRunner().Run(ctx, Command{
		Name:    "sh",
		Args:    []string{"-c", "sleep 30"},
		Timeout: time.Minute,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, services.ErrTimeout) {
		t.Fatal("parent cancellation must not be reported as a timeout")
	}
}

func TestRunMissingBinary(t *testing.T) {
	_, err := newTestRunner().Run(context.Background(), Command{Name: filepath.Join(t.TempDir(), "nope")})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if _, err := newTestRunner().Run(context.Background(), Command{Name: " "}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for empty name, got %v", err)
	}
}

func TestVerifyOutput(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "small.mp4")
	if err := os.WriteFile(small, []byte("tiny"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := VerifyOutput("clips", small, 1000); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected undersized output error, got %v", err)
	}
	if _, err := VerifyOutput("clips", filepath.Join(dir, "missing.mp4"), 1); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected missing output error, got %v", err)
	}
	size, err := VerifyOutput("clips", small, 4)
	if err != nil || size != 4 {
		t.Fatalf("expected size 4, got %d (err=%v)", size, err)
	}
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	buf := newTailBuffer(8)
	buf.Write([]byte("abcdef"))
	buf.Write([]byte("ghij"))
	if got := string(buf.Bytes()); got != "cdefghij" {
		t.Fatalf("unexpected tail %q", got)
	}
	buf.Write(bytes.Repeat([]byte("z"), 20))
	if got := string(buf.Bytes()); got != "zzzzzzzz" {
		t.Fatalf("unexpected tail %q", got)
	}
}

func TestExcerptTruncatesLongStderr(t *testing.T) {
	long := strings.Repeat("x", stderrExcerpt+100) + "END"
	got := excerpt([]byte(long))
	if !strings.HasPrefix(got, "...") || !strings.HasSuffix(got, "END") {
		t.Fatalf("unexpected excerpt %q", got[:20])
	}
	if excerpt(nil) != "no stderr output" {
		t.Fatal("expected placeholder for empty stderr")
	}
}
