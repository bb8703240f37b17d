package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clipforge/internal/config"
	"clipforge/internal/queue"
	"clipforge/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	configPath := filepath.Join(testsupport.BaseDir(cfg), "clipforge.toml")
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *cliTestEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("clipforge %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func TestConfigValidateAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out := env.mustRun(t, "config", "validate")
	requireContains(t, out, "Config path: "+env.configPath)
	requireContains(t, out, "Configuration valid")

	out = env.mustRun(t, "config", "show")
	requireContains(t, out, "# "+env.configPath)
	requireContains(t, out, "[dispatcher]")
	requireContains(t, out, env.cfg.Paths.DataDir)
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(t.TempDir(), "nested", "clipforge.toml")

	out := env.mustRun(t, "config", "init", "--path", target)
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config written: %v", err)
	}

	if _, err := env.run(t, "config", "init", "--path", target); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected already exists error, got %v", err)
	}
	env.mustRun(t, "config", "init", "--path", target, "--overwrite")
}

func TestRecordingAddListShow(t *testing.T) {
	env := setupCLITestEnv(t)
	video := filepath.Join(t.TempDir(), "Speedrun Finals.mp4")
	testsupport.WriteFile(t, video, 4096)

	out := env.mustRun(t, "recording", "add", video, "--game", "Celeste")
	requireContains(t, out, "Added recording 1 (Speedrun Finals")
	requireContains(t, out, "Queued ingest job")

	out = env.mustRun(t, "recording", "list")
	requireContains(t, out, "Speedrun Finals")
	requireContains(t, out, "Celeste")
	requireContains(t, out, "4.0 KiB")

	out = env.mustRun(t, "recording", "show", "1")
	requireContains(t, out, "Recording 1")
	requireContains(t, out, "Transcript: none")
	requireContains(t, out, "Clips:     0")

	out = env.mustRun(t, "queue", "list", "--queue", "ingest")
	requireContains(t, out, "ingest")
	requireContains(t, out, string(queue.StatusQueued))

	out = env.mustRun(t, "queue", "stats")
	for _, name := range []string{"ingest", "transcription", "subtitles", "clips"} {
		requireContains(t, out, name)
	}
}

func TestRecordingAddRejectsMissingFile(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := env.run(t, "recording", "add", filepath.Join(t.TempDir(), "missing.mp4")); err == nil {
		t.Fatal("expected error for missing video")
	}
	out := env.mustRun(t, "recording", "list")
	requireContains(t, out, "No recordings")
}

func TestClipCreateValidatesRange(t *testing.T) {
	env := setupCLITestEnv(t)
	video := filepath.Join(t.TempDir(), "run.mp4")
	testsupport.WriteFile(t, video, 4096)
	env.mustRun(t, "recording", "add", video)

	_, err := env.run(t, "clip", "create", "1", "--start", "00:01:30", "--end", "00:01:00")
	if err == nil || !strings.Contains(err.Error(), "clip rejected") {
		t.Fatalf("expected rejected clip, got %v", err)
	}

	out := env.mustRun(t, "clip", "create", "1", "--start", "00:01:00", "--end", "00:01:30", "--title", "Skip")
	requireContains(t, out, "Queued clip request 1")

	out = env.mustRun(t, "queue", "list", "--queue", "clips", "--status", "queued")
	requireContains(t, out, "clips")

	out = env.mustRun(t, "clip", "list", "1")
	requireContains(t, out, "No clips")
}

func TestClipCommandsRequireKnownRecording(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := env.run(t, "clip", "list", "7"); err == nil {
		t.Fatal("expected error for unknown recording")
	}
	if _, err := env.run(t, "clip", "list", "abc"); err == nil || !strings.Contains(err.Error(), "invalid recording id") {
		t.Fatalf("expected id parse error, got %v", err)
	}
}

func TestTranscriptShowMissing(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := env.run(t, "transcript", "show", "1"); err == nil || !strings.Contains(err.Error(), "no transcript") {
		t.Fatalf("expected missing transcript error, got %v", err)
	}
}

func TestQueueEnqueueAndRetry(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, err := env.run(t, "queue", "enqueue", "bogus", "1"); err == nil || !strings.Contains(err.Error(), "unknown queue") {
		t.Fatalf("expected unknown queue error, got %v", err)
	}

	out := env.mustRun(t, "queue", "enqueue", "transcription", "5")
	requireContains(t, out, "Queued job 1 on transcription for payload 5")

	out = env.mustRun(t, "queue", "retry", "1")
	requireContains(t, out, "only failed jobs can be retried")
	requireContains(t, out, "Retried 0 of 1 jobs")

	if _, err := env.run(t, "queue", "retry"); err == nil {
		t.Fatal("expected error without ids or --failed")
	}
	if _, err := env.run(t, "queue", "list", "--status", "stuck"); err == nil || !strings.Contains(err.Error(), "unknown status") {
		t.Fatalf("expected status parse error, got %v", err)
	}
}

func TestStatusWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	out := env.mustRun(t, "status")
	requireContains(t, out, "System Checks")
	requireContains(t, out, "FFmpeg")
	requireContains(t, out, "not running")
	requireContains(t, out, "transcription")
}

func TestDaemonStopWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	out := env.mustRun(t, "daemon", "stop")
	requireContains(t, out, "Daemon is not running")
}

func TestBuildQueueStatsRowsOrdersRegisteredFirst(t *testing.T) {
	rows := buildQueueStatsRows(map[string]queue.Counts{
		"zeta":  {Failed: 1},
		"clips": {Queued: 2, Done: 3},
	}, []string{"ingest", "clips"})
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %v", rows)
	}
	if rows[0][0] != "ingest" || rows[0][1] != "0" {
		t.Fatalf("unexpected first row %v", rows[0])
	}
	if rows[1][0] != "clips" || rows[1][1] != "2" || rows[1][3] != "3" {
		t.Fatalf("unexpected clips row %v", rows[1])
	}
	if rows[2][0] != "zeta" || rows[2][4] != "1" {
		t.Fatalf("unexpected extra row %v", rows[2])
	}
}

func TestFormatClock(t *testing.T) {
	cases := map[float64]string{
		0:       "0:00.000",
		61.5:    "1:01.500",
		3725.25: "1:02:05.250",
	}
	for in, want := range cases {
		if got := formatClock(in); got != want {
			t.Fatalf("formatClock(%v) = %q, want %q", in, got, want)
		}
	}
}
