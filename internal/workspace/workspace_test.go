package workspace_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"clipforge/internal/logging"
	"clipforge/internal/workspace"
)

func newManager(t *testing.T) *workspace.Manager {
	t.Helper()
	m, err := workspace.NewManager(t.TempDir(), 0, logging.NewNop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestScopePathNaming(t *testing.T) {
	m := newManager(t)
	scope, err := m.Open("subtitles", 42)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer scope.Close()

	path := scope.Path("burn output", "mp4")
	base := filepath.Base(path)
	if filepath.Dir(path) != m.Root() {
		t.Fatalf("expected path under root, got %s", path)
	}
	if !strings.HasPrefix(base, "subtitles_42_burn-output_") || !strings.HasSuffix(base, ".mp4") {
		t.Fatalf("unexpected name %q", base)
	}
	stage, owner, ok := workspace.OwnerOf(path)
	if !ok || stage != "subtitles" || owner != 42 {
		t.Fatalf("OwnerOf(%q) = %q %d %v", base, stage, owner, ok)
	}
}

func TestScopePathsAreUniqueAcrossGoroutines(t *testing.T) {
	m := newManager(t)
	scope, _ := m.Open("clips", 1)
	defer scope.Close()

	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := scope.Path("source", ".mp4")
			mu.Lock()
			defer mu.Unlock()
			if seen[p] {
				t.Errorf("duplicate path %s", p)
			}
			seen[p] = true
		}()
	}
	wg.Wait()
	if len(scope.Paths()) != 32 {
		t.Fatalf("expected 32 tracked paths, got %d", len(scope.Paths()))
	}
}

func TestCloseRemovesEverythingOnEveryExitPath(t *testing.T) {
	m := newManager(t)

	run := func(fail bool) (paths []string, err error) {
		scope, openErr := m.Open("transcription", 7)
		if openErr != nil {
			return nil, openErr
		}
		defer scope.Close()

		wav := scope.Path("audio", ".wav")
		prefix := scope.Path("whisper", "")
		json := prefix + ".json"
		scope.Track(json)
		for _, p := range []string{wav, json} {
			if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
				return nil, err
			}
		}
		paths = []string{wav, prefix, json}
		if fail {
			return paths, errors.New("recognizer failed")
		}
		return paths, nil
	}

	for _, fail := range []bool{false, true} {
		paths, err := run(fail)
		if fail && err == nil {
			t.Fatal("expected failure")
		}
		for _, p := range paths {
			if _, statErr := os.Stat(p); !os.IsNotExist(statErr) {
				t.Fatalf("expected %s removed (fail=%v), stat err=%v", p, fail, statErr)
			}
		}
	}

	entries, _ := os.ReadDir(m.Root())
	if len(entries) != 0 {
		t.Fatalf("expected empty work dir, found %d entries", len(entries))
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	m := newManager(t)
	scope, _ := m.Open("ingest", 1)
	path := scope.Path("probe", ".json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := scope.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := scope.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestOpenRequiresStage(t *testing.T) {
	m := newManager(t)
	if _, err := m.Open("  ", 1); err == nil {
		t.Fatal("expected error for blank stage")
	}
}

func TestCleanStale(t *testing.T) {
	m := newManager(t)
	old := filepath.Join(m.Root(), "subtitles_1_burn_1_1_1.mp4")
	fresh := filepath.Join(m.Root(), "clips_2_clip_1_1_2.mp4")
	foreign := filepath.Join(m.Root(), "notes.txt")
	for _, p := range []string{old, fresh, foreign} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-72 * time.Hour)
	for _, p := range []string{old, foreign} {
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatal(err)
		}
	}

	result := m.CleanStale(context.Background(), 48*time.Hour)
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(result.Removed) != 1 || result.Removed[0] != old {
		t.Fatalf("unexpected removed set: %v", result.Removed)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh file removed: %v", err)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Fatalf("entry not named by a scope removed: %v", err)
	}
}

func TestFreeBytes(t *testing.T) {
	m := newManager(t)
	free, err := m.FreeBytes()
	if err != nil {
		t.Fatalf("FreeBytes: %v", err)
	}
	if free == 0 {
		t.Fatal("expected non-zero free space on temp filesystem")
	}
}
