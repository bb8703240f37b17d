package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path with size bytes of filler, enough to stand in for a
// video. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		t.Fatalf("size %s: %v", path, err)
	}
	header := []byte("clipforge")
	if _, err := f.WriteAt(header[:min(size, int64(len(header)))], 0); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// StubTranscript writes body as the JSON the whisper-cli stub emits and
// points CLIPFORGE_STUB_TRANSCRIPT at it for the rest of the test.
func StubTranscript(t testing.TB, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcript.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write transcript fixture: %v", err)
	}
	t.Setenv("CLIPFORGE_STUB_TRANSCRIPT", path)
	return path
}
