package daemonrun

import (
	"os"
	"path/filepath"
	"testing"

	"clipforge/internal/testsupport"
)

func TestPIDFileRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if got := ReadPID(cfg); got != 0 {
		t.Fatalf("expected no pid before write, got %d", got)
	}
	if err := writePIDFile(filepath.Join(cfg.Paths.DataDir, "clipforge.pid")); err != nil {
		t.Fatal(err)
	}
	if got := ReadPID(cfg); got != os.Getpid() {
		t.Fatalf("ReadPID = %d, want %d", got, os.Getpid())
	}
}

func TestEnsureCurrentLogPointerReplacesLink(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "clipforge-1.log")
	second := filepath.Join(dir, "clipforge-2.log")
	for _, p := range []string{first, second} {
		if err := os.WriteFile(p, []byte(filepath.Base(p)), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatal(err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "clipforge.log"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "clipforge-2.log" {
		t.Fatalf("pointer resolves to %q", data)
	}
}
