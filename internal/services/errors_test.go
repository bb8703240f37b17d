package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"clipforge/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "subtitles", "burn", "ffmpeg exited 1", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"subtitles", "burn", "ffmpeg exited 1", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		retry bool
		kind  string
	}{
		{"validation", services.Wrap(services.ErrValidation, "clips", "validate", "bad range", nil), false, "validation"},
		{"parse", services.Wrap(services.ErrParse, "transcription", "parse", "unknown schema", nil), false, "parse"},
		{"size", services.Wrap(services.ErrSizeConstraint, "subtitles", "ladder", "too large", nil), false, "size_constraint"},
		{"not found", services.Wrap(services.ErrNotFound, "subtitles", "load", "missing", nil), false, "not_found"},
		{"process", services.Wrap(services.ErrExternalTool, "clips", "encode", "exit 1", nil), true, "process"},
		{"timeout", services.Wrap(services.ErrTimeout, "transcription", "recognize", "ceiling", nil), true, "timeout"},
		{"conflict", services.Wrap(services.ErrConflict, "subtitles", "swap", "version", nil), true, "conflict"},
		{"plain", errors.New("disk hiccup"), true, "transient"},
		{"double wrapped", fmt.Errorf("outer: %w", services.Wrap(services.ErrParse, "", "", "", nil)), false, "parse"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Retryable(tc.err); got != tc.retry {
				t.Fatalf("Retryable = %v, want %v", got, tc.retry)
			}
			if got := services.Kind(tc.err); got != tc.kind {
				t.Fatalf("Kind = %q, want %q", got, tc.kind)
			}
		})
	}
	if services.Retryable(nil) {
		t.Fatal("nil error must not be retryable")
	}
}
