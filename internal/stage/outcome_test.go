package stage

import (
	"errors"
	"testing"

	"clipforge/internal/services"
)

func TestRefRoundTrip(t *testing.T) {
	ref := Ref{Kind: "clip", ID: 42}
	if ref.String() != "clip:42" {
		t.Fatalf("unexpected ref string %q", ref.String())
	}
	parsed, err := ParseRef(ref.String())
	if err != nil || parsed != ref {
		t.Fatalf("ParseRef = %+v (err=%v)", parsed, err)
	}
	if empty, err := ParseRef(""); err != nil || !empty.IsZero() {
		t.Fatalf("expected zero ref, got %+v (err=%v)", empty, err)
	}
}

func TestParseRefRejectsMalformed(t *testing.T) {
	for _, input := range []string{"clip", ":4", "clip:x"} {
		if _, err := ParseRef(input); !errors.Is(err, services.ErrParse) {
			t.Fatalf("ParseRef(%q) expected ErrParse, got %v", input, err)
		}
	}
}

func TestOutcome(t *testing.T) {
	ok := Succeeded(Ref{Kind: "recording", ID: 1})
	if !ok.OK || ok.Message() != "" {
		t.Fatalf("unexpected success outcome %+v", ok)
	}
	failed := Failed(services.Wrap(services.ErrValidation, "clips", "validate", "Title can't be blank", nil))
	if failed.OK || failed.Message() != "validation error: clips: validate: Title can't be blank" {
		t.Fatalf("unexpected failure message %q", failed.Message())
	}
}
