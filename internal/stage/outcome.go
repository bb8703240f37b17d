package stage

import (
	"fmt"
	"strconv"
	"strings"

	"clipforge/internal/services"
)

// Ref points at the record a stage produced or updated.
type Ref struct {
	Kind string
	ID   int64
}

// String renders the ref as "kind:id", the form stored on job rows.
func (r Ref) String() string {
	if r.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// IsZero reports whether the ref points at nothing.
func (r Ref) IsZero() bool {
	return r.Kind == "" && r.ID == 0
}

// ParseRef parses the "kind:id" form produced by String.
func ParseRef(value string) (Ref, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Ref{}, nil
	}
	kind, idText, ok := strings.Cut(value, ":")
	if !ok || kind == "" {
		return Ref{}, services.Wrap(services.ErrParse, "stage", "parse ref", fmt.Sprintf("malformed ref %q", value), nil)
	}
	id, err := strconv.ParseInt(idText, 10, 64)
	if err != nil {
		return Ref{}, services.Wrap(services.ErrParse, "stage", "parse ref", fmt.Sprintf("malformed ref %q", value), err)
	}
	return Ref{Kind: kind, ID: id}, nil
}

// Outcome is the uniform result of a stage or a synchronous request.
type Outcome struct {
	OK    bool
	Ref   Ref
	Error error
}

// Succeeded builds a successful outcome.
func Succeeded(ref Ref) Outcome {
	return Outcome{OK: true, Ref: ref}
}

// Failed builds a failed outcome.
func Failed(err error) Outcome {
	return Outcome{Error: err}
}

// Message returns the failure text, or "" for a success.
func (o Outcome) Message() string {
	if o.OK {
		return ""
	}
	return services.Message(o.Error)
}
