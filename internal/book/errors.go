package book

import (
	"errors"
	"strings"
)

// Structural error kinds. Use errors.Is against these to classify a
// *StructuralError.
var (
	ErrUnsupportedContainer = errors.New("unsupported container")
	ErrMalformedSpine       = errors.New("malformed spine")
	ErrDanglingReference    = errors.New("dangling reference")
	ErrDuplicateUnit        = errors.New("duplicate unit id")
	ErrUnitOrder            = errors.New("content out of spine order")
	ErrOrphanQuery          = errors.New("orphan query")
	ErrInconsistentOrder    = errors.New("inconsistent order")
)

// ErrMissingRequiredMetadata is returned when a field needed downstream,
// such as the title, is absent.
var ErrMissingRequiredMetadata = errors.New("missing required metadata")

// StructuralError reports a violation of the book's structure. It is always
// fatal: the stage that returns it writes no artifact.
type StructuralError struct {
	Kind   error
	Path   string // container path of the offending resource, if known
	UnitID string // offending unit, if known
	Detail string
}

func (e *StructuralError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.Path != "" {
		sb.WriteString(" at ")
		sb.WriteString(e.Path)
	}
	if e.UnitID != "" {
		sb.WriteString(" (unit ")
		sb.WriteString(e.UnitID)
		sb.WriteString(")")
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	return sb.String()
}

func (e *StructuralError) Unwrap() error { return e.Kind }

// IsStructural reports whether err wraps a *StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}
