package metadata

import (
	"fmt"

	"github.com/jackzampolin/narrate/internal/book"
)

// UnresolvedMappingError reports a target field with no value. Fatal is set
// when the field is required by the target schema or the mapping config.
type UnresolvedMappingError struct {
	Target string
	Field  string
	Source string
	Reason string
	Fatal  bool
}

func (e *UnresolvedMappingError) Error() string {
	msg := fmt.Sprintf("%s.%s unresolved", e.Target, e.Field)
	if e.Source != "" {
		msg += " (source " + e.Source + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Unwrap lets a fatal error match book.ErrMissingRequiredMetadata.
func (e *UnresolvedMappingError) Unwrap() error {
	if e.Fatal {
		return book.ErrMissingRequiredMetadata
	}
	return nil
}
