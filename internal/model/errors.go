package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrEmptyInput is returned when a name is empty or has nothing parseable left
// after cleanup. Ambiguous names are not errors; they parse with low confidence.
var ErrEmptyInput = eris.New("empty input")

// ErrTerminalState is returned when a confirmed or rejected identity candidate
// is asked to change state or be rescored.
var ErrTerminalState = eris.New("candidate is in a terminal state")

// ValidationError reports malformed input rejected at a package boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a *ValidationError.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
