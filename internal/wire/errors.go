package wire

import "fmt"

// Error is a structured, wrapping error used at every package boundary
// in the substrate so that errors.Is/errors.As compose up to the
// sentinel kinds the caller matches on.
type Error struct {
	Context string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Context, e.Cause)
}

// Wrap creates a contextual error. Returns nil if cause is nil.
func Wrap(context string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Context: context, Cause: cause}
}

// Unwrap provides compatibility with errors.Unwrap().
func (e *Error) Unwrap() error {
	return e.Cause
}
