package rewrite

import (
	"errors"
	"fmt"
)

// Predefined errors for construction-time failures. Runtime faults from
// collaborators never surface as errors; they are absorbed into a Result.
var (
	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNilProvider indicates that no generation provider was supplied.
	ErrNilProvider = errors.New("nil llm provider")
)

// Error wraps errors with operation context.
//
// The format is: "memlens: <Op>: <Err>".
type Error struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns the formatted error message.
func (e *Error) Error() string {
	return fmt.Sprintf("memlens: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// newError wraps err with operation context, or returns nil if err is nil.
func newError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
