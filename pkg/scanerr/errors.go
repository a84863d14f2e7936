// Package scanerr defines the structured errors surfaced by the scan
// comparison pipeline. Every user-visible failure carries a kind and a message.
package scanerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// InputShape marks images or masks with unusable dimensions
	InputShape Kind = "input_shape"

	// RegistrationFailure marks an optimizer that produced no usable transform
	RegistrationFailure Kind = "registration_failure"

	// ModelUnavailable marks a missing or unloadable detection model
	ModelUnavailable Kind = "model_unavailable"

	// InvalidArgument marks bad option values
	InvalidArgument Kind = "invalid_argument"

	// IO marks decode, encode and file errors
	IO Kind = "io"
)

// Error is the single structured error type of the pipeline.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := string(e.Kind)
	if e.Op != "" {
		s += ": " + e.Op
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so that
// errors.Is(err, &Error{Kind: ModelUnavailable}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// New builds an error of the given kind.
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Shape reports an unusable image or mask.
func Shape(op, format string, args ...interface{}) *Error {
	return New(InputShape, op, format, args...)
}

// Registration reports a failed alignment.
func Registration(op, format string, args ...interface{}) *Error {
	return New(RegistrationFailure, op, format, args...)
}

// Unavailable reports a missing detection model.
func Unavailable(op string, err error) *Error {
	return Wrap(ModelUnavailable, op, err)
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
