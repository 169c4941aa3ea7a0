// Package errx provides error kinds shared by the service layer.
// Handlers map kinds to HTTP status codes; the CLI maps them to exit codes.
package errx

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error.
type Kind uint8

const (
	Unknown Kind = iota
	NotFound
	Invalid
	Conflict
	Exhausted
	Persistence
	Unavailable
	Internal
)

// Error is an operation error with a kind.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

// E wraps err with an operation name and kind. A nil err yields nil.
func E(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// String returns the string representation of the error kind.
func (k Kind) String() string {
	switch k {
	case Unknown:
		return "Unknown"
	case NotFound:
		return "NotFound"
	case Invalid:
		return "Invalid"
	case Conflict:
		return "Conflict"
	case Exhausted:
		return "Exhausted"
	case Persistence:
		return "Persistence"
	case Unavailable:
		return "Unavailable"
	case Internal:
		return "Internal"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// OpOf returns the operation of the outermost *Error in err's chain.
func OpOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// ValidationError carries every message produced by a validation pass.
type ValidationError struct {
	Messages []string
}

// NewValidation returns a ValidationError, or nil when msgs is empty.
func NewValidation(msgs ...string) error {
	if len(msgs) == 0 {
		return nil
	}
	return &ValidationError{Messages: msgs}
}

func (v *ValidationError) Error() string {
	return "validation failed: " + strings.Join(v.Messages, "; ")
}

// MessagesOf returns the validation messages in err's chain, if any.
func MessagesOf(err error) []string {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Messages
	}
	return nil
}
