package failure

import (
	"errors"
	"fmt"
)

// Kind classifies how a caller is expected to react to an error
type Kind string

const (
	// KindNotFound is a soft outcome: the caller branches on it
	KindNotFound Kind = "NOT_FOUND"
	// KindConflict is a storage race detected through a revision mismatch
	KindConflict Kind = "CONFLICT"
	// KindProgramming is a caller defect that is never recoverable at runtime
	KindProgramming Kind = "PROGRAMMING_ERROR"
)

// Error is the error type returned by the workflow core
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// for every not-found code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is
var (
	ErrNotFound    = &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: "not found"}
	ErrConflict    = &Error{Kind: KindConflict, Code: "CONFLICT", Message: "revision conflict"}
	ErrProgramming = &Error{Kind: KindProgramming, Code: "PROGRAMMING_ERROR", Message: "programming error"}
)

// NotFound creates a not-found error for the given code
func NotFound(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a revision conflict error
func Conflict(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Programming creates an error describing a caller defect
func Programming(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindProgramming, Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if the error is a revision conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsProgramming checks if the error is a programming error
func IsProgramming(err error) bool {
	return errors.Is(err, ErrProgramming)
}
