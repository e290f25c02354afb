package store

import (
	"errors"
	"fmt"
)

// Error kinds returned by the store. Use errors.Is to test for them.
var (
	// ErrInvalidIdentifier is returned when a table identifier cannot be sanitized or parsed.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrPersistenceFailure is returned when a write fails and its transaction was rolled back.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrNotFound is returned when a conversation or its table does not exist.
	ErrNotFound = errors.New("not found")
)

// Error carries an error kind together with the operation and the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewPersistenceError wraps a failed write.
func NewPersistenceError(op string, err error) error {
	return &Error{Kind: ErrPersistenceFailure, Op: op, Err: err}
}

// NewNotFoundError reports a missing conversation or table.
func NewNotFoundError(op string, err error) error {
	return &Error{Kind: ErrNotFound, Op: op, Err: err}
}

// NewInvalidIdentifierError reports an identifier rejected by the sanitizer.
func NewInvalidIdentifierError(op string, err error) error {
	return &Error{Kind: ErrInvalidIdentifier, Op: op, Err: err}
}

// HasKind reports whether err already carries one of the store error kinds.
func HasKind(err error) bool {
	return errors.Is(err, ErrInvalidIdentifier) || errors.Is(err, ErrPersistenceFailure) || errors.Is(err, ErrNotFound)
}
