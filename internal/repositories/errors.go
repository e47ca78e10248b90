package repositories

import (
	"errors"
	"fmt"
)

// ErrorKind classifies store failures for the RepositoryError interface.
type ErrorKind string

const (
	// KindNotFound indicates the record does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindConflict indicates a uniqueness violation or serialization failure.
	KindConflict ErrorKind = "conflict"
	// KindUnavailable indicates a timeout or backend outage.
	KindUnavailable ErrorKind = "unavailable"
	// KindUnknown covers every other failure.
	KindUnknown ErrorKind = "unknown"
)

// Error is the RepositoryError implementation shared by the memory and SQL stores.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

var _ RepositoryError = (*Error)(nil)

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the error represents a missing record.
func (e *Error) IsNotFound() bool { return e != nil && e.Kind == KindNotFound }

// IsConflict reports whether the error represents a conflicting write.
func (e *Error) IsConflict() bool { return e != nil && e.Kind == KindConflict }

// IsUnavailable reports whether the error represents a transient backend failure.
func (e *Error) IsUnavailable() bool { return e != nil && e.Kind == KindUnavailable }

// NewError constructs a classified repository error.
func NewError(op string, kind ErrorKind, err error) *Error {
	if err == nil {
		err = errors.New(string(kind))
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// NotFound is a shorthand for a KindNotFound error with a formatted message.
func NotFound(op, format string, args ...any) *Error {
	return NewError(op, KindNotFound, fmt.Errorf(format, args...))
}

// Conflict is a shorthand for a KindConflict error with a formatted message.
func Conflict(op, format string, args ...any) *Error {
	return NewError(op, KindConflict, fmt.Errorf(format, args...))
}

// IsNotFound reports whether err carries repository not-found semantics.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err carries repository conflict semantics.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
