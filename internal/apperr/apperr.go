// Package apperr defines the error kinds callers branch on. Concrete errors
// wrap one of these sentinels with fmt.Errorf and %w.
package apperr

import (
	"errors"
)

var (
	// ErrValidation marks bad user input: malformed codes, long descriptions,
	// unsupported media.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an absent record.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized marks a caller lacking the required role or membership.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTransport marks a failure talking to the messaging platform.
	ErrTransport = errors.New("transport failure")
	// ErrStorage marks a persistence failure. It must never be read as
	// ErrNotFound.
	ErrStorage = errors.New("storage failure")
)

// Storage wraps err as a storage failure with the given operation name.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: ErrStorage, op: op, err: err}
}

// Transport wraps err as a transport failure with the given operation name.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: ErrTransport, op: op, err: err}
}

type kindError struct {
	kind error
	op   string
	err  error
}

func (e *kindError) Error() string {
	return e.op + ": " + e.err.Error()
}

// Is lets errors.Is match both the kind sentinel and the wrapped cause.
func (e *kindError) Is(target error) bool {
	return target == e.kind
}

func (e *kindError) Unwrap() error {
	return e.err
}
