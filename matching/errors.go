package matching

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotReady is matched by every "requester cannot be matched yet" signal.
	ErrNotReady = errors.New("requester not ready to match")

	// ErrIncompleteProfile means the requester has no profile or no preferences.
	ErrIncompleteProfile = fmt.Errorf("%w: incomplete profile", ErrNotReady)

	// ErrNoSubjects means the requester has not added any subject yet.
	ErrNoSubjects = fmt.Errorf("%w: no subjects", ErrNotReady)

	// ErrMalformedRecord marks a stored row that cannot be decoded.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrUnknownTag is returned for values outside a closed vocabulary.
	ErrUnknownTag = fmt.Errorf("%w: unknown tag", ErrMalformedRecord)
)

// StoreError wraps a record store failure that aborted a ranking pass.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("record store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may try the same pass again. Only a
// caller-side cancellation is final.
func (e *StoreError) Retryable() bool {
	return !errors.Is(e.Err, context.Canceled)
}

// AsStoreError wraps err as a StoreError for op unless it already is one.
func AsStoreError(op string, err error) error {
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsRetryable reports whether err is a store failure worth retrying.
func IsRetryable(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Retryable()
}

func isErr(err, target error) bool {
	return errors.Is(err, target)
}

func isMalformed(err error) bool {
	return errors.Is(err, ErrMalformedRecord)
}

// contextError returns the context error err carries, if any.
func contextError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return context.DeadlineExceeded
	}
	return nil
}
