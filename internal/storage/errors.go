package storage

import (
	"context"
	"errors"
)

// Error taxonomy. Every fault in the system maps to exactly one of these
// kinds; callers classify with errors.Is and never inspect error strings.
var (
	// ErrInvalid marks input that violates an invariant (dimension, depth,
	// empty field, illegal transition). Non-retryable.
	ErrInvalid = errors.New("invalid input")

	// ErrConflict marks a duplicate unique key or an illegal transition
	// target. Non-retryable.
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks a referenced id that is absent.
	ErrNotFound = errors.New("not found")

	// ErrBusy marks backpressure. Retryable with backoff.
	ErrBusy = errors.New("busy")

	// ErrUnavailable marks an external provider, or the instance itself,
	// not serving (e.g. during reindex). Retryable.
	ErrUnavailable = errors.New("unavailable")

	// ErrTimeout marks a deadline exceeded. Retryable at caller discretion.
	ErrTimeout = errors.New("timeout")

	// ErrCorrupt marks a detected inconsistency between stores.
	// VerifyConsistency returns it as is; boswelld rebuilds the vector index
	// when it sees it at startup, and boswell-admin exits with code 3.
	ErrCorrupt = errors.New("corrupt")

	// ErrUnsupported marks a capability the bound provider lacks.
	ErrUnsupported = errors.New("unsupported")
)

// Retryable reports whether err is one of the retryable kinds (Busy,
// Unavailable, Timeout). Context errors count as timeouts.
func Retryable(err error) bool {
	return errors.Is(err, ErrBusy) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Fatal reports whether err should stop processing of the one input it
// concerns (Invalid, Conflict, NotFound, Unsupported). Background workers
// log these and continue.
func Fatal(err error) bool {
	return errors.Is(err, ErrInvalid) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnsupported)
}
