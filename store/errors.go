package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Adapter.Get when no row exists under the key.
	ErrNotFound = errors.New("arbor: row not found")

	// ErrThrottled signals store backpressure. It is retried with backoff.
	ErrThrottled = errors.New("arbor: request throttled")

	// ErrUnavailable is returned once a throttled operation exhausted its
	// retry budget.
	ErrUnavailable = errors.New("arbor: store unavailable")

	// ErrPartialBatch matches *PartialBatchError.
	ErrPartialBatch = errors.New("arbor: batch partially processed")

	// ErrBatchTooLarge is returned when a batch exceeds MaxBatchSize.
	ErrBatchTooLarge = errors.New("arbor: batch exceeds item ceiling")

	// ErrInvalidRow is returned when a row violates the key layout.
	ErrInvalidRow = errors.New("arbor: invalid row")
)

// PartialBatchError reports the items a batch write or delete left
// unprocessed. Exactly these items must be retried.
type PartialBatchError struct {
	// Rows holds unprocessed puts.
	Rows []Row

	// Keys holds unprocessed deletes.
	Keys []Key

	// Cause is the error that stopped processing, if any.
	Cause error
}

func (e *PartialBatchError) Error() string {
	n := len(e.Rows) + len(e.Keys)
	if e.Cause != nil {
		return fmt.Sprintf("arbor: %d batch items unprocessed: %v", n, e.Cause)
	}
	return fmt.Sprintf("arbor: %d batch items unprocessed", n)
}

func (e *PartialBatchError) Is(target error) bool {
	return target == ErrPartialBatch
}

func (e *PartialBatchError) Unwrap() error {
	return e.Cause
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
