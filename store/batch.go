package store

import (
	"context"
	"errors"
	"time"
)

// BatchOptions controls PutAll and DeleteAll.
type BatchOptions struct {
	// Size is the chunk size, at most MaxBatchSize.
	Size int

	// Pause is the yield between consecutive chunks.
	Pause time.Duration
}

// PutAll writes rows in chunks of opts.Size, one chunk at a time, pausing
// opts.Pause between chunks. Unprocessed rows are collected and returned
// in a *PartialBatchError.
func PutAll(ctx context.Context, a Adapter, rows []Row, opts BatchOptions) error {
	left, err := writeAll(ctx, rows, opts, a.BatchPut)
	if err != nil || len(left) > 0 {
		return &PartialBatchError{Rows: left, Cause: unwrapPartial(err)}
	}
	return nil
}

// DeleteAll is PutAll for deletes.
func DeleteAll(ctx context.Context, a Adapter, keys []Key, opts BatchOptions) error {
	left, err := writeAll(ctx, keys, opts, a.BatchDelete)
	if err != nil || len(left) > 0 {
		return &PartialBatchError{Keys: left, Cause: unwrapPartial(err)}
	}
	return nil
}

// writeAll returns every item that was not written: the unprocessed items of
// each chunk, plus the failed chunk and everything after it when a chunk
// errors.
func writeAll[T any](ctx context.Context, items []T, opts BatchOptions, send func(context.Context, []T) ([]T, error)) ([]T, error) {
	size := opts.Size
	if size < 1 || size > MaxBatchSize {
		size = MaxBatchSize
	}

	var left []T
	for start := 0; start < len(items); start += size {
		if start > 0 {
			if err := pause(ctx, opts.Pause); err != nil {
				return append(left, items[start:]...), err
			}
		}
		end := min(start+size, len(items))

		unprocessed, err := send(ctx, items[start:end])
		if err != nil {
			var partial *PartialBatchError
			if errors.As(err, &partial) {
				left = append(left, unprocessed...)
				continue
			}
			return append(left, items[start:]...), err
		}
		left = append(left, unprocessed...)
	}
	return left, nil
}

// unwrapPartial avoids nesting one PartialBatchError in another.
func unwrapPartial(err error) error {
	var partial *PartialBatchError
	if errors.As(err, &partial) {
		return partial.Cause
	}
	return err
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
