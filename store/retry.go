package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds retries of throttled requests.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// BaseBackoff is the first retry delay.
	BaseBackoff time.Duration

	// MaxBackoff caps a single delay (0 = 20 x BaseBackoff).
	MaxBackoff time.Duration
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	base := p.BaseBackoff
	if base <= 0 {
		base = DefaultBaseBackoff
	}
	ceiling := p.MaxBackoff
	if ceiling <= 0 {
		ceiling = 20 * base
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = ceiling
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// errUnprocessed keeps the batch retry loop going while items remain.
var errUnprocessed = errors.New("unprocessed batch items")

type retrying struct {
	next   Adapter
	policy RetryPolicy
	logger *slog.Logger
}

// Retrying wraps next so that ErrThrottled is retried with exponential
// backoff. Once the attempt budget is spent the error becomes
// ErrUnavailable. Batch calls resend exactly the unprocessed items and
// return *PartialBatchError if some remain.
func Retrying(next Adapter, policy RetryPolicy, logger *slog.Logger) Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &retrying{next: next, policy: policy, logger: logger}
}

func (r *retrying) do(ctx context.Context, op string, fn func() error) error {
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrThrottled) {
			r.logger.DebugContext(ctx, "throttled, backing off", "op", op, "attempt", attempts)
			return err
		}
		return backoff.Permanent(err)
	}, r.policy.backOff(ctx))

	if err != nil && errors.Is(err, ErrThrottled) {
		r.logger.WarnContext(ctx, "retry budget exhausted", "op", op, "attempts", attempts)
		return fmt.Errorf("%w: %s after %d attempts: %w", ErrUnavailable, op, attempts, err)
	}
	return err
}

func (r *retrying) Get(ctx context.Context, key Key) (Row, error) {
	var row Row
	err := r.do(ctx, "get", func() error {
		var err error
		row, err = r.next.Get(ctx, key)
		return err
	})
	return row, err
}

func (r *retrying) QueryByPartitionPrefix(ctx context.Context, pk, skPrefix string, opts QueryOptions) ([]Row, error) {
	var rows []Row
	err := r.do(ctx, "query", func() error {
		var err error
		rows, err = r.next.QueryByPartitionPrefix(ctx, pk, skPrefix, opts)
		return err
	})
	return rows, err
}

func (r *retrying) QueryBySecondaryPrefix(ctx context.Context, pk, skPrefix string, opts QueryOptions) ([]Row, error) {
	var rows []Row
	err := r.do(ctx, "query secondary", func() error {
		var err error
		rows, err = r.next.QueryBySecondaryPrefix(ctx, pk, skPrefix, opts)
		return err
	})
	return rows, err
}

func (r *retrying) BatchPut(ctx context.Context, rows []Row) ([]Row, error) {
	pending, err := retryBatch(ctx, r, "batch put", rows, r.next.BatchPut)
	if errors.Is(err, errUnprocessed) {
		return pending, &PartialBatchError{Rows: pending, Cause: err}
	}
	return pending, err
}

func (r *retrying) BatchDelete(ctx context.Context, keys []Key) ([]Key, error) {
	pending, err := retryBatch(ctx, r, "batch delete", keys, r.next.BatchDelete)
	if errors.Is(err, errUnprocessed) {
		return pending, &PartialBatchError{Keys: pending, Cause: err}
	}
	return pending, err
}

func retryBatch[T any](ctx context.Context, r *retrying, op string, items []T, send func(context.Context, []T) ([]T, error)) ([]T, error) {
	pending := items
	err := r.do(ctx, op, func() error {
		unprocessed, err := send(ctx, pending)
		if err != nil {
			return err
		}
		pending = unprocessed
		if len(pending) > 0 {
			r.logger.DebugContext(ctx, "resending unprocessed items", "op", op, "count", len(pending))
			return fmt.Errorf("%w: %w", ErrThrottled, errUnprocessed)
		}
		return nil
	})
	if err != nil {
		return pending, err
	}
	return nil, nil
}
