// Package storetest provides store.Adapter implementations for tests.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/jacentio/arbor/store"
	"github.com/jacentio/arbor/store/badgerkv"
)

// NewMemory returns an empty in-memory adapter closed at test cleanup.
func NewMemory(tb testing.TB) *badgerkv.Adapter {
	tb.Helper()
	a, err := badgerkv.Open(badgerkv.Options{InMemory: true})
	if err != nil {
		tb.Fatalf("open in-memory store: %v", err)
	}
	tb.Cleanup(func() { _ = a.Close() })
	return a
}

// Seed writes rows through store.PutAll and fails the test on error.
func Seed(tb testing.TB, a store.Adapter, rows ...store.Row) {
	tb.Helper()
	if err := store.PutAll(context.Background(), a, rows, store.BatchOptions{}); err != nil {
		tb.Fatalf("seed %d rows: %v", len(rows), err)
	}
}

// Faulty wraps an adapter and injects failures. The zero value of each
// knob disables it. Safe for concurrent use.
type Faulty struct {
	store.Adapter

	mu sync.Mutex

	throttle    int // calls left to fail with store.ErrThrottled
	unprocessed int // items each batch call leaves unprocessed
	failPK      map[string]error
	calls       map[string]int
	queried     []string
}

// NewFaulty wraps next.
func NewFaulty(next store.Adapter) *Faulty {
	return &Faulty{
		Adapter: next,
		failPK:  make(map[string]error),
		calls:   make(map[string]int),
	}
}

// WithThrottle makes the next n calls of any operation fail with
// store.ErrThrottled.
func (f *Faulty) WithThrottle(n int) *Faulty {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.throttle = n
	return f
}

// WithUnprocessed makes every batch call process all but the last n items.
func (f *Faulty) WithUnprocessed(n int) *Faulty {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unprocessed = n
	return f
}

// WithQueryError makes queries of partition pk fail with err.
func (f *Faulty) WithQueryError(pk string, err error) *Faulty {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPK[pk] = err
	return f
}

// Calls returns how many times op ("get", "query", "query_secondary",
// "batch_put", "batch_delete") was invoked.
func (f *Faulty) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Queried returns the partition keys queried so far, in call order.
func (f *Faulty) Queried() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queried...)
}

func (f *Faulty) enter(op, pk string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if pk != "" {
		f.queried = append(f.queried, pk)
	}
	if f.throttle > 0 {
		f.throttle--
		return store.ErrThrottled
	}
	if err, ok := f.failPK[pk]; ok && pk != "" {
		return err
	}
	return nil
}

func (f *Faulty) split(n int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return max(n-f.unprocessed, 0)
}

func (f *Faulty) Get(ctx context.Context, key store.Key) (store.Row, error) {
	if err := f.enter("get", ""); err != nil {
		return store.Row{}, err
	}
	return f.Adapter.Get(ctx, key)
}

func (f *Faulty) QueryByPartitionPrefix(ctx context.Context, pk, skPrefix string, opts store.QueryOptions) ([]store.Row, error) {
	if err := f.enter("query", pk); err != nil {
		return nil, err
	}
	return f.Adapter.QueryByPartitionPrefix(ctx, pk, skPrefix, opts)
}

func (f *Faulty) QueryBySecondaryPrefix(ctx context.Context, pk, skPrefix string, opts store.QueryOptions) ([]store.Row, error) {
	if err := f.enter("query_secondary", pk); err != nil {
		return nil, err
	}
	return f.Adapter.QueryBySecondaryPrefix(ctx, pk, skPrefix, opts)
}

func (f *Faulty) BatchPut(ctx context.Context, rows []store.Row) ([]store.Row, error) {
	if err := f.enter("batch_put", ""); err != nil {
		return nil, err
	}
	n := f.split(len(rows))
	if _, err := f.Adapter.BatchPut(ctx, rows[:n]); err != nil {
		return nil, err
	}
	return rows[n:], nil
}

func (f *Faulty) BatchDelete(ctx context.Context, keys []store.Key) ([]store.Key, error) {
	if err := f.enter("batch_delete", ""); err != nil {
		return nil, err
	}
	n := f.split(len(keys))
	if _, err := f.Adapter.BatchDelete(ctx, keys[:n]); err != nil {
		return nil, err
	}
	return keys[n:], nil
}
