package store

import "context"

// MaxBatchSize is the hard per-request item ceiling of BatchPut and
// BatchDelete. Callers with more items go through PutAll/DeleteAll.
const MaxBatchSize = 25

// QueryOptions controls ordering and size of a prefix scan.
type QueryOptions struct {
	// Descending returns rows in descending sort key order.
	Descending bool

	// Limit is the maximum number of rows to return (0 = no limit).
	Limit int32
}

// Adapter is the ordered key-value store the core runs on. Implementations
// must be safe for concurrent use. Every operation is idempotent at the row
// level.
type Adapter interface {
	// Get returns the row stored under key, or ErrNotFound.
	Get(ctx context.Context, key Key) (Row, error)

	// QueryByPartitionPrefix returns the rows of partition pk whose sort key
	// begins with skPrefix, in sort key order. An empty prefix selects the
	// whole partition.
	QueryByPartitionPrefix(ctx context.Context, pk, skPrefix string, opts QueryOptions) ([]Row, error)

	// QueryBySecondaryPrefix is QueryByPartitionPrefix over the secondary
	// index (GSI1PK / GSI1SK).
	QueryBySecondaryPrefix(ctx context.Context, pk, skPrefix string, opts QueryOptions) ([]Row, error)

	// BatchPut writes up to MaxBatchSize rows. Rows the store did not
	// process are returned; they are never dropped silently.
	BatchPut(ctx context.Context, rows []Row) ([]Row, error)

	// BatchDelete removes up to MaxBatchSize rows and returns the keys the
	// store did not process.
	BatchDelete(ctx context.Context, keys []Key) ([]Key, error)
}
