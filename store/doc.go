// Package store defines the contract between the adjacency-list core and an
// ordered key-value store.
//
// A table holds three kinds of rows, all sharing one wire shape ([Row]):
//
//   - entity rows (PK == SK), e.g. PRODUCT#ABC123 / PRODUCT#ABC123
//   - relationship rows (PK != SK), e.g. PRODUCT#ABC123 / REVIEW#R1
//   - shard rows of an append stream, e.g. USER#12345#SHARD3 / ACTIVITY#...
//
// Relationship rows of an inverse-traversable kind also carry a secondary
// projection (GSI1PK = target, GSI1SK = kind#sourceId). Which kinds project
// is declared once in a [Registry], and rows are built through
// [Registry.RelationshipRow] and [EntityRow] so the projection is never
// forgotten.
//
// # Adapters
//
// The core only consumes the [Adapter] interface. Two implementations ship
// with the module:
//
//   - store/dynamo: Amazon DynamoDB, secondary index "GSI1"
//   - store/badgerkv: embedded Badger, on disk or in memory
//
// Wrap an adapter with [Retrying] to absorb throttling, and use [PutAll] and
// [DeleteAll] for more than [MaxBatchSize] items:
//
//	cfg, err := store.LoadConfig("arbor.yaml")
//	...
//	a := store.Retrying(dynamo.New(client, cfg), cfg.RetryPolicy(), logger)
//	err = store.PutAll(ctx, a, rows, cfg.BatchOptions())
//
// # Errors
//
//   - [ErrNotFound] - no row under the key
//   - [ErrThrottled] - store backpressure, retried
//   - [ErrUnavailable] - retry budget exhausted
//   - [ErrPartialBatch] - some batch items were not processed ([PartialBatchError])
//   - [ErrBatchTooLarge] - more than MaxBatchSize items in one call
//   - [ErrInvalidRow] - row violates the key layout
package store
