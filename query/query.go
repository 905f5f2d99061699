// Package query answers the fixed access patterns of an adjacency-list table:
// point lookup of an entity, forward traversal from a source entity, inverse
// traversal through the secondary index and the single-scan aggregate of an
// entity with all of its relationship rows.
//
// Relationship rows carry only what the writer put in them. The engine never
// fetches the full target entity behind a relationship on its own; callers
// that need it ask for it with [Engine.Hydrate].
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jacentio/arbor/keys"
	"github.com/jacentio/arbor/store"
)

const defaultHydrateConcurrency = 8

// Engine runs relationship queries against a store.Adapter. It is safe for
// concurrent use.
type Engine struct {
	store              store.Adapter
	logger             *slog.Logger
	hydrateConcurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithHydrateConcurrency bounds the point lookups Hydrate runs at once.
// Default: 8.
func WithHydrateConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.hydrateConcurrency = n
		}
	}
}

// New creates an Engine on top of a.
func New(a store.Adapter, opts ...Option) *Engine {
	e := &Engine{
		store:              a,
		logger:             slog.Default(),
		hydrateConcurrency: defaultHydrateConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetEntity fetches the entity row of (entityType, id). A missing entity is
// reported as found == false, not as an error.
func (e *Engine) GetEntity(ctx context.Context, entityType, id string) (store.Row, bool, error) {
	pk, sk, err := keys.EncodeEntityKey(entityType, id)
	if err != nil {
		return store.Row{}, false, err
	}

	row, err := e.store.Get(ctx, store.Key{PartitionKey: pk, SortKey: sk})
	if errors.Is(err, store.ErrNotFound) {
		e.logger.DebugContext(ctx, "entity not found", "pk", pk)
		return store.Row{}, false, nil
	}
	if err != nil {
		return store.Row{}, false, fmt.Errorf("get %s: %w", pk, err)
	}
	return row, true, nil
}
