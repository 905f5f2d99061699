package query

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/jacentio/arbor/store"
)

// Hydrated pairs a relationship with the full entity row of its target.
type Hydrated struct {
	Relationship

	// Entity is the target's entity row; zero when Found is false.
	Entity store.Row
	Found  bool
}

// Hydrate fetches the target entity of every relationship in rels. Results
// keep the order of rels. A missing target is reported through Found; any
// other error cancels the remaining lookups.
func (e *Engine) Hydrate(ctx context.Context, rels []Relationship) ([]Hydrated, error) {
	out := make([]Hydrated, len(rels))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.hydrateConcurrency)
	for i, rel := range rels {
		i, rel := i, rel
		g.Go(func() error {
			row, found, err := e.GetEntity(ctx, rel.Target.Type, rel.Target.ID)
			if err != nil {
				return err
			}
			out[i] = Hydrated{Relationship: rel, Entity: row, Found: found}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// HydrateSources is Hydrate for the source side, typically after an
// inverse traversal.
func (e *Engine) HydrateSources(ctx context.Context, rels []Relationship) ([]Hydrated, error) {
	flipped := make([]Relationship, len(rels))
	for i, rel := range rels {
		flipped[i] = rel
		flipped[i].Source, flipped[i].Target = rel.Target, rel.Source
	}
	hydrated, err := e.Hydrate(ctx, flipped)
	if err != nil {
		return nil, err
	}
	for i := range hydrated {
		hydrated[i].Relationship = rels[i]
	}
	return hydrated, nil
}
