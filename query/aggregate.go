package query

import (
	"context"
	"fmt"

	"github.com/jacentio/arbor/keys"
	"github.com/jacentio/arbor/store"
)

// Aggregate is an entity together with every relationship row of its
// partition, read in one scan.
type Aggregate struct {
	Entity store.Row

	// Relationships holds the relationship rows in sort key order.
	Relationships []Relationship

	// ByType groups Relationships by the row Type discriminator.
	ByType map[string][]Relationship
}

// Len returns the number of rows the aggregate was built from.
func (a Aggregate) Len() int {
	return 1 + len(a.Relationships)
}

// Of returns the relationships with the given Type discriminator.
func (a Aggregate) Of(typeTag string) []Relationship {
	return a.ByType[typeTag]
}

// AggregateWithRelationships reads the whole partition of (entityType, id)
// with a single scan and splits it into the entity row and its relationship
// rows. found is false when the entity row is absent, even if orphaned
// relationship rows remain in the partition.
func (e *Engine) AggregateWithRelationships(ctx context.Context, entityType, id string) (Aggregate, bool, error) {
	pk, _, err := keys.EncodeEntityKey(entityType, id)
	if err != nil {
		return Aggregate{}, false, err
	}

	rows, err := e.store.QueryByPartitionPrefix(ctx, pk, "", store.QueryOptions{})
	if err != nil {
		return Aggregate{}, false, fmt.Errorf("aggregate %s: %w", pk, err)
	}

	agg := Aggregate{ByType: make(map[string][]Relationship)}
	found := false
	for _, row := range rows {
		if row.IsEntity() {
			agg.Entity = row
			found = true
			continue
		}
		rel, err := decodeForward(row)
		if err != nil {
			return Aggregate{}, false, err
		}
		agg.Relationships = append(agg.Relationships, rel)
		agg.ByType[row.TypeTag] = append(agg.ByType[row.TypeTag], rel)
	}

	if !found {
		if len(rows) > 0 {
			e.logger.WarnContext(ctx, "relationship rows without entity", "pk", pk, "rows", len(rows))
		}
		return Aggregate{}, false, nil
	}
	return agg, true, nil
}
