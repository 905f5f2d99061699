package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/jacentio/arbor/keys"
	"github.com/jacentio/arbor/store"
)

// Relationship is one relationship row, decoded.
type Relationship struct {
	Source keys.Ref
	Target keys.Ref

	// Kind is the secondary sort key component, empty for rows without a
	// secondary projection.
	Kind string

	// Row is the stored row; its Payload is whatever the writer stored,
	// typically a thin projection of the target.
	Row store.Row
}

// TraverseOptions narrows a traversal.
type TraverseOptions struct {
	// TargetType restricts a forward traversal to targets of this type.
	// Ignored by InverseTraverse.
	TargetType string

	// Kind restricts a forward traversal to rows projected under this
	// relation kind. Ignored by InverseTraverse, which takes the kind as an
	// argument.
	Kind string

	// Descending reverses the default ascending sort key order.
	Descending bool

	// Limit caps the number of relationships returned (0 = no limit).
	Limit int32
}

// ForwardTraverse returns the relationships stored in the partition of
// (sourceType, sourceID), ordered by target sort key. The entity row itself
// is never part of the result.
func (e *Engine) ForwardTraverse(ctx context.Context, sourceType, sourceID string, opts TraverseOptions) ([]Relationship, error) {
	pk, _, err := keys.EncodeEntityKey(sourceType, sourceID)
	if err != nil {
		return nil, err
	}

	prefix := ""
	if opts.TargetType != "" {
		if err := keys.ValidateIdentifier(opts.TargetType); err != nil {
			return nil, fmt.Errorf("target type: %w", err)
		}
		prefix = keys.Prefix(opts.TargetType)
	}
	kindPrefix := ""
	if opts.Kind != "" {
		if err := keys.ValidateIdentifier(opts.Kind); err != nil {
			return nil, fmt.Errorf("kind: %w", err)
		}
		kindPrefix = keys.Prefix(opts.Kind)
	}

	// The store limit counts rows before filtering: leave room for the
	// entity row when the prefix can match it, and push no limit down when
	// rows are filtered by kind.
	qopts := store.QueryOptions{Descending: opts.Descending, Limit: opts.Limit}
	if opts.Limit > 0 {
		switch {
		case kindPrefix != "":
			qopts.Limit = 0
		case strings.HasPrefix(pk, prefix):
			qopts.Limit = opts.Limit + 1
		}
	}

	rows, err := e.store.QueryByPartitionPrefix(ctx, pk, prefix, qopts)
	if err != nil {
		return nil, fmt.Errorf("forward traverse %s: %w", pk, err)
	}

	rels := make([]Relationship, 0, len(rows))
	for _, row := range rows {
		if row.IsEntity() {
			continue
		}
		if kindPrefix != "" && !strings.HasPrefix(row.SecondarySortKey, kindPrefix) {
			continue
		}
		rel, err := decodeForward(row)
		if err != nil {
			return nil, err
		}
		rels = append(rels, rel)
		if opts.Limit > 0 && len(rels) == int(opts.Limit) {
			break
		}
	}

	e.logger.DebugContext(ctx, "forward traverse", "pk", pk, "prefix", prefix, "count", len(rels))
	return rels, nil
}

// InverseTraverse returns the relationships pointing at (targetType,
// targetID) under relation kind, found through the secondary index and
// ordered by source id. An empty kind returns every projection of the
// target.
func (e *Engine) InverseTraverse(ctx context.Context, targetType, targetID, kind string, opts TraverseOptions) ([]Relationship, error) {
	pk, _, err := keys.EncodeEntityKey(targetType, targetID)
	if err != nil {
		return nil, err
	}

	prefix := ""
	if kind != "" {
		if err := keys.ValidateIdentifier(kind); err != nil {
			return nil, fmt.Errorf("kind: %w", err)
		}
		prefix = keys.Prefix(kind)
	}

	rows, err := e.store.QueryBySecondaryPrefix(ctx, pk, prefix, store.QueryOptions{
		Descending: opts.Descending,
		Limit:      opts.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("inverse traverse %s: %w", pk, err)
	}

	rels := make([]Relationship, 0, len(rows))
	for _, row := range rows {
		target, rowKind, _, err := keys.DecodeSecondaryKey(row.SecondaryPartitionKey, row.SecondarySortKey)
		if err != nil {
			return nil, err
		}
		source, err := keys.ParseRef(row.PartitionKey)
		if err != nil {
			return nil, err
		}
		rels = append(rels, Relationship{Source: source, Target: target, Kind: rowKind, Row: row})
	}

	e.logger.DebugContext(ctx, "inverse traverse", "pk", pk, "kind", kind, "count", len(rels))
	return rels, nil
}

// SourceIDs returns the source ids of rels in order.
func SourceIDs(rels []Relationship) []string {
	ids := make([]string, len(rels))
	for i, r := range rels {
		ids[i] = r.Source.ID
	}
	return ids
}

// TargetIDs returns the target ids of rels in order.
func TargetIDs(rels []Relationship) []string {
	ids := make([]string, len(rels))
	for i, r := range rels {
		ids[i] = r.Target.ID
	}
	return ids
}

func decodeForward(row store.Row) (Relationship, error) {
	source, target, err := keys.DecodeRelationshipKey(row.PartitionKey, row.SortKey)
	if err != nil {
		return Relationship{}, err
	}
	rel := Relationship{Source: source, Target: target, Row: row}
	if row.HasSecondary() {
		_, kind, _, err := keys.DecodeSecondaryKey(row.SecondaryPartitionKey, row.SecondarySortKey)
		if err != nil {
			return Relationship{}, err
		}
		rel.Kind = kind
	}
	return rel, nil
}
