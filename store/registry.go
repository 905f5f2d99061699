package store

import (
	"fmt"
	"time"

	"github.com/jacentio/arbor/keys"
)

// RelationKind declares one kind of relationship row.
type RelationKind struct {
	// TypeTag is the row's Type discriminator and the registry key
	// (e.g. "OrderItem").
	TypeTag string

	// SourceType is the entity type owning the partition (e.g. "ORDER").
	SourceType string

	// TargetType is the entity type in the sort key (e.g. "PRODUCT").
	TargetType string

	// Kind is the secondary sort key component (e.g. "ORDER"). Required
	// when Inverse is set.
	Kind string

	// Inverse projects rows of this kind into the secondary index so they
	// can be found from the target side.
	Inverse bool
}

func (k RelationKind) validate() error {
	for _, s := range []string{k.TypeTag, k.SourceType, k.TargetType} {
		if err := keys.ValidateIdentifier(s); err != nil {
			return fmt.Errorf("relation %q: %w", k.TypeTag, err)
		}
	}
	if k.Inverse {
		if err := keys.ValidateIdentifier(k.Kind); err != nil {
			return fmt.Errorf("relation %q kind: %w", k.TypeTag, err)
		}
	}
	return nil
}

// Registry holds the relation kinds a table is written with.
type Registry struct {
	kinds    []RelationKind
	byTag    map[string]RelationKind
	bySource map[string][]RelationKind

	// now is overridable in tests.
	now func() time.Time
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds:    []RelationKind{},
		byTag:    make(map[string]RelationKind),
		bySource: make(map[string][]RelationKind),
		now:      time.Now,
	}
}

// Register adds a relation kind. It panics on an invalid or duplicate
// declaration; registration happens once at startup.
func (r *Registry) Register(k RelationKind) {
	if err := k.validate(); err != nil {
		panic(err)
	}
	if _, dup := r.byTag[k.TypeTag]; dup {
		panic(fmt.Sprintf("arbor: relation %q registered twice", k.TypeTag))
	}
	r.kinds = append(r.kinds, k)
	r.byTag[k.TypeTag] = k
	r.bySource[k.SourceType] = append(r.bySource[k.SourceType], k)
}

// Lookup returns the relation kind registered under typeTag.
func (r *Registry) Lookup(typeTag string) (RelationKind, bool) {
	k, ok := r.byTag[typeTag]
	return k, ok
}

// From returns the relation kinds whose source is entityType.
func (r *Registry) From(entityType string) []RelationKind {
	return r.bySource[entityType]
}

// Kinds returns all registered relation kinds in registration order.
func (r *Registry) Kinds() []RelationKind {
	return r.kinds
}

// RelationshipRow builds the row linking sourceID to targetID under the
// relation kind typeTag. The secondary projection is set iff the kind is
// inverse-traversable.
func (r *Registry) RelationshipRow(typeTag, sourceID, targetID string, data map[string]any) (Row, error) {
	k, ok := r.byTag[typeTag]
	if !ok {
		return Row{}, fmt.Errorf("%w: unknown relation %q", ErrInvalidRow, typeTag)
	}
	pk, sk, err := keys.EncodeRelationshipKey(k.SourceType, sourceID, k.TargetType, targetID)
	if err != nil {
		return Row{}, err
	}
	ts := FormatTimestamp(r.now())
	row := Row{
		PartitionKey: pk,
		SortKey:      sk,
		TypeTag:      k.TypeTag,
		Payload:      data,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if k.Inverse {
		row.SecondaryPartitionKey, row.SecondarySortKey, err = keys.EncodeSecondaryKey(k.TargetType, targetID, k.Kind, sourceID)
		if err != nil {
			return Row{}, err
		}
	}
	return row, nil
}

// EntityRow builds the entity row of (entityType, id), stamped with the
// registry clock.
func (r *Registry) EntityRow(entityType, typeTag, id string, data map[string]any) (Row, error) {
	return entityRow(r.now(), entityType, typeTag, id, data)
}

// EntityRow builds the entity row of (entityType, id), stamped with the
// current time.
func EntityRow(entityType, typeTag, id string, data map[string]any) (Row, error) {
	return entityRow(time.Now(), entityType, typeTag, id, data)
}

func entityRow(now time.Time, entityType, typeTag, id string, data map[string]any) (Row, error) {
	pk, sk, err := keys.EncodeEntityKey(entityType, id)
	if err != nil {
		return Row{}, err
	}
	if err := keys.ValidateIdentifier(typeTag); err != nil {
		return Row{}, fmt.Errorf("type tag: %w", err)
	}
	ts := FormatTimestamp(now)
	return Row{
		PartitionKey: pk,
		SortKey:      sk,
		TypeTag:      typeTag,
		Payload:      data,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}, nil
}
