// Package keys encodes domain identifiers into the composite keys of the
// adjacency-list table and decodes them back.
//
// Every row in the table is addressed by a partition key and a sort key.
// Entities use the same value for both; relationships use the source entity
// as the partition and the target entity as the sort key:
//
//	entity:        PK = USER#12345      SK = USER#12345
//	relationship:  PK = ORDER#ORD001    SK = PRODUCT#ABC123
//	secondary:     GSI1PK = PRODUCT#ABC123  GSI1SK = ORDER#ORD001
//	shard:         PK = USER#12345#SHARD3   SK = ACTIVITY#<marker>
//
// All functions are pure. Identifiers containing the delimiter are rejected
// at encode time so that decoding is always the exact inverse of encoding.
package keys

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Delimiter separates the components of a key.
const Delimiter = "#"

var (
	// ErrMalformedKey is returned when a key does not have the expected shape.
	ErrMalformedKey = errors.New("arbor: malformed key")

	// ErrInvalidIdentifier is returned when a type tag or id cannot be encoded.
	ErrInvalidIdentifier = errors.New("arbor: invalid identifier")
)

// Ref identifies an entity by type tag and id (e.g. "PRODUCT", "ABC123").
type Ref struct {
	Type string
	ID   string
}

// String returns the encoded form "TYPE#id". It does not validate.
func (r Ref) String() string {
	return r.Type + Delimiter + r.ID
}

// Validate checks that both components are encodable.
func (r Ref) Validate() error {
	if err := ValidateIdentifier(r.Type); err != nil {
		return fmt.Errorf("type: %w", err)
	}
	if err := ValidateIdentifier(r.ID); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	return nil
}

// ParseRef splits "TYPE#id" into a Ref.
func ParseRef(s string) (Ref, error) {
	typ, id, ok := strings.Cut(s, Delimiter)
	if !ok || typ == "" || id == "" || strings.Contains(id, Delimiter) {
		return Ref{}, fmt.Errorf("%w: %q", ErrMalformedKey, s)
	}
	return Ref{Type: typ, ID: id}, nil
}

// ValidateIdentifier reports whether s may be used as a type tag, id or
// relation kind. Identifiers must be non-empty valid UTF-8 and contain
// neither the delimiter nor ASCII control characters.
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidIdentifier, s)
	}
	if strings.Contains(s, Delimiter) {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidIdentifier, s, Delimiter)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			return fmt.Errorf("%w: %q contains a control character", ErrInvalidIdentifier, s)
		}
	}
	return nil
}

func encodeRef(typ, id string) (string, error) {
	r := Ref{Type: typ, ID: id}
	if err := r.Validate(); err != nil {
		return "", err
	}
	return r.String(), nil
}

// EncodeEntityKey returns the primary key of an entity row. Both components
// are "type#id".
func EncodeEntityKey(typ, id string) (pk, sk string, err error) {
	k, err := encodeRef(typ, id)
	if err != nil {
		return "", "", err
	}
	return k, k, nil
}

// DecodeEntityKey is the inverse of EncodeEntityKey.
func DecodeEntityKey(pk, sk string) (Ref, error) {
	if pk != sk {
		return Ref{}, fmt.Errorf("%w: entity key %q/%q has differing components", ErrMalformedKey, pk, sk)
	}
	return ParseRef(pk)
}

// EncodeRelationshipKey returns the primary key of a relationship row.
func EncodeRelationshipKey(sourceType, sourceID, targetType, targetID string) (pk, sk string, err error) {
	if pk, err = encodeRef(sourceType, sourceID); err != nil {
		return "", "", fmt.Errorf("source %w", err)
	}
	if sk, err = encodeRef(targetType, targetID); err != nil {
		return "", "", fmt.Errorf("target %w", err)
	}
	if pk == sk {
		return "", "", fmt.Errorf("%w: relationship from %q to itself", ErrInvalidIdentifier, pk)
	}
	return pk, sk, nil
}

// DecodeRelationshipKey is the inverse of EncodeRelationshipKey.
func DecodeRelationshipKey(pk, sk string) (source, target Ref, err error) {
	if pk == sk {
		return Ref{}, Ref{}, fmt.Errorf("%w: %q is an entity key", ErrMalformedKey, pk)
	}
	if source, err = ParseRef(pk); err != nil {
		return Ref{}, Ref{}, err
	}
	if target, err = ParseRef(sk); err != nil {
		return Ref{}, Ref{}, err
	}
	return source, target, nil
}

// EncodeSecondaryKey returns the secondary projection of a relationship row:
// partition "targetType#targetId", sort "relationKind#sourceId".
func EncodeSecondaryKey(targetType, targetID, relationKind, sourceID string) (pk, sk string, err error) {
	if pk, err = encodeRef(targetType, targetID); err != nil {
		return "", "", fmt.Errorf("target %w", err)
	}
	if sk, err = encodeRef(relationKind, sourceID); err != nil {
		return "", "", fmt.Errorf("relation %w", err)
	}
	return pk, sk, nil
}

// DecodeSecondaryKey is the inverse of EncodeSecondaryKey.
func DecodeSecondaryKey(pk, sk string) (target Ref, relationKind, sourceID string, err error) {
	if target, err = ParseRef(pk); err != nil {
		return Ref{}, "", "", err
	}
	rel, err := ParseRef(sk)
	if err != nil {
		return Ref{}, "", "", err
	}
	return target, rel.Type, rel.ID, nil
}

// Prefix returns "component#", the begins_with operand that selects every
// key whose first component equals component.
func Prefix(component string) string {
	return component + Delimiter
}
