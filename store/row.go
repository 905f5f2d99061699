package store

import (
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
)

// Attribute names of the persisted row layout.
const (
	AttrPK        = "PK"
	AttrSK        = "SK"
	AttrType      = "Type"
	AttrData      = "Data"
	AttrGSI1PK    = "GSI1PK"
	AttrGSI1SK    = "GSI1SK"
	AttrCreatedAt = "CreatedAt"
	AttrUpdatedAt = "UpdatedAt"
)

// Key is the composite primary key of a row.
type Key struct {
	PartitionKey string `dynamodbav:"PK" json:"PK"`
	SortKey      string `dynamodbav:"SK" json:"SK"`
}

// String returns "PK|SK" for logging.
func (k Key) String() string {
	return k.PartitionKey + "|" + k.SortKey
}

// Row is one item of the adjacency-list table. Entity rows have
// PartitionKey == SortKey; relationship rows differ. SecondaryPartitionKey
// and SecondarySortKey are either both set or both empty.
type Row struct {
	PartitionKey string `dynamodbav:"PK" json:"PK"`
	SortKey      string `dynamodbav:"SK" json:"SK"`

	// TypeTag discriminates row kinds sharing a partition
	// (e.g. "Product", "ProductReview").
	TypeTag string `dynamodbav:"Type" json:"Type"`

	// Payload is opaque to the core.
	Payload map[string]any `dynamodbav:"Data,omitempty" json:"Data,omitempty"`

	SecondaryPartitionKey string `dynamodbav:"GSI1PK,omitempty" json:"GSI1PK,omitempty"`
	SecondarySortKey      string `dynamodbav:"GSI1SK,omitempty" json:"GSI1SK,omitempty"`

	// CreatedAt and UpdatedAt are ISO-8601 UTC timestamps with millisecond
	// precision.
	CreatedAt string `dynamodbav:"CreatedAt,omitempty" json:"CreatedAt,omitempty"`
	UpdatedAt string `dynamodbav:"UpdatedAt,omitempty" json:"UpdatedAt,omitempty"`
}

// Key returns the row's primary key.
func (r Row) Key() Key {
	return Key{PartitionKey: r.PartitionKey, SortKey: r.SortKey}
}

// IsEntity reports whether the row is an entity row.
func (r Row) IsEntity() bool {
	return r.PartitionKey == r.SortKey
}

// HasSecondary reports whether the row is projected into the secondary index.
func (r Row) HasSecondary() bool {
	return r.SecondaryPartitionKey != ""
}

// Validate checks the structural invariants every adapter relies on.
func (r Row) Validate() error {
	if r.PartitionKey == "" || r.SortKey == "" {
		return fmt.Errorf("%w: empty primary key %s", ErrInvalidRow, r.Key())
	}
	if (r.SecondaryPartitionKey == "") != (r.SecondarySortKey == "") {
		return fmt.Errorf("%w: incomplete secondary projection on %s", ErrInvalidRow, r.Key())
	}
	if r.IsEntity() && r.HasSecondary() {
		return fmt.Errorf("%w: entity row %s carries a secondary projection", ErrInvalidRow, r.Key())
	}
	return nil
}

// Created parses CreatedAt. The boolean is false when the attribute is
// absent or unparsable.
func (r Row) Created() (time.Time, bool) {
	return parseTimestamp(r.CreatedAt)
}

// Updated parses UpdatedAt.
func (r Row) Updated() (time.Time, bool) {
	return parseTimestamp(r.UpdatedAt)
}

// FormatTimestamp renders t the way CreatedAt/UpdatedAt are persisted,
// e.g. "2025-01-02T15:04:05.000Z".
func FormatTimestamp(t time.Time) string {
	return strfmt.DateTime(t.UTC()).String()
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	dt, err := strfmt.ParseDateTime(s)
	if err != nil {
		return time.Time{}, false
	}
	return time.Time(dt), true
}
