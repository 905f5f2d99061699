// Package stream provides DynamoDB Streams handlers for cascade deletes.
package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/arbor/keys"
	"github.com/jacentio/arbor/store"
)

// Handler deletes the rows left behind when an entity row is removed.
type Handler struct {
	store    store.Adapter
	batch    store.BatchOptions
	inbound  bool
	registry *store.Registry
	logger   *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithBatchOptions sets the batch size and pause of the cascade deletes.
func WithBatchOptions(o store.BatchOptions) Option {
	return func(h *Handler) { h.batch = o }
}

// WithInbound also deletes relationship rows in other partitions that
// point at the removed entity through the secondary index.
func WithInbound() Option {
	return func(h *Handler) { h.inbound = true }
}

// WithRegistry restricts the cascade to relation kinds declared in r: rows
// of the removed entity's partition are deleted only if their kind starts at
// the entity's type, and inbound rows only if their kind ends there. Other
// rows are left in place.
func WithRegistry(r *store.Registry) Option {
	return func(h *Handler) { h.registry = r }
}

// NewHandler creates a new stream handler. Deletes are sent in batches of
// store.MaxBatchSize with store.DefaultBatchPause between batches unless
// WithBatchOptions says otherwise.
func NewHandler(a store.Adapter, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		store:  a,
		batch:  store.DefaultConfig().BatchOptions(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleEntityRemoval processes DynamoDB stream events and, for every
// removed entity row, deletes the relationship rows of its partition.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleEntityRemoval(ctx context.Context, event events.DynamoDBEvent) error {
	for i := range event.Records {
		record := &event.Records[i]
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

func (h *Handler) processRecord(ctx context.Context, record *events.DynamoDBEventRecord) error {
	if record.EventName != string(events.DynamoDBOperationTypeRemove) {
		return nil
	}

	key, ok := StreamKey(record.Change.Keys)
	if !ok {
		key, ok = StreamKey(record.Change.OldImage)
	}
	if !ok {
		h.logger.Warn("remove record without row key", "eventID", record.EventID)
		return nil
	}
	// Relationship rows removed on their own cascade nothing.
	if key.PartitionKey != key.SortKey {
		return nil
	}

	h.logger.Info("processing entity removal",
		"pk", key.PartitionKey,
		"type", getStringAttr(record.Change.OldImage, store.AttrType),
	)

	rows, err := h.store.QueryByPartitionPrefix(ctx, key.PartitionKey, "", store.QueryOptions{})
	if err != nil {
		return fmt.Errorf("query partition: %w", err)
	}
	outgoing, incoming, err := h.scope(key.PartitionKey)
	if err != nil {
		return err
	}

	var doomed []store.Key
	for _, row := range rows {
		// A re-created entity row stays.
		if row.IsEntity() || !outgoing(row.TypeTag) {
			continue
		}
		doomed = append(doomed, row.Key())
	}

	inbound := 0
	if h.inbound {
		rows, err := h.store.QueryBySecondaryPrefix(ctx, key.PartitionKey, "", store.QueryOptions{})
		if err != nil {
			return fmt.Errorf("query inbound relationships: %w", err)
		}
		for _, row := range rows {
			if !incoming(row.TypeTag) {
				continue
			}
			doomed = append(doomed, row.Key())
			inbound++
		}
	}

	if err := store.DeleteAll(ctx, h.store, doomed, h.batch); err != nil {
		return fmt.Errorf("delete relationships of %s: %w", key.PartitionKey, err)
	}

	h.logger.Info("entity removal completed",
		"pk", key.PartitionKey,
		"deleted", len(doomed),
		"inbound", inbound,
	)
	return nil
}

// scope returns the filters deciding which partition rows (outgoing) and
// which inbound rows (incoming) of the entity at pk are deleted.
func (h *Handler) scope(pk string) (outgoing, incoming func(typeTag string) bool, err error) {
	all := func(string) bool { return true }
	if h.registry == nil {
		return all, all, nil
	}
	ref, err := keys.ParseRef(pk)
	if err != nil {
		return nil, nil, fmt.Errorf("removed entity: %w", err)
	}

	from := make(map[string]bool)
	for _, k := range h.registry.From(ref.Type) {
		from[k.TypeTag] = true
	}
	to := make(map[string]bool)
	for _, k := range h.registry.Kinds() {
		if k.TargetType == ref.Type {
			to[k.TypeTag] = true
		}
	}
	return func(tag string) bool { return from[tag] },
		func(tag string) bool { return to[tag] },
		nil
}

// StreamKey reads the row key from a stream key map or image. ok is false
// when either key attribute is missing or not a string.
func StreamKey(image map[string]events.DynamoDBAttributeValue) (store.Key, bool) {
	pk := getStringAttr(image, store.AttrPK)
	sk := getStringAttr(image, store.AttrSK)
	if pk == "" || sk == "" {
		return store.Key{}, false
	}
	return store.Key{PartitionKey: pk, SortKey: sk}, true
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}
