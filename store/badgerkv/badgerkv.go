// Package badgerkv implements store.Adapter on an embedded Badger database.
//
// Rows are stored as JSON under a primary record key; rows with a secondary
// projection get an index entry pointing back at the primary record. Both
// are written in the same transaction, so a batch is applied completely or
// not at all and the index never disagrees with the table.
//
//	primary:   p \x00 PK \x00 SK                  -> row
//	secondary: s \x00 GSI1PK \x00 GSI1SK \x00 PK \x00 SK -> PK \x00 SK
package badgerkv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/jacentio/arbor/store"
)

const sep = "\x00"

var (
	primaryNS   = []byte("p" + sep)
	secondaryNS = []byte("s" + sep)
)

// Options configures Open.
type Options struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps everything in memory; nothing touches disk.
	InMemory bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Adapter provides the store.Adapter operations on a Badger database.
type Adapter struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ store.Adapter = (*Adapter)(nil)

// Open opens (or creates) the database described by opts.
func Open(opts Options) (*Adapter, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badgerkv: no directory provided")
	}

	bopts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	opts.Logger.Debug("badger store opened", "dir", opts.Dir, "in_memory", opts.InMemory)
	return &Adapter{db: db, logger: opts.Logger}, nil
}

// Close closes the underlying database.
func (a *Adapter) Close() error {
	return a.db.Close()
}

func primaryKey(pk, sk string) []byte {
	return []byte(string(primaryNS) + pk + sep + sk)
}

func secondaryKey(row store.Row) []byte {
	return []byte(string(secondaryNS) + row.SecondaryPartitionKey + sep + row.SecondarySortKey + sep + row.PartitionKey + sep + row.SortKey)
}

func checkKey(k store.Key) error {
	if strings.Contains(k.PartitionKey, sep) || strings.Contains(k.SortKey, sep) {
		return fmt.Errorf("%w: key %q contains a NUL byte", store.ErrInvalidRow, k.String())
	}
	return nil
}

// Get retrieves a row by key, returning store.ErrNotFound if missing.
func (a *Adapter) Get(ctx context.Context, key store.Key) (store.Row, error) {
	if err := ctx.Err(); err != nil {
		return store.Row{}, err
	}

	var row store.Row
	err := a.db.View(func(txn *badger.Txn) error {
		var err error
		row, err = getRow(txn, primaryKey(key.PartitionKey, key.SortKey))
		return err
	})
	if err != nil {
		return store.Row{}, err
	}
	return row, nil
}

func getRow(txn *badger.Txn, key []byte) (store.Row, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.Row{}, store.ErrNotFound
	}
	if err != nil {
		return store.Row{}, err
	}

	var row store.Row
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &row)
	})
	return row, err
}

// QueryByPartitionPrefix scans the primary records of pk.
func (a *Adapter) QueryByPartitionPrefix(ctx context.Context, pk, skPrefix string, opts store.QueryOptions) ([]store.Row, error) {
	prefix := []byte(string(primaryNS) + pk + sep + skPrefix)

	var rows []store.Row
	err := a.db.View(func(txn *badger.Txn) error {
		return scan(ctx, txn, prefix, opts, func(item *badger.Item) error {
			var row store.Row
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &row)
			}); err != nil {
				return err
			}
			rows = append(rows, row)
			return nil
		})
	})
	return rows, err
}

// QueryBySecondaryPrefix scans the secondary index entries of pk and loads
// the primary records they point at.
func (a *Adapter) QueryBySecondaryPrefix(ctx context.Context, pk, skPrefix string, opts store.QueryOptions) ([]store.Row, error) {
	prefix := []byte(string(secondaryNS) + pk + sep + skPrefix)

	var rows []store.Row
	err := a.db.View(func(txn *badger.Txn) error {
		return scan(ctx, txn, prefix, opts, func(item *badger.Item) error {
			target, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			row, err := getRow(txn, append(append([]byte{}, primaryNS...), target...))
			if err != nil {
				return fmt.Errorf("secondary entry %q: %w", item.Key(), err)
			}
			rows = append(rows, row)
			return nil
		})
	})
	return rows, err
}

// scan iterates the keys under prefix in the requested order, calling fn for
// at most opts.Limit items.
func scan(ctx context.Context, txn *badger.Txn, prefix []byte, opts store.QueryOptions, fn func(*badger.Item) error) error {
	iopts := badger.DefaultIteratorOptions
	iopts.Reverse = opts.Descending

	it := txn.NewIterator(iopts)
	defer it.Close()

	seek := prefix
	if opts.Descending {
		// 0xFF never occurs in UTF-8, so this sorts after every key under prefix.
		seek = append(bytes.Clone(prefix), 0xFF)
	}

	n := 0
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(it.Item()); err != nil {
			return err
		}
		n++
		if opts.Limit > 0 && n >= int(opts.Limit) {
			break
		}
	}
	return nil
}

// BatchPut writes rows in one transaction. Badger applies the whole batch,
// so the unprocessed set is always empty.
func (a *Adapter) BatchPut(ctx context.Context, rows []store.Row) ([]store.Row, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if len(rows) > store.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d rows", store.ErrBatchTooLarge, len(rows))
	}
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			return nil, err
		}
		if err := checkKey(row.Key()); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err := a.db.Update(func(txn *badger.Txn) error {
		for _, row := range rows {
			if err := deleteRow(txn, row.Key()); err != nil {
				return err
			}
			val, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("encode %s: %w", row.Key(), err)
			}
			if err := txn.Set(primaryKey(row.PartitionKey, row.SortKey), val); err != nil {
				return err
			}
			if row.HasSecondary() {
				if err := txn.Set(secondaryKey(row), []byte(row.PartitionKey+sep+row.SortKey)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return nil, mapError(err)
}

// BatchDelete removes rows in one transaction. Missing keys are ignored.
func (a *Adapter) BatchDelete(ctx context.Context, keys []store.Key) ([]store.Key, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if len(keys) > store.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d keys", store.ErrBatchTooLarge, len(keys))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err := a.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := deleteRow(txn, key); err != nil {
				return err
			}
		}
		return nil
	})
	return nil, mapError(err)
}

// deleteRow removes the primary record of key and its index entry, if any.
func deleteRow(txn *badger.Txn, key store.Key) error {
	old, err := getRow(txn, primaryKey(key.PartitionKey, key.SortKey))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if old.HasSecondary() {
		if err := txn.Delete(secondaryKey(old)); err != nil {
			return err
		}
	}
	return txn.Delete(primaryKey(key.PartitionKey, key.SortKey))
}

// mapError reports transaction conflicts as store.ErrThrottled so that a
// retrying adapter resubmits the batch.
func mapError(err error) error {
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %w", store.ErrThrottled, err)
	}
	return err
}
