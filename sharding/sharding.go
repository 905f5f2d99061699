// Package sharding spreads the append-only stream of a hot entity over
// several partitions and reads it back as one ordered stream.
//
// A write lands in exactly one shard partition, "USER#12345#SHARD<n>", so
// write throughput scales with the shard count. The price is paid on read:
// ReadShardedAppends issues one query per shard and merges the results, so
// a read costs as many round trips as there are shards. Readers must use
// the shard count the stream was written with; shards beyond the count
// passed in are not read.
package sharding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/arbor/internal/shard"
	"github.com/jacentio/arbor/keys"
	"github.com/jacentio/arbor/store"
)

const (
	DefaultStreamPrefix = "ACTIVITY"
	DefaultTypeTag      = "UserActivity"
)

// ErrInvalidShardCount is returned for shard counts outside [1, keys.MaxShards].
var ErrInvalidShardCount = errors.New("arbor: invalid shard count")

// Strategy picks the shard of a new row from its sort key.
type Strategy interface {
	Pick(sortKey string, n int) int
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(sortKey string, n int) int

func (f StrategyFunc) Pick(sortKey string, n int) int { return f(sortKey, n) }

var (
	// UniformStrategy picks a shard uniformly at random.
	UniformStrategy Strategy = StrategyFunc(func(_ string, n int) int { return shard.Uniform(n) })

	// HashStrategy picks the shard from an FNV-1a hash of the sort key.
	HashStrategy Strategy = StrategyFunc(shard.ForKey)
)

// Append is one row of a sharded stream.
type Append struct {
	Ref   keys.Ref
	Shard int

	// Marker orders the stream: a zero-padded Unix-nanosecond timestamp and
	// a unique suffix.
	Marker string

	// At is the write time recorded in the marker.
	At time.Time

	Data map[string]any
	Row  store.Row
}

// Coordinator writes and reads sharded append streams. It is safe for
// concurrent use.
type Coordinator struct {
	store    store.Adapter
	strategy Strategy
	now      func() time.Time
	newID    func() string
	prefix   string
	typeTag  string
	logger   *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStrategy sets the shard selection strategy. Default: UniformStrategy.
func WithStrategy(s Strategy) Option {
	return func(c *Coordinator) {
		if s != nil {
			c.strategy = s
		}
	}
}

// WithClock sets the time source of markers. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithStreamPrefix sets the sort key prefix of stream rows.
// Default: "ACTIVITY".
func WithStreamPrefix(p string) Option {
	return func(c *Coordinator) { c.prefix = p }
}

// WithTypeTag sets the Type discriminator of stream rows.
// Default: "UserActivity".
func WithTypeTag(tag string) Option {
	return func(c *Coordinator) { c.typeTag = tag }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Coordinator writing through a.
func New(a store.Adapter, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    a,
		strategy: UniformStrategy,
		now:      time.Now,
		newID:    uuid.NewString,
		prefix:   DefaultStreamPrefix,
		typeTag:  DefaultTypeTag,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func checkShardCount(n int) error {
	if n < 1 || n > keys.MaxShards {
		return fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidShardCount, n, keys.MaxShards)
	}
	return nil
}

// WriteShardedAppend appends one row for ref to one of shardCount shards.
func (c *Coordinator) WriteShardedAppend(ctx context.Context, ref keys.Ref, data map[string]any, shardCount int) (Append, error) {
	if err := checkShardCount(shardCount); err != nil {
		return Append{}, err
	}
	if err := ref.Validate(); err != nil {
		return Append{}, err
	}

	at := c.now().UTC()
	marker := fmt.Sprintf("%020d-%s", at.UnixNano(), c.newID())
	sk, err := keys.EncodeSequenceKey(c.prefix, marker)
	if err != nil {
		return Append{}, err
	}

	n := c.strategy.Pick(sk, shardCount)
	if n < 0 || n >= shardCount {
		return Append{}, fmt.Errorf("%w: strategy picked shard %d of %d", ErrInvalidShardCount, n, shardCount)
	}
	pk, err := keys.EncodeShardKey(ref, n)
	if err != nil {
		return Append{}, err
	}

	ts := store.FormatTimestamp(at)
	row := store.Row{
		PartitionKey: pk,
		SortKey:      sk,
		TypeTag:      c.typeTag,
		Payload:      data,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	unprocessed, err := c.store.BatchPut(ctx, []store.Row{row})
	if err != nil {
		return Append{}, fmt.Errorf("append to %s: %w", pk, err)
	}
	if len(unprocessed) > 0 {
		return Append{}, &store.PartialBatchError{Rows: unprocessed}
	}

	c.logger.DebugContext(ctx, "sharded append", "pk", pk, "sk", sk)
	return Append{Ref: ref, Shard: n, Marker: marker, At: at, Data: data, Row: row}, nil
}

type readOptions struct {
	ascending bool
	limit     int
}

// ReadOption configures ReadShardedAppends.
type ReadOption func(*readOptions)

// Ascending returns the oldest rows first instead of the newest.
func Ascending() ReadOption {
	return func(o *readOptions) { o.ascending = true }
}

// Limit caps the merged result at n rows. Each shard is asked for at most n
// rows, since the first n of the merge can only come from the first n of
// each shard.
func Limit(n int) ReadOption {
	return func(o *readOptions) {
		if n > 0 {
			o.limit = n
		}
	}
}

// ReadShardedAppends queries all shardCount shards of ref in parallel,
// waits for every shard, and merges the rows by marker, newest first unless
// Ascending is given. Any shard error fails the whole read.
func (c *Coordinator) ReadShardedAppends(ctx context.Context, ref keys.Ref, shardCount int, opts ...ReadOption) ([]Append, error) {
	if err := checkShardCount(shardCount); err != nil {
		return nil, err
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}

	perShard := make([][]store.Row, shardCount)
	g, gctx := errgroup.WithContext(ctx)
	for n := 0; n < shardCount; n++ {
		n := n
		g.Go(func() error {
			pk, err := keys.EncodeShardKey(ref, n)
			if err != nil {
				return err
			}
			rows, err := c.store.QueryByPartitionPrefix(gctx, pk, keys.Prefix(c.prefix), store.QueryOptions{
				Descending: !o.ascending,
				Limit:      int32(o.limit),
			})
			if err != nil {
				return fmt.Errorf("shard %d: %w", n, err)
			}
			perShard[n] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []Append
	for n, rows := range perShard {
		for _, row := range rows {
			a, err := decodeAppend(ref, n, row)
			if err != nil {
				return nil, err
			}
			merged = append(merged, a)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if o.ascending {
			return merged[i].Marker < merged[j].Marker
		}
		return merged[i].Marker > merged[j].Marker
	})
	if o.limit > 0 && len(merged) > o.limit {
		merged = merged[:o.limit]
	}

	c.logger.DebugContext(ctx, "sharded read", "ref", ref.String(), "shards", shardCount, "count", len(merged))
	return merged, nil
}

func decodeAppend(ref keys.Ref, n int, row store.Row) (Append, error) {
	_, marker, err := keys.DecodeSequenceKey(row.SortKey)
	if err != nil {
		return Append{}, err
	}
	a := Append{Ref: ref, Shard: n, Marker: marker, Data: row.Payload, Row: row}
	if at, ok := markerTime(marker); ok {
		a.At = at
	} else if at, ok := row.Created(); ok {
		a.At = at
	}
	return a, nil
}

// markerTime reads the timestamp in front of the marker's first '-'.
func markerTime(marker string) (time.Time, bool) {
	digits, _, _ := strings.Cut(marker, "-")
	ns, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, ns).UTC(), true
}
