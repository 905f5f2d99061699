package keys

import (
	"fmt"
	"strconv"
	"strings"
)

// ShardMarker precedes the shard number in a sharded partition key.
const ShardMarker = "#SHARD"

// MaxShards bounds the shard count of a sharded partition.
const MaxShards = 256

// EncodeShardKey returns the synthetic partition key for shard n of ref,
// e.g. "USER#12345#SHARD3".
func EncodeShardKey(ref Ref, n int) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	if n < 0 || n >= MaxShards {
		return "", fmt.Errorf("%w: shard %d out of range", ErrInvalidIdentifier, n)
	}
	return ref.String() + ShardMarker + strconv.Itoa(n), nil
}

// DecodeShardKey strips the shard suffix and returns the logical entity and
// the shard number.
func DecodeShardKey(pk string) (Ref, int, error) {
	i := strings.LastIndex(pk, ShardMarker)
	if i < 0 {
		return Ref{}, 0, fmt.Errorf("%w: %q has no shard suffix", ErrMalformedKey, pk)
	}
	suffix := pk[i+len(ShardMarker):]
	n, err := strconv.Atoi(suffix)
	// Only the canonical form is accepted: no sign, no leading zeros.
	if err != nil || n < 0 || n >= MaxShards || strconv.Itoa(n) != suffix {
		return Ref{}, 0, fmt.Errorf("%w: %q has an invalid shard number", ErrMalformedKey, pk)
	}
	ref, err := ParseRef(pk[:i])
	if err != nil {
		return Ref{}, 0, err
	}
	return ref, n, nil
}

// EncodeSequenceKey returns "prefix#marker", the sort key of an append-only
// row. The marker must sort in sequence order.
func EncodeSequenceKey(prefix, marker string) (string, error) {
	if err := ValidateIdentifier(prefix); err != nil {
		return "", fmt.Errorf("prefix: %w", err)
	}
	if err := ValidateIdentifier(marker); err != nil {
		return "", fmt.Errorf("marker: %w", err)
	}
	return prefix + Delimiter + marker, nil
}

// DecodeSequenceKey is the inverse of EncodeSequenceKey.
func DecodeSequenceKey(sk string) (prefix, marker string, err error) {
	r, err := ParseRef(sk)
	if err != nil {
		return "", "", err
	}
	return r.Type, r.ID, nil
}
