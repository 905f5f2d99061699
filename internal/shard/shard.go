// Package shard picks the shard an append-only row is written to.
package shard

import (
	"hash/fnv"
	"math/rand"
)

// ForKey maps key onto [0, n) by FNV-1a hash. The same key always lands
// on the same shard. With n <= 1 every key goes to shard 0.
func ForKey(key string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

// Uniform returns a shard in [0, n) chosen uniformly at random. With n <= 1
// it returns 0.
func Uniform(n int) int {
	if n <= 1 {
		return 0
	}
	return rand.Intn(n)
}
