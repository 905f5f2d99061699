package shard

import (
	"fmt"
	"testing"
)

func TestForKey_SingleShard(t *testing.T) {
	// With n=1 every key goes to shard 0
	for _, key := range []string{"ACTIVITY#1", "ACTIVITY#2", "", "ORDER#O1"} {
		if got := ForKey(key, 1); got != 0 {
			t.Errorf("ForKey(%q, 1) = %d, want 0", key, got)
		}
	}
}

func TestForKey_ZeroShards(t *testing.T) {
	// Zero or negative shard counts are treated as 1
	if got := ForKey("ACTIVITY#1", 0); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
	if got := ForKey("ACTIVITY#1", -1); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

func TestForKey_Deterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("ACTIVITY#%020d", i)
		if ForKey(key, 16) != ForKey(key, 16) {
			t.Errorf("ForKey(%q) not deterministic", key)
		}
	}
}

func TestForKey_Distribution(t *testing.T) {
	n := 16
	counts := make([]int, n)
	for i := 0; i < 1600; i++ {
		s := ForKey(fmt.Sprintf("ACTIVITY#%020d", i), n)
		if s < 0 || s >= n {
			t.Fatalf("shard %d out of range [0, %d)", s, n)
		}
		counts[s]++
	}

	// Every shard should see some traffic
	for s, c := range counts {
		if c == 0 {
			t.Errorf("shard %d received no keys", s)
		}
	}
}

func TestUniform_Range(t *testing.T) {
	tests := []struct {
		n    int
		want int // exclusive upper bound
	}{
		{-1, 1},
		{0, 1},
		{1, 1},
		{5, 5},
		{256, 256},
	}

	for _, tt := range tests {
		for i := 0; i < 500; i++ {
			s := Uniform(tt.n)
			if s < 0 || s >= tt.want {
				t.Fatalf("Uniform(%d) = %d, out of range", tt.n, s)
			}
		}
	}
}

func TestUniform_CoversAllShards(t *testing.T) {
	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		seen[Uniform(5)] = true
	}
	if len(seen) != 5 {
		t.Errorf("expected all 5 shards to be picked, got %d", len(seen))
	}
}

func BenchmarkForKey(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ForKey("ACTIVITY#00000000000000000042-abc", 256)
	}
}
