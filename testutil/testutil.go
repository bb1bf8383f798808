package testutil

import (
	"cmp"
	"math/rand"
	"sync"

	"github.com/hupe1980/wormdb/core"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Ints returns n values in [0, limit).
// Locks only once per call (preferred over calling Intn in a loop).
func (r *RNG) Ints(n, limit int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, n)
	for i := range out {
		out[i] = r.rand.Intn(limit)
	}
	return out
}

// NullableInts returns n values in [0, limit), each null with probability nullRate.
func (r *RNG) NullableInts(n, limit int, nullRate float64) []core.Nullable[int] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Nullable[int], n)
	for i := range out {
		if r.rand.Float64() < nullRate {
			continue
		}
		out[i] = core.Some(r.rand.Intn(limit))
	}
	return out
}

// Range returns a random inclusive range inside [0, limit).
func (r *RNG) Range(limit int) core.Range[int] {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, b := r.rand.Intn(limit), r.rand.Intn(limit)
	return core.NewRange(min(a, b), max(a, b))
}

// Perm returns a random permutation of [0, n).
func (r *RNG) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Perm(n)
}

// Pairs turns per-row keys into rebuild input, row id = position.
func Pairs[K cmp.Ordered](keys []core.Nullable[K]) []core.KeyToIndex[K] {
	out := make([]core.KeyToIndex[K], len(keys))
	for row, k := range keys {
		out[row] = core.KeyToIndex[K]{Key: k, Row: row}
	}
	return out
}

// Some wraps plain values as non-null keys.
func Some[K any](values []K) []core.Nullable[K] {
	out := make([]core.Nullable[K], len(values))
	for i, v := range values {
		out[i] = core.Some(v)
	}
	return out
}

// Scan returns, in ascending order, the rows whose key equals key.
func Scan[K cmp.Ordered](keys []core.Nullable[K], key core.Nullable[K]) []int {
	var out []int
	for row, k := range keys {
		if core.CompareNullable(k, key) == 0 {
			out = append(out, row)
		}
	}
	return out
}

// ScanRange returns, in ascending order, the rows whose non-null key lies in [lo, hi].
func ScanRange[K cmp.Ordered](keys []core.Nullable[K], lo, hi K) []int {
	r := core.NewRange(lo, hi)
	var out []int
	for row, k := range keys {
		if k.Valid && r.Contains(k.Value) {
			out = append(out, row)
		}
	}
	return out
}
