// Package testutil provides testing utilities for wormdb.
//
// This package is intended for use in tests and benchmarks only.
// It provides seeded random data and brute-force reference scans that
// index lookups are checked against.
//
// # Random Data
//
//	rng := testutil.NewRNG(seed)
//	ages := rng.Ints(1000, 100)            // values in [0, 100)
//	keys := rng.NullableInts(1000, 100, 0.1) // ~10% nulls
//
// # Reference Scans
//
//	want := testutil.ScanRange(keys, 15, 45) // row ids with a key in [15, 45]
package testutil
