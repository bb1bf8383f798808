package core

import (
	"cmp"
	"slices"
)

// KeyToIndex maps one key to the row it was projected from.
// A rebuild produces one pair per row per index.
type KeyToIndex[K cmp.Ordered] struct {
	Key Nullable[K]
	Row int
}

// Pair is a shorthand for a non-null KeyToIndex.
func Pair[K cmp.Ordered](key K, row int) KeyToIndex[K] {
	return KeyToIndex[K]{Key: Some(key), Row: row}
}

// CompareKeyToIndex orders pairs by key (nulls last), then by row.
func CompareKeyToIndex[K cmp.Ordered](a, b KeyToIndex[K]) int {
	if c := CompareNullable(a.Key, b.Key); c != 0 {
		return c
	}
	return cmp.Compare(a.Row, b.Row)
}

// SortPairs sorts pairs in place with CompareKeyToIndex.
func SortPairs[K cmp.Ordered](pairs []KeyToIndex[K]) {
	slices.SortFunc(pairs, CompareKeyToIndex[K])
}
