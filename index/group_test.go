package index

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/wormdb/codec"
	"github.com/hupe1980/wormdb/core"
	"github.com/hupe1980/wormdb/testutil"
)

func cityPairs() []core.KeyToIndex[string] {
	cities := []core.Nullable[string]{
		core.Some("Oslo"), core.Some("Bergen"), core.Null[string](), core.Some("Oslo"),
		core.Some("Tromsø"), core.Some("Bergen"), core.Some("Oslo"), core.Null[string](),
	}
	return testutil.Pairs(cities)
}

func openGroup(t *testing.T, path string) *GroupIndex[string] {
	t.Helper()
	idx, err := OpenGroup(path, codec.NullableString)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestGroupIndex_LookupAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.city.idx")
	idx, err := OpenGroup(path, codec.NullableString)
	require.NoError(t, err)
	require.NoError(t, idx.Rebuild(cityPairs()))
	assert.Equal(t, 4, idx.Cardinality())
	require.NoError(t, idx.Close())

	idx = openGroup(t, path)
	tests := []struct {
		key  core.Nullable[string]
		want []int
	}{
		{core.Some("Oslo"), []int{0, 3, 6}},
		{core.Some("Bergen"), []int{1, 5}},
		{core.Some("Tromsø"), []int{4}},
		{core.Null[string](), []int{2, 7}},
		{core.Some("Paris"), nil},
	}
	for _, tt := range tests {
		rows, err := idx.Lookup(tt.key)
		require.NoError(t, err)
		assert.Equal(t, tt.want, nilIfEmpty(rows.Slice()), "key %v", tt.key)
	}

	keys, err := idx.Keys(true)
	require.NoError(t, err)
	assert.Equal(t, []core.Nullable[string]{core.Some("Bergen"), core.Some("Oslo"), core.Some("Tromsø"), core.Null[string]()}, keys)
	keys, err = idx.Keys(false)
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestGroupIndex_RangeScansKeys(t *testing.T) {
	idx := openGroup(t, filepath.Join(t.TempDir(), "t.city.idx"))
	require.NoError(t, idx.Rebuild(cityPairs()))

	rows, err := idx.LookupRange("B", "P")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 3, 5, 6}, rows.Slice())

	rows, err = idx.LookupRange("Oslo", "Oslo")
	require.NoError(t, err)
	exact, err := idx.Lookup(core.Some("Oslo"))
	require.NoError(t, err)
	assert.True(t, rows.Equal(exact))

	_, err = idx.LookupRange("Z", "A")
	assert.ErrorIs(t, err, core.ErrInvalidRange)

	rows, err = idx.LookupRanges(core.NewRange("A", "C"), core.NewRange("T", "U"))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 5}, rows.Slice())

	rows, err = idx.LookupAny([]core.Nullable[string]{core.Null[string](), core.Some("Tromsø")})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 7}, rows.Slice())
}

func TestGroupIndex_RebuildIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.k.idx")
	idx, err := OpenGroup[int64](path, codec.NullableInt64)
	require.NoError(t, err)
	defer idx.Close()

	keys := testutil.NewRNG(5).NullableInts(1000, 20, 0.1)
	pairs := func() []core.KeyToIndex[int64] {
		out := make([]core.KeyToIndex[int64], len(keys))
		for row, k := range keys {
			out[row].Row = row
			if k.Valid {
				out[row].Key = core.Some(int64(k.Value))
			}
		}
		return out
	}

	require.NoError(t, idx.Rebuild(pairs()))
	first, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, idx.Rebuild(pairs()))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	for k := range 20 {
		rows, err := idx.Lookup(core.Some(int64(k)))
		require.NoError(t, err)
		assert.Equal(t, testutil.Scan(keys, core.Some(k)), nilIfEmpty(rows.Slice()))
	}
}

func TestGroupIndex_FlippedByteIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.city.idx")
	idx, err := OpenGroup(path, codec.NullableString)
	require.NoError(t, err)
	require.NoError(t, idx.Rebuild(cityPairs()))
	require.NoError(t, idx.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Row blocks follow the header in key order: Bergen first.
	header := int(data[0])<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3])
	data[header+3] ^= 0x01
	require.NoError(t, os.WriteFile(path, data, 0o644))

	idx = openGroup(t, path)
	_, err = idx.Lookup(core.Some("Bergen"))
	assert.ErrorIs(t, err, core.ErrCorrupt)

	// other blocks are still readable
	rows, err := idx.Lookup(core.Some("Oslo"))
	require.NoError(t, err)
	assert.Equal(t, 3, rows.Len())
}

func TestGroupIndex_EmptyAndClear(t *testing.T) {
	idx := openGroup(t, filepath.Join(t.TempDir(), "t.city.idx"))
	rows, err := idx.Lookup(core.Some("Oslo"))
	require.NoError(t, err)
	assert.True(t, rows.IsEmpty())

	require.NoError(t, idx.Rebuild(cityPairs()))
	require.NoError(t, idx.Clear())
	assert.Equal(t, 0, idx.Cardinality())
	rows, err = idx.LookupRange("A", "Z")
	require.NoError(t, err)
	assert.True(t, rows.IsEmpty())
}

func TestGroupIndex_BadHeaderIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.city.idx")
	require.NoError(t, os.WriteFile(path, []byte{0, 0, 0, 4, 0, 0, 0, 1}, 0o644))
	_, err := OpenGroup(path, codec.NullableString)
	assert.ErrorIs(t, err, core.ErrCorrupt)
}

func TestGroupIndex_HugeKeyCountIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.city.idx")
	idx, err := OpenGroup(path, codec.NullableString)
	require.NoError(t, err)
	require.NoError(t, idx.Rebuild([]core.KeyToIndex[string]{
		{Key: core.Some("a"), Row: 0},
		{Key: core.Some("b"), Row: 1},
	}))
	require.NoError(t, idx.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[4] = 0x7f
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = OpenGroup(path, codec.NullableString)
	assert.ErrorIs(t, err, core.ErrCorrupt)
}

func TestGroupIndex_NaNBoundIsInvalid(t *testing.T) {
	idx, err := OpenGroup(filepath.Join(t.TempDir(), "t.score.idx"), codec.Codec[core.Nullable[float64]](codec.NullableFloat64))
	require.NoError(t, err)
	defer idx.Close()
	require.NoError(t, idx.Rebuild(floatPairs()))

	_, err = idx.LookupRange(math.NaN(), 10)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	_, err = idx.LookupRange(10, math.NaN())
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	_, err = idx.LookupRanges(core.NewRange(math.NaN(), 10))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	rows, err := idx.LookupRange(0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, rows.Slice())
}

func nilIfEmpty(v []int) []int {
	if len(v) == 0 {
		return nil
	}
	return v
}
