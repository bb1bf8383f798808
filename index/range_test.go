package index

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/wormdb/codec"
	"github.com/hupe1980/wormdb/core"
	"github.com/hupe1980/wormdb/internal/fs"
	"github.com/hupe1980/wormdb/rowset"
	"github.com/hupe1980/wormdb/testutil"
)

var int32Keys = codec.NullableInt32

func openRange(t *testing.T, path string) *RangeIndex[int32] {
	t.Helper()
	idx, err := OpenRange(path, int32Keys)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func int32Pairs(keys []core.Nullable[int]) []core.KeyToIndex[int32] {
	out := make([]core.KeyToIndex[int32], len(keys))
	for row, k := range keys {
		out[row] = core.KeyToIndex[int32]{Row: row}
		if k.Valid {
			out[row].Key = core.Some(int32(k.Value))
		}
	}
	return out
}

func TestRangeIndex_Ages(t *testing.T) {
	idx := openRange(t, filepath.Join(t.TempDir(), "people.age.idx"))

	ages := []int32{5, 15, 25, 22, 3, 77, 43, 37, 27}
	pairs := make([]core.KeyToIndex[int32], len(ages))
	for row, age := range ages {
		pairs[row] = core.Pair(age, row)
	}
	require.NoError(t, idx.Rebuild(pairs))

	rows, err := idx.LookupRange(15, 45)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 6, 7, 8}, rows.Slice())

	assert.Equal(t, core.Some[int32](3), idx.Min())
	assert.Equal(t, core.Some[int32](77), idx.Max())
	assert.Equal(t, 9, idx.Len())
}

func TestRangeIndex_ReopenReproducesLookups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.k.idx")
	keys := testutil.NewRNG(7).NullableInts(2000, 300, 0.05)

	idx, err := OpenRange(path, int32Keys)
	require.NoError(t, err)
	require.NoError(t, idx.Rebuild(int32Pairs(keys)))
	wantKeys, err := idx.Keys(true)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	reopened := openRange(t, path)
	gotKeys, err := reopened.Keys(true)
	require.NoError(t, err)
	assert.Equal(t, wantKeys, gotKeys)
	assert.True(t, gotKeys[len(gotKeys)-1].IsNull())

	for _, k := range gotKeys {
		var want []int
		for row, key := range keys {
			if key.Valid == k.Valid && (!k.Valid || int32(key.Value) == k.Value) {
				want = append(want, row)
			}
		}
		rows, err := reopened.Lookup(k)
		require.NoError(t, err)
		assert.Equal(t, want, rows.Slice(), "key %v", k)
	}

	rows, err := reopened.Lookup(core.Some[int32](1000))
	require.NoError(t, err)
	assert.True(t, rows.IsEmpty())
}

func TestRangeIndex_RebuildIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.k.idx")
	idx := openRange(t, path)
	keys := testutil.NewRNG(3).NullableInts(500, 50, 0.1)

	require.NoError(t, idx.Rebuild(int32Pairs(keys)))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, idx.Rebuild(int32Pairs(keys)))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// a smaller rebuild must not leave stale bytes behind
	require.NoError(t, idx.Rebuild(int32Pairs(keys[:10])))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(8+10*(4+4)), info.Size())
}

func TestRangeIndex_Boundaries(t *testing.T) {
	idx := openRange(t, filepath.Join(t.TempDir(), "t.k.idx"))

	rows, err := idx.LookupRange(0, 100)
	require.NoError(t, err)
	assert.True(t, rows.IsEmpty())
	rows, err = idx.Lookup(core.Null[int32]())
	require.NoError(t, err)
	assert.True(t, rows.IsEmpty())

	keys := testutil.Some(testutil.NewRNG(11).Ints(1000, 100))
	require.NoError(t, idx.Rebuild(int32Pairs(keys)))

	for _, v := range []int32{0, 17, 50, 99} {
		single, err := idx.LookupRange(v, v)
		require.NoError(t, err)
		exact, err := idx.Lookup(core.Some(v))
		require.NoError(t, err)
		assert.True(t, single.Equal(exact))
	}

	full, err := idx.LookupRange(idx.Min().Value, idx.Max().Value)
	require.NoError(t, err)
	assert.True(t, full.IsDense())
	assert.Equal(t, 1000, full.Len())

	_, err = idx.LookupRange(5, 4)
	assert.ErrorIs(t, err, core.ErrInvalidRange)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	_, err = idx.LookupRanges(core.NewRange[int32](1, 2), core.NewRange[int32](9, 3))
	assert.ErrorIs(t, err, core.ErrInvalidRange)
}

func TestRangeIndex_DenseShortcutNeedsExactRows(t *testing.T) {
	idx := openRange(t, filepath.Join(t.TempDir(), "t.k.idx"))

	// rows {0, 2, 3}: covering range must not claim row 1
	require.NoError(t, idx.Rebuild([]core.KeyToIndex[int32]{
		core.Pair[int32](1, 0), core.Pair[int32](2, 2), core.Pair[int32](3, 3),
	}))
	rows, err := idx.LookupRange(0, 10)
	require.NoError(t, err)
	assert.False(t, rows.IsDense())
	assert.Equal(t, []int{0, 2, 3}, rows.Slice())

	// null keys exclude the shortcut
	require.NoError(t, idx.Rebuild([]core.KeyToIndex[int32]{
		core.Pair[int32](1, 0), {Row: 1}, core.Pair[int32](3, 2),
	}))
	rows, err = idx.LookupRange(0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, rows.Slice())
	nulls, err := idx.Lookup(core.Null[int32]())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, nulls.Slice())
}

func TestRangeIndex_LookupAnyAndRanges(t *testing.T) {
	idx := openRange(t, filepath.Join(t.TempDir(), "t.k.idx"))
	keys := []core.Nullable[int]{
		core.Some(10), core.Some(20), core.Null[int](), core.Some(30), core.Some(10), core.Some(40),
	}
	require.NoError(t, idx.Rebuild(int32Pairs(keys)))

	rows, err := idx.LookupAny([]core.Nullable[int32]{core.Some[int32](10), core.Null[int32](), core.Some[int32](10), core.Some[int32](99)})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 4}, rows.Slice())

	rows, err = idx.LookupRanges(core.NewRange[int32](15, 25), core.NewRange[int32](35, 45), core.NewRange[int32](18, 22))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5}, rows.Slice())

	got, err := idx.Keys(false)
	require.NoError(t, err)
	assert.Equal(t, []core.Nullable[int32]{core.Some[int32](10), core.Some[int32](20), core.Some[int32](30), core.Some[int32](40)}, got)
}

func TestRangeIndex_ClearClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.k.idx")
	idx, err := OpenRange(path, int32Keys)
	require.NoError(t, err)
	require.NoError(t, idx.Rebuild([]core.KeyToIndex[int32]{core.Pair[int32](1, 0)}))
	require.NoError(t, idx.Clear())
	assert.Equal(t, 0, idx.Len())
	assert.True(t, idx.Min().IsNull())

	require.NoError(t, idx.Close())
	_, err = idx.Lookup(core.Some[int32](1))
	assert.ErrorIs(t, err, core.ErrClosed)
	assert.ErrorIs(t, idx.Rebuild(nil), core.ErrState)
}

func TestRangeIndex_RejectsBadInput(t *testing.T) {
	idx, err := OpenRange(filepath.Join(t.TempDir(), "t.k.idx"), codec.NotNullFixed(codec.Int32))
	require.NoError(t, err)
	defer idx.Close()

	err = idx.Rebuild([]core.KeyToIndex[int32]{{Row: 0}})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	err = idx.Rebuild([]core.KeyToIndex[int32]{core.Pair[int32](1, -1)})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestRangeIndex_TruncatedFileIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.k.idx")
	idx, err := OpenRange(path, int32Keys)
	require.NoError(t, err)
	require.NoError(t, idx.Rebuild([]core.KeyToIndex[int32]{core.Pair[int32](1, 0), core.Pair[int32](2, 1)}))
	require.NoError(t, idx.Close())

	require.NoError(t, os.Truncate(path, 12))
	_, err = OpenRange(path, int32Keys)
	assert.ErrorIs(t, err, core.ErrCorrupt)
}

func TestRangeIndex_WriteFailureIsIOError(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule(".idx", fs.Fault{FailAfterBytes: 16})
	idx, err := OpenRange(filepath.Join(t.TempDir(), "t.k.idx"), int32Keys, WithFileSystem(ffs), WithWriteBufferSize(16))
	require.NoError(t, err)
	defer idx.Close()

	keys := testutil.Some(testutil.NewRNG(1).Ints(100, 10))
	err = idx.Rebuild(int32Pairs(keys))
	assert.ErrorIs(t, err, core.ErrIO)
}

func TestRangeIndex_ConcurrentReaders(t *testing.T) {
	const rows, readers, lookups = 80_000, 12, 200

	keys := testutil.NewRNG(99).NullableInts(rows, 10_000, 0.01)
	idx := openRange(t, filepath.Join(t.TempDir(), "t.k.idx"))
	require.NoError(t, idx.Rebuild(int32Pairs(keys)))

	var wg sync.WaitGroup
	for g := range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := testutil.NewRNG(int64(g))
			for range lookups {
				r := rng.Range(10_000)
				want := testutil.ScanRange(keys, r.Min, r.Max)
				got, err := idx.LookupRange(int32(r.Min), int32(r.Max))
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, len(want), got.Len(), "range %v", r)
			}
		}()
	}
	wg.Wait()
}

// floatPairs holds keys 1, 5, null, 20 in rows 0..3.
func floatPairs() []core.KeyToIndex[float64] {
	return []core.KeyToIndex[float64]{
		{Key: core.Some(1.0), Row: 0},
		{Key: core.Some(5.0), Row: 1},
		{Key: core.Null[float64](), Row: 2},
		{Key: core.Some(20.0), Row: 3},
	}
}

func TestRangeIndex_NaNBoundIsInvalid(t *testing.T) {
	idx, err := OpenRange(filepath.Join(t.TempDir(), "t.score.idx"), codec.NullableFloat64)
	require.NoError(t, err)
	defer idx.Close()
	require.NoError(t, idx.Rebuild(floatPairs()))

	_, err = idx.LookupRange(math.NaN(), 10)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	_, err = idx.LookupRange(10, math.NaN())
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	rows, err := idx.LookupRange(0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, rows.Slice())
	rows, err = idx.Lookup(core.Null[float64]())
	require.NoError(t, err)
	assert.Equal(t, []int{2}, rows.Slice())
}

func TestIsDense(t *testing.T) {
	assert.True(t, isDense([]int{2, 0, 1}))
	assert.False(t, isDense([]int{0, 0, 1}))
	assert.False(t, isDense([]int{0, 3, 1}))
	assert.False(t, isDense(nil))
	assert.True(t, rowset.Dense(3).Equal(rowset.Of(2, 1, 0)))
}
