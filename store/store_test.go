package store

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/wormdb/codec"
	"github.com/hupe1980/wormdb/core"
	"github.com/hupe1980/wormdb/fileio"
	"github.com/hupe1980/wormdb/internal/fs"
)

func paths(t *testing.T, table string) (string, string) {
	dir := t.TempDir()
	return filepath.Join(dir, table+"-data"), filepath.Join(dir, table+"-index")
}

func openInt64(t *testing.T, data string, opts ...Option) *RowStore[int64] {
	t.Helper()
	s, err := Open[int64](data, "", codec.Int64, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func openStrings(t *testing.T, data, offsets string, opts ...Option) *RowStore[string] {
	t.Helper()
	s, err := Open[string](data, offsets, codec.String, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRowStore_AppendReopenIterate(t *testing.T) {
	data, _ := paths(t, "numbers")

	s, err := Open[int64](data, "", codec.Int64)
	require.NoError(t, err)
	first, err := s.Append(100, 200, 300, 400)
	require.NoError(t, err)
	assert.Equal(t, 0, first)
	require.NoError(t, s.Close())

	info, err := os.Stat(data)
	require.NoError(t, err)
	assert.Equal(t, int64(4*8), info.Size())

	s = openInt64(t, data)
	n, err := s.Size()
	require.NoError(t, err)
	require.Equal(t, 4, n)

	var got []int64
	require.NoError(t, s.Scan(0, n, func(row int, v int64) error {
		got = append(got, v)
		return nil
	}))
	assert.Equal(t, []int64{100, 200, 300, 400}, got)

	for row, want := range got {
		v, err := s.Get(row)
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
	assert.Equal(t, 8, s.FixedWidth())
}

func TestRowStore_VariableWidth(t *testing.T) {
	data, offsets := paths(t, "words")
	words := []string{"", "a", "wormdb", "héllo wörld", "x"}

	s, err := Open[string](data, offsets, codec.String, WithOffsetBatch(2), WithWriteBufferSize(16))
	require.NoError(t, err)
	for i := 0; i < 40; i++ {
		_, err := s.Append(words...)
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	info, err := os.Stat(offsets)
	require.NoError(t, err)
	assert.Equal(t, int64(200*8), info.Size())

	s = openStrings(t, data, offsets, WithReadBufferSize(16))
	n, err := s.Size()
	require.NoError(t, err)
	require.Equal(t, 200, n)
	for row := n - 1; row >= 0; row-- {
		v, err := s.Get(row)
		require.NoError(t, err)
		assert.Equal(t, words[row%len(words)], v)
	}
	all, err := s.All()
	require.NoError(t, err)
	assert.Len(t, all, 200)
	assert.Equal(t, 0, s.FixedWidth())
}

func TestRowStore_SessionExclusivity(t *testing.T) {
	data, _ := paths(t, "t")
	s := openInt64(t, data)
	_, err := s.Append(1, 2)
	require.NoError(t, err)

	app, err := s.BeginAppend()
	require.NoError(t, err)

	_, err = s.BeginAppend()
	assert.ErrorIs(t, err, core.ErrStoreBusy)
	assert.ErrorIs(t, err, core.ErrConcurrency)

	_, err = s.Size()
	assert.ErrorIs(t, err, core.ErrConcurrency)
	_, err = s.Get(0)
	assert.ErrorIs(t, err, core.ErrState)
	assert.ErrorIs(t, s.Clear(), core.ErrState)
	assert.ErrorIs(t, s.Close(), core.ErrState)
	assert.ErrorIs(t, s.Scan(0, 1, func(int, int64) error { return nil }), core.ErrState)

	row, err := app.Add(3)
	require.NoError(t, err)
	assert.Equal(t, 2, row)
	assert.Equal(t, 3, app.Size())
	require.NoError(t, app.Close())
	require.NoError(t, app.Close())

	_, err = app.Add(4)
	assert.ErrorIs(t, err, core.ErrState)

	n, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRowStore_GetErrors(t *testing.T) {
	data, _ := paths(t, "t")
	s := openInt64(t, data)
	_, err := s.Append(7)
	require.NoError(t, err)

	for _, row := range []int{-1, 1, 100} {
		_, err := s.Get(row)
		assert.ErrorIs(t, err, core.ErrInvalidArgument, "row %d", row)
	}
	assert.ErrorIs(t, s.Scan(0, 2, func(int, int64) error { return nil }), core.ErrInvalidArgument)
	assert.ErrorIs(t, s.Scan(1, 0, func(int, int64) error { return nil }), core.ErrInvalidArgument)

	require.NoError(t, s.Close())
	_, err = s.Get(0)
	assert.ErrorIs(t, err, core.ErrClosed)
	assert.ErrorIs(t, s.Close(), core.ErrClosed)
	_, err = s.BeginAppend()
	assert.ErrorIs(t, err, core.ErrClosed)
}

func TestRowStore_CodecErrorKeepsSession(t *testing.T) {
	data, _ := paths(t, "t")
	s, err := Open[core.Nullable[int32]](data, "", codec.NullableInt32)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	app, err := s.BeginAppend()
	require.NoError(t, err)
	_, err = app.Add(core.Some[int32](1))
	require.NoError(t, err)
	_, err = app.Add(core.Some[int32](math.MinInt32))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	row, err := app.Add(core.Null[int32]())
	require.NoError(t, err)
	assert.Equal(t, 1, row)
	require.NoError(t, app.Close())

	all, err := s.All()
	require.NoError(t, err)
	assert.Equal(t, []core.Nullable[int32]{core.Some[int32](1), core.Null[int32]()}, all)
}

type wrongWidth struct{}

func (wrongWidth) ItemSize() int { return 4 }

func (wrongWidth) Encode(w *fileio.WriteCursor, v int64) error {
	w.PutInt64(v)
	return w.Err()
}

func (wrongWidth) Decode(r *fileio.ReadCursor) (int64, error) {
	v := r.Int64()
	return v, r.Err()
}

func TestRowStore_WidthMismatch(t *testing.T) {
	data, _ := paths(t, "t")
	s, err := Open[int64](data, "", wrongWidth{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.Append(1)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	n, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	info, err := os.Stat(data)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestRowStore_SizeMismatchIsCorrupt(t *testing.T) {
	data, offsets := paths(t, "t")
	s, err := Open[string](data, offsets, codec.String)
	require.NoError(t, err)
	_, err = s.Append("abc", "defg")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// move the end of row 0 one byte further
	raw, err := os.ReadFile(offsets)
	require.NoError(t, err)
	binary.BigEndian.PutUint64(raw, binary.BigEndian.Uint64(raw)+1)
	require.NoError(t, os.WriteFile(offsets, raw, 0o644))

	s = openStrings(t, data, offsets)
	_, err = s.Get(0)
	assert.ErrorIs(t, err, core.ErrSizeMismatch)
	assert.ErrorIs(t, err, core.ErrCorrupt)

	err = s.Scan(0, 2, func(int, string) error { return nil })
	assert.ErrorIs(t, err, core.ErrSizeMismatch)
}

func TestRowStore_OffsetsPastDataAreCorrupt(t *testing.T) {
	data, offsets := paths(t, "t")
	s, err := Open[string](data, offsets, codec.String)
	require.NoError(t, err)
	_, err = s.Append("abc")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.NoError(t, os.Truncate(data, 2))
	_, err = Open[string](data, offsets, codec.String)
	assert.ErrorIs(t, err, core.ErrCorrupt)

	require.NoError(t, os.WriteFile(offsets, []byte{1, 2, 3}, 0o644))
	_, err = Open[string](data, offsets, codec.String)
	assert.ErrorIs(t, err, core.ErrCorrupt)
}

func TestRowStore_UncommittedBytesAreDiscarded(t *testing.T) {
	data, _ := paths(t, "t")
	s, err := Open[int64](data, "", codec.Int64)
	require.NoError(t, err)
	_, err = s.Append(1, 2)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	f, err := os.OpenFile(data, os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte{9, 9, 9})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s = openInt64(t, data)
	n, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.Append(3)
	require.NoError(t, err)
	all, err := s.All()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, all)
}

func TestRowStore_Clear(t *testing.T) {
	data, offsets := paths(t, "t")
	s := openStrings(t, data, offsets)
	_, err := s.Append("a", "b")
	require.NoError(t, err)
	_, err = s.Get(1)
	require.NoError(t, err)

	cleared := 0
	s.AddListener(ListenerFuncs{Cleared: func() { cleared++ }})
	require.NoError(t, s.Clear())
	assert.Equal(t, 1, cleared)

	n, err := s.Size()
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = s.Get(1)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	for _, p := range []string{data, offsets} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Zero(t, info.Size(), p)
	}

	_, err = s.Append("c")
	require.NoError(t, err)
	v, err := s.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "c", v)
}

func TestRowStore_FaultyWrite(t *testing.T) {
	data, offsets := paths(t, "t")
	faulty := fs.NewFaultyFS(nil)
	faulty.AddRule("-data", fs.Fault{FailAfterBytes: 64})

	s := openStrings(t, data, offsets, WithFileSystem(faulty), WithWriteBufferSize(16), WithOffsetBatch(1))
	app, err := s.BeginAppend()
	require.NoError(t, err)

	var addErr error
	for i := 0; i < 100 && addErr == nil; i++ {
		_, addErr = app.Add("0123456789")
	}
	require.ErrorIs(t, addErr, core.ErrIO)
	assert.ErrorIs(t, addErr, fs.ErrInjected)

	_, err = app.Add("more")
	assert.ErrorIs(t, err, core.ErrIO)
	assert.ErrorIs(t, app.Close(), core.ErrIO)

	// only rows with persisted offsets survive
	n, err := s.Size()
	require.NoError(t, err)
	all, err := s.All()
	require.NoError(t, err)
	assert.Len(t, all, n)
	for _, v := range all {
		assert.Equal(t, "0123456789", v)
	}
}

func TestRowStore_FaultyRead(t *testing.T) {
	data, _ := paths(t, "t")
	s, err := Open[int64](data, "", codec.Int64)
	require.NoError(t, err)
	_, err = s.Append(1, 2, 3)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	faulty := fs.NewFaultyFS(nil)
	faulty.AddRule("-data", fs.Fault{FailAfterBytes: -1, FailOnRead: true})
	s = openInt64(t, data, WithFileSystem(faulty))
	_, err = s.Get(1)
	assert.ErrorIs(t, err, core.ErrIO)
	_, err = s.Get(2)
	assert.ErrorIs(t, err, core.ErrIO)
}

type recordingMetrics struct {
	mu       sync.Mutex
	gets     int
	cached   int
	appended int
	rebuilds map[string]int
	lookups  int
}

func (m *recordingMetrics) RecordGet(cached bool, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if cached {
		m.cached++
	}
}

func (m *recordingMetrics) RecordAppend(rows int, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended += rows
}

func (m *recordingMetrics) RecordRebuild(index string, rows int, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rebuilds == nil {
		m.rebuilds = map[string]int{}
	}
	m.rebuilds[index] = rows
}

func (m *recordingMetrics) RecordLookup(time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
}

func TestRowStore_CacheAndMetrics(t *testing.T) {
	data, _ := paths(t, "t")
	m := &recordingMetrics{}
	s := openInt64(t, data, WithMetrics(m), WithCacheSize(2))
	_, err := s.Append(10, 20, 30)
	require.NoError(t, err)

	for _, row := range []int{0, 0, 1, 2, 0} {
		_, err := s.Get(row)
		require.NoError(t, err)
	}
	assert.Equal(t, 5, m.gets)
	assert.Equal(t, 1, m.cached)
	assert.Equal(t, 3, m.appended)
}

func TestRowStore_ConcurrentGet(t *testing.T) {
	data, offsets := paths(t, "t")
	s := openStrings(t, data, offsets, WithCacheSize(4))
	words := make([]string, 500)
	for i := range words {
		words[i] = string(rune('a'+i%26)) + "-" + string(rune('A'+i%20))
	}
	_, err := s.Append(words...)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 400; i++ {
				row := (i*31 + g*17) % len(words)
				v, err := s.Get(row)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, words[row], v)
			}
		}(g)
	}
	wg.Wait()
}
