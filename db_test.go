package wormdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/wormdb/codec"
	"github.com/hupe1980/wormdb/core"
	"github.com/hupe1980/wormdb/index"
	"github.com/hupe1980/wormdb/store"
)

type event struct {
	ID   int64  `json:"id"`
	Kind string `json:"kind,omitempty"`
	At   int32  `json:"at"`
}

func eventAt(e event) core.Nullable[int32] { return core.Some(e.At) }

func eventKind(e event) core.Nullable[string] {
	if e.Kind == "" {
		return core.Null[string]()
	}
	return core.Some(e.Kind)
}

func testEvents(n int) []event {
	kinds := []string{"login", "logout", "", "purchase"}
	out := make([]event, n)
	for i := range out {
		out[i] = event{ID: int64(i), Kind: kinds[i%len(kinds)], At: int32(1000 + 7*i%50)}
	}
	return out
}

type eventTables struct {
	events *store.RowStore[event]
	at     *index.RangeIndex[int32]
	kind   *index.GroupIndex[string]
}

func openEvents(t *testing.T, db *DB) eventTables {
	t.Helper()
	events, err := OpenTable(db, "events", codec.Codec[event](codec.JSON[event]{}))
	require.NoError(t, err)
	at, err := OpenRangeIndex(t.Context(), db, events, "at", codec.NullableInt32, eventAt)
	require.NoError(t, err)
	kind, err := OpenGroupIndex(t.Context(), db, events, "kind", codec.NullableString, eventKind)
	require.NoError(t, err)
	return eventTables{events: events, at: at, kind: kind}
}

func TestDB_FileNames(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, dir, db.Dir())
	assert.Equal(t, filepath.Join(dir, "users-data"), db.DataFile("users"))
	assert.Equal(t, filepath.Join(dir, "users-index"), db.OffsetsFile("users"))
	assert.Equal(t, filepath.Join(dir, "users.age.idx"), db.IndexFile("users", "age"))
}

func TestDB_TablesAndIndexes(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)

	tbl := openEvents(t, db)
	_, err = tbl.events.Append(testEvents(20)...)
	require.NoError(t, err)

	rows, err := tbl.events.Where(store.Eq(index.Index[string](tbl.kind), core.Null[string]()))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 6, 10, 14, 18}, rows.Slice())
	require.NoError(t, db.Close())

	// closing the DB closed its tables
	_, err = tbl.events.Size()
	assert.ErrorIs(t, err, ErrClosed)

	db, err = Open(dir)
	require.NoError(t, err)
	defer db.Close()
	tbl = openEvents(t, db)
	n, err := tbl.events.Size()
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, 20, tbl.at.Len())
	assert.Equal(t, 4, tbl.kind.Cardinality()) // null is a group

	got, err := tbl.events.Query().
		And(store.Between(index.Index[int32](tbl.at), 1000, 1010)).
		And(store.Eq(index.Index[string](tbl.kind), core.Some("login"))).
		Select()
	require.NoError(t, err)
	for _, e := range got {
		assert.Equal(t, "login", e.Kind)
		assert.LessOrEqual(t, e.At, int32(1010))
	}
	assert.NotEmpty(t, got)
}

func TestDB_IndexOpenedLateIsBuilt(t *testing.T) {
	db, err := OpenTemp()
	require.NoError(t, err)
	defer db.Close()

	events, err := OpenTable(db, "events", codec.Codec[event](codec.JSON[event]{}))
	require.NoError(t, err)
	_, err = events.Append(testEvents(8)...)
	require.NoError(t, err)

	at, err := OpenRangeIndex(t.Context(), db, events, "at", codec.NullableInt32, eventAt)
	require.NoError(t, err)
	assert.Equal(t, 8, at.Len())
	assert.True(t, events.HasIndex(at))
}

func TestDB_InvalidNames(t *testing.T) {
	db, err := OpenTemp()
	require.NoError(t, err)
	defer db.Close()

	for _, name := range []string{"", "a/b", "a.b", "-x"} {
		_, err := OpenTable(db, name, codec.Codec[int64](codec.Int64))
		assert.ErrorIs(t, err, ErrInvalidArgument, name)
	}

	s, err := OpenTable(db, "nums", codec.Codec[int64](codec.Int64))
	require.NoError(t, err)
	_, err = OpenRangeIndex(t.Context(), db, s, "a.b", codec.NotNullFixed(codec.Int64), func(v int64) core.Nullable[int64] { return core.Some(v) })
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Open("")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDB_FixedWidthTableHasNoOffsetsFile(t *testing.T) {
	db, err := OpenTemp()
	require.NoError(t, err)
	defer db.Close()

	s, err := OpenTable(db, "nums", codec.Codec[int64](codec.Int64))
	require.NoError(t, err)
	_, err = s.Append(1, 2, 3)
	require.NoError(t, err)

	_, err = os.Stat(db.OffsetsFile("nums"))
	assert.True(t, os.IsNotExist(err))
	fi, err := os.Stat(db.DataFile("nums"))
	require.NoError(t, err)
	assert.Equal(t, int64(24), fi.Size())
}

func TestOpenTemp_RemovedOnClose(t *testing.T) {
	db, err := OpenTemp()
	require.NoError(t, err)
	dir := db.Dir()
	_, err = os.Stat(dir)
	require.NoError(t, err)

	require.NoError(t, db.Close())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	assert.ErrorIs(t, db.Close(), ErrClosed)

	_, err = OpenTable(db, "late", codec.Codec[int64](codec.Int64))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDB_MetricsAndLogger(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	db, err := OpenTemp(WithMetricsCollector(metrics), WithLogger(nil), WithCacheSize(4))
	require.NoError(t, err)
	defer db.Close()

	tbl := openEvents(t, db)
	_, err = tbl.events.Append(testEvents(5)...)
	require.NoError(t, err)
	_, err = tbl.events.Get(1)
	require.NoError(t, err)
	_, err = tbl.events.Get(1)
	require.NoError(t, err)
	_, err = tbl.events.Where()
	require.NoError(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.AppendCount)
	assert.Equal(t, int64(5), stats.AppendRows)
	assert.Equal(t, int64(2), stats.RebuildCount)
	assert.Equal(t, int64(2), stats.GetCount)
	assert.Equal(t, int64(1), stats.GetCacheHits)
	assert.Equal(t, int64(1), stats.LookupCount)
}
