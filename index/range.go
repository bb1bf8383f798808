package index

import (
	"cmp"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/wormdb/codec"
	"github.com/hupe1980/wormdb/core"
	"github.com/hupe1980/wormdb/fileio"
	"github.com/hupe1980/wormdb/internal/fs"
	"github.com/hupe1980/wormdb/rowset"
)

const rangeHeaderSize = 8

// RangeIndex is an index over a sorted, fixed-width key array.
type RangeIndex[K cmp.Ordered] struct {
	opts    options
	codec   codec.Fixed[core.Nullable[K]]
	keySize int
	file    fs.File

	count     int
	nullsFrom int // first position of the trailing null run; count when none
	min, max  core.Nullable[K]
	dense     bool // no nulls and rows are exactly [0, count)
	closed    bool
}

var _ Index[int] = (*RangeIndex[int])(nil)

// OpenRange opens (or creates) the range index stored at path.
func OpenRange[K cmp.Ordered](path string, c codec.Fixed[core.Nullable[K]], opts ...Option) (*RangeIndex[K], error) {
	if c.ItemSize() <= 0 {
		return nil, fmt.Errorf("%w: range index keys need a positive width", core.ErrInvalidArgument)
	}
	o := newOptions(path, opts)
	f, err := fs.OpenReadWrite(o.fs, path)
	if err != nil {
		return nil, core.IOError("open "+path, err)
	}
	idx := &RangeIndex[K]{opts: o, codec: c, keySize: c.ItemSize(), file: f}
	if err := idx.load(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *RangeIndex[K]) Name() string { return idx.opts.name }

// Len returns the number of (key, row) entries.
func (idx *RangeIndex[K]) Len() int { return idx.count }

// Min returns the smallest non-null key, or null when there is none.
func (idx *RangeIndex[K]) Min() core.Nullable[K] { return idx.min }

// Max returns the largest non-null key, or null when there is none.
func (idx *RangeIndex[K]) Max() core.Nullable[K] { return idx.max }

func (idx *RangeIndex[K]) keyOffset(i int) int64 {
	return rangeHeaderSize + int64(i)*int64(idx.keySize)
}

func (idx *RangeIndex[K]) rowOffset(i int) int64 {
	return rangeHeaderSize + int64(idx.count)*int64(idx.keySize) + int64(i)*4
}

func (idx *RangeIndex[K]) reset() {
	idx.count, idx.nullsFrom = 0, 0
	idx.min, idx.max = core.Null[K](), core.Null[K]()
	idx.dense = false
}

func (idx *RangeIndex[K]) load() error {
	idx.reset()
	size, err := fs.Size(idx.file)
	if err != nil {
		return core.IOError("stat", err)
	}
	if size == 0 {
		return nil
	}

	r := idx.reader()
	defer r.release()

	count := r.c.Int64()
	if err := r.c.Err(); err != nil {
		return err
	}
	if count < 0 || count > math.MaxInt32 {
		return core.Corruptf("range index %s: bad entry count %d", idx.opts.name, count)
	}
	if want := rangeHeaderSize + count*int64(idx.keySize+4); want != size {
		return core.Corruptf("range index %s: size %d, expected %d for %d entries", idx.opts.name, size, want, count)
	}
	idx.count = int(count)

	// nulls sort last: find the start of the null run
	lo, hi := 0, idx.count
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if r.key(mid).Valid {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	idx.nullsFrom = lo
	if idx.nullsFrom > 0 {
		idx.min = r.key(0)
		idx.max = r.key(idx.nullsFrom - 1)
	}
	if r.err != nil {
		return r.err
	}

	if idx.nullsFrom == idx.count {
		r.c.Seek(idx.rowOffset(0))
		rows := make([]int, idx.count)
		for i := range rows {
			rows[i] = int(r.c.Int32())
		}
		if err := r.c.Err(); err != nil {
			return err
		}
		idx.dense = isDense(rows)
	}
	return nil
}

// isDense reports whether rows is a permutation of [0, len(rows)).
func isDense(rows []int) bool {
	if len(rows) == 0 {
		return false
	}
	seen := bitset.New(uint(len(rows)))
	for _, row := range rows {
		if row < 0 || row >= len(rows) || seen.Test(uint(row)) {
			return false
		}
		seen.Set(uint(row))
	}
	return seen.Count() == uint(len(rows))
}

// Rebuild sorts pairs by key (nulls last) then row, and rewrites the file.
func (idx *RangeIndex[K]) Rebuild(pairs []core.KeyToIndex[K]) error {
	if idx.closed {
		return core.ErrClosed
	}
	if err := checkPairs(pairs); err != nil {
		return err
	}
	start := time.Now()
	core.SortPairs(pairs)

	if err := idx.file.Truncate(0); err != nil {
		return core.IOError("truncate", err)
	}
	idx.reset()

	w := fileio.NewWriteCursor(idx.file, idx.opts.writeBufferSize)
	w.Seek(0)
	w.PutInt64(int64(len(pairs)))
	for _, p := range pairs {
		if err := idx.codec.Encode(w, p.Key); err != nil {
			_ = w.Close()
			_ = idx.file.Truncate(0)
			return fmt.Errorf("range index %s: encode key of row %d: %w", idx.opts.name, p.Row, err)
		}
	}
	for _, p := range pairs {
		w.PutInt32(int32(p.Row))
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := idx.file.Sync(); err != nil {
		return core.IOError("sync", err)
	}

	idx.count = len(pairs)
	idx.nullsFrom = idx.count
	for i, p := range pairs {
		if !p.Key.Valid {
			idx.nullsFrom = i
			break
		}
	}
	if idx.nullsFrom > 0 {
		idx.min = pairs[0].Key
		idx.max = pairs[idx.nullsFrom-1].Key
	}
	if idx.nullsFrom == idx.count {
		rows := make([]int, len(pairs))
		for i, p := range pairs {
			rows[i] = p.Row
		}
		idx.dense = isDense(rows)
	}

	idx.opts.logger.Debug("range index rebuilt",
		slog.String("index", idx.opts.name),
		slog.Int("entries", idx.count),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (idx *RangeIndex[K]) Clear() error {
	if idx.closed {
		return core.ErrClosed
	}
	if err := idx.file.Truncate(0); err != nil {
		return core.IOError("truncate", err)
	}
	idx.reset()
	return nil
}

func (idx *RangeIndex[K]) Close() error {
	if idx.closed {
		return nil
	}
	idx.closed = true
	return core.IOError("close", idx.file.Close())
}

func (idx *RangeIndex[K]) Lookup(key core.Nullable[K]) (*rowset.Set, error) {
	if idx.closed {
		return nil, core.ErrClosed
	}
	if key.Valid {
		return idx.LookupRange(key.Value, key.Value)
	}
	if idx.nullsFrom == idx.count {
		return rowset.Empty(), nil
	}
	r := idx.reader()
	defer r.release()
	return r.rows(idx.nullsFrom, idx.count-1)
}

func (idx *RangeIndex[K]) LookupRange(min, max K) (*rowset.Set, error) {
	if idx.closed {
		return nil, core.ErrClosed
	}
	if err := core.NewRange(min, max).Validate(); err != nil {
		return nil, err
	}
	if idx.nullsFrom == 0 || cmp.Less(max, idx.min.Value) || cmp.Less(idx.max.Value, min) {
		return rowset.Empty(), nil
	}
	if idx.dense && !cmp.Less(idx.min.Value, min) && !cmp.Less(max, idx.max.Value) {
		return rowset.Dense(idx.count), nil
	}

	r := idx.reader()
	defer r.release()

	low, high := 0, idx.nullsFrom-1
	for low <= high {
		mid := int(uint(low+high) >> 1)
		k := r.key(mid)
		if r.err != nil {
			return nil, r.err
		}
		switch {
		case cmp.Less(k.Value, min):
			low = mid + 1
		case cmp.Less(max, k.Value):
			high = mid - 1
		default:
			from := r.findLowBound(low, mid, min)
			to := r.findHighBound(mid, high, max)
			if r.err != nil {
				return nil, r.err
			}
			return r.rows(from, to)
		}
	}
	return rowset.Empty(), r.err
}

func (idx *RangeIndex[K]) LookupAny(keys []core.Nullable[K]) (*rowset.Set, error) {
	return lookupAll[K](idx, keys)
}

func (idx *RangeIndex[K]) LookupRanges(ranges ...core.Range[K]) (*rowset.Set, error) {
	return lookupRanges[K](idx, ranges)
}

func (idx *RangeIndex[K]) Keys(includeNull bool) ([]core.Nullable[K], error) {
	if idx.closed {
		return nil, core.ErrClosed
	}
	var out []core.Nullable[K]
	if idx.nullsFrom > 0 {
		r := idx.reader()
		defer r.release()
		r.c.Seek(idx.keyOffset(0))
		for range idx.nullsFrom {
			k, err := idx.codec.Decode(r.c)
			if err != nil {
				return nil, err
			}
			if len(out) == 0 || core.CompareNullable(out[len(out)-1], k) != 0 {
				out = append(out, k)
			}
		}
	}
	if includeNull && idx.nullsFrom < idx.count {
		out = append(out, core.Null[K]())
	}
	return out, nil
}

// rangeReader positions one pooled cursor over the index file and keeps the
// first decoding error.
type rangeReader[K cmp.Ordered] struct {
	idx *RangeIndex[K]
	c   *fileio.ReadCursor
	err error
}

func (idx *RangeIndex[K]) reader() *rangeReader[K] {
	return &rangeReader[K]{idx: idx, c: fileio.AcquireReadCursor(idx.file, idx.opts.pool)}
}

func (r *rangeReader[K]) release() { r.c.Release() }

func (r *rangeReader[K]) key(i int) core.Nullable[K] {
	if r.err != nil {
		return core.Null[K]()
	}
	r.c.Seek(r.idx.keyOffset(i))
	k, err := r.idx.codec.Decode(r.c)
	if err != nil {
		r.err = err
	}
	return k
}

// findLowBound returns the first position in [low, high] whose key is >= min.
// key(high) must be >= min.
func (r *rangeReader[K]) findLowBound(low, high int, min K) int {
	for low < high {
		mid := int(uint(low+high) >> 1)
		if cmp.Less(r.key(mid).Value, min) {
			low = mid + 1
		} else {
			high = mid
		}
	}
	return low
}

// findHighBound returns the last position in [low, high] whose key is <= max.
// key(low) must be <= max.
func (r *rangeReader[K]) findHighBound(low, high int, max K) int {
	for low < high {
		mid := int(uint(low+high+1) >> 1)
		if cmp.Less(max, r.key(mid).Value) {
			high = mid - 1
		} else {
			low = mid
		}
	}
	return low
}

// rows reads the row ids at positions [from, to].
func (r *rangeReader[K]) rows(from, to int) (*rowset.Set, error) {
	n := to - from + 1
	if n <= 0 {
		return rowset.Empty(), nil
	}
	r.c.Seek(r.idx.rowOffset(from))
	rows := make([]int, n)
	for i := range rows {
		rows[i] = int(r.c.Int32())
	}
	if err := r.c.Err(); err != nil {
		return nil, err
	}
	if err := checkRows(r.idx.opts.name, rows); err != nil {
		return nil, err
	}
	return rowset.Wrap(rows), nil
}
