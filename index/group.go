package index

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/hupe1980/wormdb/codec"
	"github.com/hupe1980/wormdb/core"
	"github.com/hupe1980/wormdb/fileio"
	"github.com/hupe1980/wormdb/internal/fs"
	"github.com/hupe1980/wormdb/internal/hash"
	"github.com/hupe1980/wormdb/rowset"
)

// GroupIndex keeps the distinct keys in memory and a checksummed block of
// row ids per key on disk.
type GroupIndex[K cmp.Ordered] struct {
	opts  options
	codec codec.Codec[core.Nullable[K]]
	file  fs.File

	headerSize int64
	groups     []group[K] // sorted by key, nulls last
	closed     bool
}

type group[K cmp.Ordered] struct {
	key    core.Nullable[K]
	offset int64 // relative to headerSize
	count  int
}

var _ Index[string] = (*GroupIndex[string])(nil)

// OpenGroup opens (or creates) the group index stored at path.
// Keys may use a variable-width codec.
func OpenGroup[K cmp.Ordered](path string, c codec.Codec[core.Nullable[K]], opts ...Option) (*GroupIndex[K], error) {
	o := newOptions(path, opts)
	f, err := fs.OpenReadWrite(o.fs, path)
	if err != nil {
		return nil, core.IOError("open "+path, err)
	}
	idx := &GroupIndex[K]{opts: o, codec: c, file: f}
	if err := idx.load(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *GroupIndex[K]) Name() string { return idx.opts.name }

// Cardinality returns the number of distinct keys, null included.
func (idx *GroupIndex[K]) Cardinality() int { return len(idx.groups) }

func (idx *GroupIndex[K]) load() error {
	idx.headerSize, idx.groups = 0, nil
	size, err := fs.Size(idx.file)
	if err != nil {
		return core.IOError("stat", err)
	}
	if size == 0 {
		return nil
	}

	c := fileio.AcquireReadCursor(idx.file, idx.opts.pool)
	defer c.Release()

	headerSize := int64(c.Int32())
	n := int(c.Int32())
	if err := c.Err(); err != nil {
		return err
	}
	// each entry holds at least an offset and a count after its key
	if headerSize < 8 || headerSize > size || n < 0 || int64(n) > (headerSize-8)/12 {
		return core.Corruptf("group index %s: bad header (size %d, keys %d)", idx.opts.name, headerSize, n)
	}
	groups := make([]group[K], 0, n)
	var body int64
	for range n {
		k, err := idx.codec.Decode(c)
		if err != nil {
			return err
		}
		g := group[K]{key: k, offset: c.Int64(), count: int(c.Int32())}
		if err := c.Err(); err != nil {
			return err
		}
		if g.count < 0 || g.offset != body {
			return core.Corruptf("group index %s: bad block for key %v", idx.opts.name, k)
		}
		if len(groups) > 0 && core.CompareNullable(groups[len(groups)-1].key, k) >= 0 {
			return core.Corruptf("group index %s: keys out of order at %v", idx.opts.name, k)
		}
		body += int64(g.count+1) * 4
		groups = append(groups, g)
	}
	if c.Position() != headerSize || headerSize+body != size {
		return core.Corruptf("group index %s: size %d does not match header", idx.opts.name, size)
	}
	idx.headerSize, idx.groups = headerSize, groups
	return nil
}

// Rebuild sorts pairs by key (nulls last) then row, and rewrites the file.
func (idx *GroupIndex[K]) Rebuild(pairs []core.KeyToIndex[K]) error {
	if idx.closed {
		return core.ErrClosed
	}
	if err := checkPairs(pairs); err != nil {
		return err
	}
	start := time.Now()
	core.SortPairs(pairs)

	var groups []group[K]
	var offset int64
	for i, p := range pairs {
		if i == 0 || core.CompareNullable(groups[len(groups)-1].key, p.Key) != 0 {
			if len(groups) > 0 {
				offset += int64(groups[len(groups)-1].count+1) * 4
			}
			groups = append(groups, group[K]{key: p.Key, offset: offset})
		}
		groups[len(groups)-1].count++
	}
	if len(groups) > math.MaxInt32 {
		return fmt.Errorf("%w: too many distinct keys", core.ErrInvalidArgument)
	}

	if err := idx.file.Truncate(0); err != nil {
		return core.IOError("truncate", err)
	}
	idx.headerSize, idx.groups = 0, nil

	w := fileio.NewWriteCursor(idx.file, idx.opts.writeBufferSize)
	w.Seek(0)
	w.PutInt32(-1) // fixed up below
	w.PutInt32(int32(len(groups)))
	for _, g := range groups {
		if err := idx.codec.Encode(w, g.key); err != nil {
			_ = w.Close()
			_ = idx.file.Truncate(0)
			return fmt.Errorf("group index %s: encode key %v: %w", idx.opts.name, g.key, err)
		}
		w.PutInt64(g.offset)
		w.PutInt32(int32(g.count))
	}
	headerSize := w.Position()

	var buf [4]byte
	i := 0
	for _, g := range groups {
		crc := uint32(0)
		for _, p := range pairs[i : i+g.count] {
			binary.BigEndian.PutUint32(buf[:], uint32(p.Row))
			crc = hash.UpdateCRC32C(crc, buf[:])
			w.PutInt32(int32(p.Row))
		}
		w.PutUint32(crc)
		i += g.count
	}
	w.Seek(0)
	w.PutInt32(int32(headerSize))
	if err := w.Close(); err != nil {
		return err
	}
	if err := idx.file.Sync(); err != nil {
		return core.IOError("sync", err)
	}
	idx.headerSize, idx.groups = headerSize, groups

	idx.opts.logger.Debug("group index rebuilt",
		slog.String("index", idx.opts.name),
		slog.Int("entries", len(pairs)),
		slog.Int("keys", len(groups)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (idx *GroupIndex[K]) Clear() error {
	if idx.closed {
		return core.ErrClosed
	}
	if err := idx.file.Truncate(0); err != nil {
		return core.IOError("truncate", err)
	}
	idx.headerSize, idx.groups = 0, nil
	return nil
}

func (idx *GroupIndex[K]) Close() error {
	if idx.closed {
		return nil
	}
	idx.closed = true
	return core.IOError("close", idx.file.Close())
}

func (idx *GroupIndex[K]) Lookup(key core.Nullable[K]) (*rowset.Set, error) {
	if idx.closed {
		return nil, core.ErrClosed
	}
	i, ok := slices.BinarySearchFunc(idx.groups, key, func(g group[K], k core.Nullable[K]) int {
		return core.CompareNullable(g.key, k)
	})
	if !ok {
		return rowset.Empty(), nil
	}
	return idx.readBlock(idx.groups[i])
}

// readBlock reads and verifies the row-id block of g.
func (idx *GroupIndex[K]) readBlock(g group[K]) (*rowset.Set, error) {
	c := fileio.AcquireReadCursor(idx.file, idx.opts.pool)
	defer c.Release()

	c.Seek(idx.headerSize + g.offset)
	raw := c.Bytes(g.count * 4)
	stored := c.Uint32()
	if err := c.Err(); err != nil {
		return nil, err
	}
	if sum := hash.CRC32C(raw); sum != stored {
		err := core.Corruptf("group index %s: checksum mismatch for key %v (stored %08x, computed %08x)",
			idx.opts.name, g.key, stored, sum)
		idx.opts.logger.Error("corruption detected", slog.String("index", idx.opts.name), slog.Any("error", err))
		return nil, err
	}

	rows := make([]int, g.count)
	for i := range rows {
		rows[i] = int(int32(binary.BigEndian.Uint32(raw[i*4:])))
	}
	if err := checkRows(idx.opts.name, rows); err != nil {
		return nil, err
	}
	return rowset.Wrap(rows), nil
}

// LookupRange tests every non-null key for membership; keys are not
// addressable by value on disk.
func (idx *GroupIndex[K]) LookupRange(min, max K) (*rowset.Set, error) {
	if idx.closed {
		return nil, core.ErrClosed
	}
	r := core.NewRange(min, max)
	if err := r.Validate(); err != nil {
		return nil, err
	}
	var keys []core.Nullable[K]
	for _, g := range idx.groups {
		if g.key.Valid && r.Contains(g.key.Value) {
			keys = append(keys, g.key)
		}
	}
	return idx.LookupAny(keys)
}

func (idx *GroupIndex[K]) LookupAny(keys []core.Nullable[K]) (*rowset.Set, error) {
	return lookupAll[K](idx, keys)
}

func (idx *GroupIndex[K]) LookupRanges(ranges ...core.Range[K]) (*rowset.Set, error) {
	return lookupRanges[K](idx, ranges)
}

func (idx *GroupIndex[K]) Keys(includeNull bool) ([]core.Nullable[K], error) {
	if idx.closed {
		return nil, core.ErrClosed
	}
	out := make([]core.Nullable[K], 0, len(idx.groups))
	for _, g := range idx.groups {
		if g.key.Valid || includeNull {
			out = append(out, g.key)
		}
	}
	return out, nil
}
