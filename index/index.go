package index

import (
	"cmp"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/hupe1980/wormdb/core"
	"github.com/hupe1980/wormdb/fileio"
	"github.com/hupe1980/wormdb/internal/fs"
	"github.com/hupe1980/wormdb/rowset"
)

// Index maps keys to the rows they were projected from.
type Index[K cmp.Ordered] interface {
	// Name identifies the index in logs and metrics.
	Name() string
	// Lookup returns the rows whose key equals key. A null key finds null rows.
	Lookup(key core.Nullable[K]) (*rowset.Set, error)
	// LookupRange returns the rows with a non-null key in [min, max].
	// It fails with core.ErrInvalidRange when min > max.
	LookupRange(min, max K) (*rowset.Set, error)
	// LookupAny returns the union of Lookup over keys.
	LookupAny(keys []core.Nullable[K]) (*rowset.Set, error)
	// LookupRanges returns the union of LookupRange over ranges.
	LookupRanges(ranges ...core.Range[K]) (*rowset.Set, error)
	// Keys returns the distinct keys in ascending order, null last when
	// includeNull is set and any row has a null key.
	Keys(includeNull bool) ([]core.Nullable[K], error)
	// Rebuild replaces the index content. pairs may be reordered.
	Rebuild(pairs []core.KeyToIndex[K]) error
	// Clear removes all entries.
	Clear() error
	// Close releases the file. It does not delete data.
	Close() error
}

type options struct {
	name            string
	fs              fs.FileSystem
	pool            *fileio.Pool
	writeBufferSize int
	logger          *slog.Logger
}

// Option configures an index.
type Option func(*options)

// WithName sets the name used in logs. Defaults to the file name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithFileSystem sets the file system. Defaults to the local file system.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) { o.fs = fsys }
}

// WithPool sets the buffer pool lookups draw cursors from.
func WithPool(p *fileio.Pool) Option {
	return func(o *options) { o.pool = p }
}

// WithWriteBufferSize sets the buffer size used by Rebuild.
func WithWriteBufferSize(n int) Option {
	return func(o *options) { o.writeBufferSize = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(path string, opts []Option) options {
	o := options{
		name:            filepath.Base(path),
		fs:              fs.Default,
		pool:            fileio.DefaultPool(),
		writeBufferSize: 8 * 1024,
		logger:          slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func checkPairs[K cmp.Ordered](pairs []core.KeyToIndex[K]) error {
	for _, p := range pairs {
		if p.Row < 0 || p.Row > 1<<31-1 {
			return fmt.Errorf("%w: row id %d out of range", core.ErrInvalidArgument, p.Row)
		}
	}
	return nil
}

// uniqueKeys sorts keys and drops duplicates.
func uniqueKeys[K cmp.Ordered](keys []core.Nullable[K]) []core.Nullable[K] {
	out := make([]core.Nullable[K], len(keys))
	copy(out, keys)
	slices.SortFunc(out, core.CompareNullable[K])
	w := 0
	for i, k := range out {
		if i == 0 || core.CompareNullable(out[w-1], k) != 0 {
			out[w] = k
			w++
		}
	}
	return out[:w]
}

func lookupAll[K cmp.Ordered](idx Index[K], keys []core.Nullable[K]) (*rowset.Set, error) {
	res := rowset.Empty()
	for _, k := range uniqueKeys(keys) {
		rows, err := idx.Lookup(k)
		if err != nil {
			return nil, err
		}
		if !rows.IsEmpty() {
			res.Union(rows)
		}
	}
	return res, nil
}

func lookupRanges[K cmp.Ordered](idx Index[K], ranges []core.Range[K]) (*rowset.Set, error) {
	for _, r := range ranges {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	res := rowset.Empty()
	for _, r := range ranges {
		rows, err := idx.LookupRange(r.Min, r.Max)
		if err != nil {
			return nil, err
		}
		if !rows.IsEmpty() {
			res.Union(rows)
		}
	}
	return res, nil
}

func checkRows(name string, rows []int) error {
	for _, row := range rows {
		if row < 0 {
			return core.Corruptf("index %s: negative row id %d", name, row)
		}
	}
	return nil
}
