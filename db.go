package wormdb

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hupe1980/wormdb/codec"
	"github.com/hupe1980/wormdb/core"
	"github.com/hupe1980/wormdb/index"
	"github.com/hupe1980/wormdb/internal/resource"
	"github.com/hupe1980/wormdb/store"
)

const lockFile = ".lock"

// DB is a database directory holding tables and their indexes. It names the
// files, hands shared configuration to every table it opens and closes them
// with itself.
type DB struct {
	dir        string
	temp       bool
	opts       options
	controller *resource.Controller
	lock       *dirLock

	mu      sync.Mutex
	closers []io.Closer
	closed  bool
}

// Open opens the database directory dir, creating it when missing. A
// directory can be opened by one DB at a time.
func Open(dir string, optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)
	db, err := open(dir, o)
	o.logger.LogOpen(context.Background(), dir, err)
	return db, err
}

func open(dir string, o options) (*DB, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty directory", core.ErrInvalidArgument)
	}
	if err := o.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, core.IOError("create "+dir, err)
	}
	lock, err := lockDir(filepath.Join(dir, lockFile))
	if err != nil {
		return nil, err
	}
	return &DB{
		dir:        dir,
		opts:       o,
		controller: resource.NewController(o.limits),
		lock:       lock,
	}, nil
}

// OpenTemp opens a database in a new temporary directory that is removed
// on Close.
func OpenTemp(optFns ...Option) (*DB, error) {
	dir, err := os.MkdirTemp("", "wormdb-")
	if err != nil {
		return nil, core.IOError("create temp dir", err)
	}
	db, err := Open(dir, optFns...)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	db.temp = true
	return db, nil
}

// Dir returns the database directory.
func (db *DB) Dir() string { return db.dir }

// DataFile returns the path of a table's row file.
func (db *DB) DataFile(table string) string {
	return filepath.Join(db.dir, table+"-data")
}

// OffsetsFile returns the path of a table's row offsets file.
func (db *DB) OffsetsFile(table string) string {
	return filepath.Join(db.dir, table+"-index")
}

// IndexFile returns the path of an index of a table.
func (db *DB) IndexFile(table, name string) string {
	return filepath.Join(db.dir, table+"."+name+".idx")
}

// Logger returns the configured logger.
func (db *DB) Logger() *Logger { return db.opts.logger }

// StoreOptions returns the options OpenTable applies to a table.
func (db *DB) StoreOptions(table string) []store.Option {
	return []store.Option{
		store.WithName(table),
		store.WithFileSystem(db.opts.fs),
		store.WithReadBufferSize(db.opts.readBufferSize),
		store.WithWriteBufferSize(db.opts.writeBufferSize),
		store.WithCacheSize(db.opts.cacheSize),
		store.WithOffsetBatch(db.opts.offsetBatch),
		store.WithLogger(db.opts.logger.WithTable(table).Logger),
		store.WithMetrics(db.opts.metricsCollector),
		store.WithResourceController(db.controller),
	}
}

// IndexOptions returns the options the index helpers apply.
func (db *DB) IndexOptions(table, name string) []index.Option {
	return []index.Option{
		index.WithName(table + "." + name),
		index.WithFileSystem(db.opts.fs),
		index.WithWriteBufferSize(db.opts.writeBufferSize),
		index.WithLogger(db.opts.logger.WithTable(table).Logger),
	}
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\.`) || strings.HasPrefix(name, "-") {
		return fmt.Errorf("%w: invalid name %q", core.ErrInvalidArgument, name)
	}
	return nil
}

func (db *DB) track(c io.Closer) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return core.ErrClosed
	}
	db.closers = append(db.closers, c)
	return nil
}

// Close closes every table and index opened through the DB, releases the
// directory lock and removes a temporary directory. Tables must not have an
// open append session.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return core.ErrClosed
	}
	db.closed = true
	closers := db.closers
	db.closers = nil
	db.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil && !errors.Is(err, core.ErrClosed) {
			errs = append(errs, err)
		}
	}
	errs = append(errs, db.lock.unlock())
	if db.temp {
		errs = append(errs, core.IOError("remove temp dir", os.RemoveAll(db.dir)))
	}
	return errors.Join(errs...)
}

// OpenTable opens (or creates) the table named table. Variable-width codecs
// keep row offsets in the table's offsets file.
func OpenTable[T any](db *DB, table string, c codec.Codec[T], opts ...store.Option) (*store.RowStore[T], error) {
	if err := validName(table); err != nil {
		return nil, err
	}
	s, err := store.Open(db.DataFile(table), db.OffsetsFile(table), c, append(db.StoreOptions(table), opts...)...)
	if err != nil {
		return nil, err
	}
	if err := db.track(s); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// indexIsNew reports whether the index file is missing or empty.
func (db *DB) indexIsNew(path string) bool {
	fi, err := db.opts.fs.Stat(path)
	return err != nil || fi.Size() == 0
}

// attach binds idx to s and rebuilds the table's indexes when idx starts
// empty on a table that has rows.
func attach[T any, K cmp.Ordered](ctx context.Context, db *DB, s *store.RowStore[T], idx index.Index[K], fresh bool, project func(T) core.Nullable[K]) error {
	if err := store.Attach(s, idx, project); err != nil {
		return err
	}
	if err := db.track(idx); err != nil {
		s.Detach(idx)
		return err
	}
	if !fresh {
		return nil
	}
	n, err := s.Size()
	if err != nil || n == 0 {
		return err
	}
	return s.Reindex(ctx)
}

// OpenRangeIndex opens the range index name of table, attaches it to s and
// builds it when it is new. Keys must have a fixed width.
func OpenRangeIndex[T any, K cmp.Ordered](ctx context.Context, db *DB, s *store.RowStore[T], name string,
	c codec.Fixed[core.Nullable[K]], project func(T) core.Nullable[K]) (*index.RangeIndex[K], error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	path := db.IndexFile(s.Name(), name)
	fresh := db.indexIsNew(path)
	idx, err := index.OpenRange(path, c, db.IndexOptions(s.Name(), name)...)
	if err != nil {
		return nil, err
	}
	if err := attach(ctx, db, s, index.Index[K](idx), fresh, project); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}

// OpenGroupIndex opens the group index name of table, attaches it to s and
// builds it when it is new.
func OpenGroupIndex[T any, K cmp.Ordered](ctx context.Context, db *DB, s *store.RowStore[T], name string,
	c codec.Codec[core.Nullable[K]], project func(T) core.Nullable[K]) (*index.GroupIndex[K], error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	path := db.IndexFile(s.Name(), name)
	fresh := db.indexIsNew(path)
	idx, err := index.OpenGroup(path, c, db.IndexOptions(s.Name(), name)...)
	if err != nil {
		return nil, err
	}
	if err := attach(ctx, db, s, index.Index[K](idx), fresh, project); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}
