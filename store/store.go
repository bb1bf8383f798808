package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/hupe1980/wormdb/codec"
	"github.com/hupe1980/wormdb/core"
	"github.com/hupe1980/wormdb/fileio"
	"github.com/hupe1980/wormdb/internal/cache"
	"github.com/hupe1980/wormdb/internal/fs"
)

// RowStore is an append-only sequence of rows of type T.
//
// Get, Scan and the query methods are safe for concurrent use as long as the
// codec is. Clear and Close must not run concurrently with readers.
type RowStore[T any] struct {
	opts     options
	codec    codec.Codec[T]
	itemSize int // 0 for variable-width codecs
	data     fs.File
	offsets  *offsetTable

	mu        sync.Mutex
	count     int
	session   *Appender[T]
	bindings  []binding[T]
	listeners []Listener
	closed    bool

	readMu sync.Mutex
	reader *fileio.ReadCursor
	cache  *cache.LRU[int, T]
}

// Open opens (or creates) the store whose rows live in dataPath. The offsets
// file is only used by variable-width codecs; fixed-width stores ignore
// offsetsPath.
func Open[T any](dataPath, offsetsPath string, c codec.Codec[T], opts ...Option) (*RowStore[T], error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil codec", core.ErrInvalidArgument)
	}
	o := newOptions(opts)
	if o.name == "" {
		o.name = filepath.Base(dataPath)
	}
	s := &RowStore[T]{
		opts:  o,
		codec: c,
		cache: cache.NewLRU[int, T](o.cacheSize),
	}
	if size, ok := codec.SizeOf(c); ok {
		s.itemSize = size
	} else if offsetsPath == "" {
		return nil, fmt.Errorf("%w: variable-width codec needs an offsets file", core.ErrInvalidArgument)
	}

	data, err := fs.OpenReadWrite(o.fs, dataPath)
	if err != nil {
		return nil, core.IOError("open "+dataPath, err)
	}
	s.data = data
	if s.itemSize == 0 {
		if s.offsets, err = openOffsets(o.fs, offsetsPath, o.readBufferSize); err != nil {
			_ = data.Close()
			return nil, err
		}
	}
	if err := s.load(); err != nil {
		_ = s.closeFiles()
		return nil, err
	}
	s.reader = fileio.NewReadCursor(data, o.readBufferSize)
	return s, nil
}

func (s *RowStore[T]) load() error {
	size, err := fs.Size(s.data)
	if err != nil {
		return core.IOError("stat", err)
	}
	if s.itemSize > 0 {
		s.count = int(size / int64(s.itemSize))
		if size%int64(s.itemSize) != 0 {
			s.opts.logger.Warn("store has a partial trailing row",
				slog.String("table", s.opts.name), slog.Int64("bytes", size%int64(s.itemSize)))
		}
		return nil
	}
	if end := s.offsets.end(); end > size {
		return core.Corruptf("store %s: offsets reach byte %d, data file has %d", s.opts.name, end, size)
	}
	s.count = s.offsets.len()
	return nil
}

// Name returns the table name.
func (s *RowStore[T]) Name() string { return s.opts.name }

// FixedWidth reports the row width, or 0 for variable-width rows.
func (s *RowStore[T]) FixedWidth() int { return s.itemSize }

// readableLocked fails when rows cannot be read right now.
func (s *RowStore[T]) readableLocked() error {
	if s.closed {
		return core.ErrClosed
	}
	if s.session != nil {
		return fmt.Errorf("%w: store %s is in append mode", core.ErrState, s.opts.name)
	}
	return nil
}

// endLocked returns the byte offset right after the last row.
func (s *RowStore[T]) endLocked() int64 {
	if s.offsets != nil {
		return s.offsets.end()
	}
	return int64(s.count) * int64(s.itemSize)
}

func (s *RowStore[T]) spanLocked(row int) (from, till int64) {
	if s.offsets != nil {
		return s.offsets.span(row)
	}
	from = int64(row) * int64(s.itemSize)
	return from, from + int64(s.itemSize)
}

// Size returns the number of rows. It fails with core.ErrConcurrency while an
// append session is open; use Appender.Size instead.
func (s *RowStore[T]) Size() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, core.ErrClosed
	}
	if s.session != nil {
		return 0, fmt.Errorf("%w: size of %s requested during an append session", core.ErrConcurrency, s.opts.name)
	}
	return s.count, nil
}

// Get returns the row with the given id.
func (s *RowStore[T]) Get(row int) (T, error) {
	start := time.Now()
	v, cached, err := s.get(row)
	s.opts.metrics.RecordGet(cached, time.Since(start), err)
	return v, err
}

func (s *RowStore[T]) get(row int) (T, bool, error) {
	var zero T
	s.mu.Lock()
	if err := s.readableLocked(); err != nil {
		s.mu.Unlock()
		return zero, false, err
	}
	if row < 0 || row >= s.count {
		n := s.count
		s.mu.Unlock()
		return zero, false, fmt.Errorf("%w: row %d out of range [0, %d)", core.ErrInvalidArgument, row, n)
	}
	from, till := s.spanLocked(row)
	s.mu.Unlock()

	if v, ok := s.cache.Get(row); ok {
		return v, true, nil
	}

	s.readMu.Lock()
	v, err := s.decodeAt(s.reader, row, from, till)
	s.readMu.Unlock()
	if err != nil {
		if errors.Is(err, core.ErrCorrupt) {
			s.opts.logger.Error("corrupt row",
				slog.String("table", s.opts.name), slog.Int("row", row), slog.Any("error", err))
		}
		return zero, false, err
	}
	s.cache.Set(row, v)
	return v, false, nil
}

// decodeAt decodes row from [from, till). On failure the cursor is reset so
// the next caller starts from a clean buffer.
func (s *RowStore[T]) decodeAt(r *fileio.ReadCursor, row int, from, till int64) (T, error) {
	var zero T
	if r.Err() != nil {
		r.Invalidate()
	}
	r.Seek(from)
	v, err := s.codec.Decode(r)
	if err == nil {
		err = r.Err()
	}
	if err != nil {
		r.Invalidate()
		return zero, err
	}
	if pos := r.Position(); pos != till {
		return zero, fmt.Errorf("%w: store %s row %d decoded %d bytes, expected %d",
			core.ErrSizeMismatch, s.opts.name, row, pos-from, till-from)
	}
	return v, nil
}

// Scan calls fn for every row in [from, to) in order, reading sequentially
// with a private cursor. It stops at the first error fn returns.
func (s *RowStore[T]) Scan(from, to int, fn func(row int, v T) error) error {
	s.mu.Lock()
	if err := s.readableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	n := s.count
	s.mu.Unlock()
	if from < 0 || from > to || to > n {
		return fmt.Errorf("%w: scan [%d, %d) outside [0, %d)", core.ErrInvalidArgument, from, to, n)
	}
	return s.scan(from, to, fn)
}

func (s *RowStore[T]) scan(from, to int, fn func(row int, v T) error) error {
	if from == to {
		return nil
	}
	s.mu.Lock()
	var endings []int64
	if s.offsets != nil {
		endings = s.offsets.endings
	}
	start, _ := s.spanLocked(from)
	s.mu.Unlock()

	r := fileio.AcquireReadCursor(s.data, s.opts.pool)
	defer r.Release()
	r.Seek(start)
	for row := from; row < to; row++ {
		v, err := s.codec.Decode(r)
		if err == nil {
			err = r.Err()
		}
		if err != nil {
			return err
		}
		var end int64
		if endings != nil {
			end = endings[row]
		} else {
			end = int64(row+1) * int64(s.itemSize)
		}
		if pos := r.Position(); pos != end {
			return fmt.Errorf("%w: store %s row %d ends at %d, expected %d", core.ErrSizeMismatch, s.opts.name, row, pos, end)
		}
		if err := fn(row, v); err != nil {
			return err
		}
	}
	return nil
}

// All returns every row in order.
func (s *RowStore[T]) All() ([]T, error) {
	n, err := s.Size()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, n)
	err = s.Scan(0, n, func(_ int, v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}

// BeginAppend opens the append session. Only one session may be open; a
// second call fails with core.ErrStoreBusy until the first is closed.
func (s *RowStore[T]) BeginAppend() (*Appender[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, core.ErrClosed
	}
	if s.session != nil {
		return nil, fmt.Errorf("%w: table %s", core.ErrStoreBusy, s.opts.name)
	}

	end := s.endLocked()
	size, err := fs.Size(s.data)
	if err != nil {
		return nil, core.IOError("stat", err)
	}
	if size > end {
		// leftovers of a session that failed before its rows were committed
		s.opts.logger.Warn("discarding uncommitted bytes",
			slog.String("table", s.opts.name), slog.Int64("bytes", size-end))
		if err := s.data.Truncate(end); err != nil {
			return nil, core.IOError("truncate", err)
		}
	}

	w := fileio.NewWriteCursor(s.data, s.opts.writeBufferSize)
	w.Seek(end)
	a := &Appender[T]{
		store:   s,
		w:       w,
		base:    s.count,
		started: time.Now(),
	}
	if s.offsets != nil {
		a.pending = make([]int64, 0, s.opts.offsetBatch)
	}
	s.session = a
	s.opts.logger.Debug("append session opened", slog.String("table", s.opts.name), slog.Int("rows", s.count))
	return a, nil
}

// Append adds items in one session and returns the id of the first one.
func (s *RowStore[T]) Append(items ...T) (int, error) {
	a, err := s.BeginAppend()
	if err != nil {
		return -1, err
	}
	first := a.Size()
	for _, item := range items {
		if _, err := a.Add(item); err != nil {
			return -1, errors.Join(err, a.Close())
		}
	}
	if err := a.Close(); err != nil {
		return -1, err
	}
	return first, nil
}

// AddListener registers l for change notifications.
func (s *RowStore[T]) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *RowStore[T]) snapshot() ([]binding[T], []Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]binding[T](nil), s.bindings...), append([]Listener(nil), s.listeners...)
}

// Reindex rebuilds every attached index from a full scan.
func (s *RowStore[T]) Reindex(ctx context.Context) error {
	s.mu.Lock()
	if err := s.readableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	return s.reindex(ctx)
}

// Clear truncates the store, drops cached rows and clears every attached
// index. Listeners are notified after the indexes.
func (s *RowStore[T]) Clear() error {
	s.mu.Lock()
	if err := s.readableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.readMu.Lock()
	err := core.IOError("truncate", s.data.Truncate(0))
	if err == nil && s.offsets != nil {
		err = s.offsets.clear()
	}
	s.reader.Invalidate()
	s.readMu.Unlock()
	s.cache.Purge()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.count = 0
	s.mu.Unlock()

	bindings, listeners := s.snapshot()
	var errs []error
	for _, b := range bindings {
		if err := b.clear(); err != nil {
			errs = append(errs, fmt.Errorf("clear index %s: %w", b.name(), err))
		}
	}
	for _, l := range listeners {
		l.OnCleared()
	}
	s.opts.logger.Info("store cleared", slog.String("table", s.opts.name))
	return errors.Join(errs...)
}

// Close releases the files. Attached indexes are owned by the caller and
// stay open. Data is never deleted.
func (s *RowStore[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}
	if s.session != nil {
		return fmt.Errorf("%w: close of %s during an append session", core.ErrState, s.opts.name)
	}
	s.closed = true
	s.cache.Purge()
	return s.closeFiles()
}

func (s *RowStore[T]) closeFiles() error {
	err := core.IOError("close data", s.data.Close())
	if s.offsets != nil {
		err = errors.Join(err, s.offsets.close())
	}
	return err
}
