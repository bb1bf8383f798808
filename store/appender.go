package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hupe1980/wormdb/core"
	"github.com/hupe1980/wormdb/fileio"
	"github.com/hupe1980/wormdb/internal/fs"
)

// Appender is the exclusive append session of a RowStore, returned by
// BeginAppend. It must be used by one goroutine and closed exactly once.
type Appender[T any] struct {
	store   *RowStore[T]
	w       *fileio.WriteCursor
	pending []int64 // end offsets not yet in the offsets file
	base    int
	added   int
	started time.Time
	err     error // sticky I/O failure
	done    bool
}

// Size returns the number of rows including those added in this session.
func (a *Appender[T]) Size() int { return a.base + a.added }

// Add encodes item at the end of the store and returns its row id.
//
// A codec error leaves the session usable; the partial bytes are discarded.
// An I/O error ends the session: every later Add fails and Close only
// commits the rows that reached the file.
func (a *Appender[T]) Add(item T) (int, error) {
	if a.done {
		return -1, fmt.Errorf("%w: append session closed", core.ErrState)
	}
	if a.err != nil {
		return -1, a.err
	}
	if a.pending != nil && len(a.pending) == cap(a.pending) {
		if err := a.flushOffsets(); err != nil {
			a.err = err
			return -1, err
		}
	}

	before := a.w.Position()
	if err := a.w.Err(); err != nil {
		a.err = err
		return -1, err
	}
	err := a.store.codec.Encode(a.w, item)
	if err == nil {
		err = a.w.Err()
	}
	if err == nil && a.store.itemSize > 0 {
		if n := a.w.Position() - before; n != int64(a.store.itemSize) {
			err = fmt.Errorf("%w: codec wrote %d bytes, declared width is %d", core.ErrInvalidArgument, n, a.store.itemSize)
		}
	}
	if err != nil {
		if werr := a.w.Err(); werr != nil {
			a.err = werr
			return -1, err
		}
		a.w.Seek(before)
		if werr := a.w.Err(); werr != nil {
			a.err = werr
		}
		return -1, err
	}

	if a.pending != nil {
		a.pending = append(a.pending, a.w.Position())
	}
	row := a.base + a.added
	a.added++
	return row, nil
}

// flushOffsets writes buffered data and then the offsets pointing into it,
// so offsets never reference bytes that are not in the file.
func (a *Appender[T]) flushOffsets() error {
	if err := a.w.Flush(); err != nil {
		return err
	}
	if len(a.pending) == 0 {
		return nil
	}
	if err := a.store.offsets.add(a.pending, a.store.opts.writeBufferSize); err != nil {
		return err
	}
	a.pending = a.pending[:0]
	return nil
}

func (a *Appender[T]) commit() error {
	s := a.store
	if a.err == nil && a.pending != nil {
		a.err = a.flushOffsets()
	}
	if a.err == nil {
		a.err = a.w.TruncateTail()
	}
	if err := a.w.Close(); a.err == nil {
		a.err = err
	}
	if a.err == nil {
		a.err = core.IOError("sync data", s.data.Sync())
	}
	if a.err == nil && s.offsets != nil {
		a.err = s.offsets.sync()
	}
	return a.err
}

// committedRows returns the row count after a session ends.
func (a *Appender[T]) committedRows(err error) int {
	s := a.store
	if s.offsets != nil {
		return s.offsets.len()
	}
	if err == nil {
		return a.base + a.added
	}
	size, serr := fs.Size(s.data)
	if serr != nil {
		return a.base
	}
	return min(a.base+a.added, int(size/int64(s.itemSize)))
}

// Close commits the session, releases the store and rebuilds every attached
// index from a full scan. Listeners then receive OnRowsAdded for the rows of
// this session. Closing twice is a no-op.
func (a *Appender[T]) Close() error {
	if a.done {
		return nil
	}
	a.done = true
	s := a.store

	err := a.commit()
	s.mu.Lock()
	s.count = a.committedRows(err)
	from, to := a.base, s.count
	s.session = nil
	s.mu.Unlock()

	s.readMu.Lock()
	s.reader.Invalidate()
	s.readMu.Unlock()

	s.opts.metrics.RecordAppend(to-from, time.Since(a.started), err)
	if err != nil {
		s.opts.logger.Error("append session failed",
			slog.String("table", s.opts.name), slog.Int("committed", to-from), slog.Any("error", err))
	} else {
		s.opts.logger.Debug("append session closed",
			slog.String("table", s.opts.name), slog.Int("rows", to-from), slog.Duration("duration", time.Since(a.started)))
	}
	if to == from {
		return err
	}

	// committed rows are indexed even when the session failed half way
	if rerr := s.reindex(context.Background()); rerr != nil {
		return errors.Join(err, rerr)
	}
	_, listeners := s.snapshot()
	for _, l := range listeners {
		l.OnRowsAdded(from, to)
	}
	return err
}
