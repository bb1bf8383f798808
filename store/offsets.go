package store

import (
	"github.com/hupe1980/wormdb/core"
	"github.com/hupe1980/wormdb/fileio"
	"github.com/hupe1980/wormdb/internal/fs"
)

// offsetTable holds the cumulative end offset of every row of a
// variable-width store. It is kept in memory and mirrored to its file.
type offsetTable struct {
	file    fs.File
	endings []int64
}

func openOffsets(fsys fs.FileSystem, path string, readBuffer int) (*offsetTable, error) {
	f, err := fs.OpenReadWrite(fsys, path)
	if err != nil {
		return nil, core.IOError("open "+path, err)
	}
	t := &offsetTable{file: f}
	if err := t.load(readBuffer); err != nil {
		_ = f.Close()
		return nil, err
	}
	return t, nil
}

func (t *offsetTable) load(readBuffer int) error {
	size, err := fs.Size(t.file)
	if err != nil {
		return core.IOError("stat", err)
	}
	if size%8 != 0 {
		return core.Corruptf("offsets file %s: size %d is not a multiple of 8", t.file.Name(), size)
	}
	r := fileio.NewReadCursor(t.file, readBuffer)
	endings := make([]int64, size/8)
	var prev int64
	for i := range endings {
		endings[i] = r.Int64()
		if r.Err() == nil && endings[i] < prev {
			return core.Corruptf("offsets file %s: offset %d of row %d is below its predecessor", t.file.Name(), endings[i], i)
		}
		prev = endings[i]
	}
	if err := r.Err(); err != nil {
		return err
	}
	t.endings = endings
	return nil
}

func (t *offsetTable) len() int { return len(t.endings) }

// span returns the byte range [from, till) of row.
func (t *offsetTable) span(row int) (from, till int64) {
	if row > 0 {
		from = t.endings[row-1]
	}
	return from, t.endings[row]
}

// end returns the end offset of the last row.
func (t *offsetTable) end() int64 {
	if len(t.endings) == 0 {
		return 0
	}
	return t.endings[len(t.endings)-1]
}

// add persists items and then publishes them. endings is replaced, never
// modified in place, so spans taken under the store lock stay valid.
func (t *offsetTable) add(items []int64, bufferSize int) error {
	if len(items) == 0 {
		return nil
	}
	w := fileio.NewWriteCursor(t.file, bufferSize)
	w.Seek(int64(len(t.endings)) * 8)
	for _, v := range items {
		w.PutInt64(v)
	}
	if err := w.Close(); err != nil {
		return err
	}
	next := make([]int64, len(t.endings)+len(items))
	copy(next, t.endings)
	copy(next[len(t.endings):], items)
	t.endings = next
	return nil
}

func (t *offsetTable) clear() error {
	if err := t.file.Truncate(0); err != nil {
		return core.IOError("truncate offsets", err)
	}
	t.endings = nil
	return nil
}

func (t *offsetTable) sync() error {
	return core.IOError("sync offsets", t.file.Sync())
}

func (t *offsetTable) close() error {
	return core.IOError("close offsets", t.file.Close())
}
