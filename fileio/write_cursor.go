package fileio

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"time"

	"github.com/hupe1980/wormdb/core"
)

// Sink is a file a WriteCursor can write to.
type Sink interface {
	io.WriterAt
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
}

// WriteCursor is a buffered, seekable writer over a Sink.
// Until positioned with Seek, it appends at the end of the file.
type WriteCursor struct {
	dst  Sink
	buf  []byte
	n    int
	pos  int64 // file offset of buf[0]; -1 until resolved to the file size
	err  error
	pool *Pool
}

// NewWriteCursor creates a cursor with a private buffer of size bytes.
func NewWriteCursor(dst Sink, size int) *WriteCursor {
	if size < MinBufferSize {
		size = MinBufferSize
	}
	return &WriteCursor{dst: dst, buf: make([]byte, size), pos: -1}
}

// AcquireWriteCursor creates a cursor whose buffer is drawn from p
// (the default pool when p is nil). Close hands the buffer back.
func AcquireWriteCursor(dst Sink, p *Pool) *WriteCursor {
	if p == nil {
		p = defaultPool
	}
	return &WriteCursor{dst: dst, buf: p.Get(), pos: -1, pool: p}
}

var errCursorClosed = errors.New("fileio: cursor closed")

// Err returns the first error the cursor encountered.
func (c *WriteCursor) Err() error { return c.err }

func (c *WriteCursor) resolve() bool {
	if c.pos >= 0 {
		return true
	}
	info, err := c.dst.Stat()
	if err != nil {
		c.setErr(core.IOError("stat", err))
		return false
	}
	c.pos = info.Size()
	return true
}

func (c *WriteCursor) setErr(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Position returns the file offset the next byte will be written to.
func (c *WriteCursor) Position() int64 {
	if !c.resolve() {
		return 0
	}
	return c.pos + int64(c.n)
}

// Seek flushes buffered data and moves to pos. A negative pos moves to the
// end of the file.
func (c *WriteCursor) Seek(pos int64) {
	if c.Flush() != nil {
		return
	}
	if pos < 0 {
		pos = -1
	}
	c.pos = pos
}

// Flush writes buffered data to the file.
func (c *WriteCursor) Flush() error {
	if c.err != nil {
		return c.err
	}
	if c.n == 0 {
		return nil
	}
	if !c.resolve() {
		return c.err
	}
	if _, err := c.dst.WriteAt(c.buf[:c.n], c.pos); err != nil {
		c.setErr(core.IOError("write", err))
		return c.err
	}
	c.pos += int64(c.n)
	c.n = 0
	return nil
}

// TruncateTail flushes and cuts the file at the current position.
func (c *WriteCursor) TruncateTail() error {
	if c.Flush() != nil || !c.resolve() {
		return c.err
	}
	if err := c.dst.Truncate(c.pos); err != nil {
		c.setErr(core.IOError("truncate", err))
	}
	return c.err
}

// Close flushes and returns a pooled buffer. The file is not closed.
func (c *WriteCursor) Close() error {
	err := c.Flush()
	if c.pool != nil && c.buf != nil {
		c.pool.Put(c.buf)
	}
	c.buf = nil
	c.n = 0
	c.setErr(errCursorClosed)
	return err
}

func (c *WriteCursor) reserve(k int) bool {
	if c.err != nil {
		return false
	}
	if len(c.buf)-c.n < k {
		return c.Flush() == nil
	}
	return true
}

// PutBytes writes p, flushing as often as needed.
func (c *WriteCursor) PutBytes(p []byte) {
	for len(p) > 0 {
		if c.n == len(c.buf) && c.Flush() != nil {
			return
		}
		if c.err != nil {
			return
		}
		k := copy(c.buf[c.n:], p)
		c.n += k
		p = p[k:]
	}
}

// Write implements io.Writer.
func (c *WriteCursor) Write(p []byte) (int, error) {
	c.PutBytes(p)
	if c.err != nil {
		return 0, c.err
	}
	return len(p), nil
}

func (c *WriteCursor) PutUint8(v uint8) {
	if !c.reserve(1) {
		return
	}
	c.buf[c.n] = v
	c.n++
}

func (c *WriteCursor) PutInt8(v int8) { c.PutUint8(uint8(v)) }

func (c *WriteCursor) PutInt16(v int16) {
	if !c.reserve(2) {
		return
	}
	binary.BigEndian.PutUint16(c.buf[c.n:], uint16(v))
	c.n += 2
}

func (c *WriteCursor) PutUint32(v uint32) {
	if !c.reserve(4) {
		return
	}
	binary.BigEndian.PutUint32(c.buf[c.n:], v)
	c.n += 4
}

func (c *WriteCursor) PutInt32(v int32) { c.PutUint32(uint32(v)) }

func (c *WriteCursor) PutInt64(v int64) {
	if !c.reserve(8) {
		return
	}
	binary.BigEndian.PutUint64(c.buf[c.n:], uint64(v))
	c.n += 8
}

func (c *WriteCursor) PutFloat64(v float64) { c.PutInt64(int64(math.Float64bits(v))) }

// PutString writes a non-null length-prefixed string.
func (c *WriteCursor) PutString(s string) {
	if len(s) > math.MaxInt32 {
		c.setErr(core.ErrInvalidArgument)
		return
	}
	c.PutInt32(int32(len(s)))
	if len(s) <= len(c.buf)-c.n {
		c.n += copy(c.buf[c.n:], s)
		return
	}
	c.PutBytes([]byte(s))
}

// PutNullString writes a length-prefixed string, or length -1 for null.
func (c *WriteCursor) PutNullString(s core.Nullable[string]) {
	if !s.Valid {
		c.PutInt32(-1)
		return
	}
	c.PutString(s.Value)
}

// PutTime writes a timestamp in Unix milliseconds, or 0 for null.
// A non-null time at the Unix epoch reads back as null.
func (c *WriteCursor) PutTime(t core.Nullable[time.Time]) {
	if !t.Valid {
		c.PutInt64(0)
		return
	}
	c.PutInt64(t.Value.UnixMilli())
}

// CopyFrom appends the whole content of src at the current position.
func (c *WriteCursor) CopyFrom(src Source) error {
	if c.err != nil {
		return c.err
	}
	info, err := src.Stat()
	if err != nil {
		c.setErr(core.IOError("stat", err))
		return c.err
	}
	size := info.Size()
	for read := int64(0); read < size; {
		if c.n == len(c.buf) && c.Flush() != nil {
			return c.err
		}
		want := min(int64(len(c.buf)-c.n), size-read)
		n, err := src.ReadAt(c.buf[c.n:c.n+int(want)], read)
		c.n += n
		read += int64(n)
		if err != nil && !errors.Is(err, io.EOF) {
			c.setErr(core.IOError("copy", err))
			return c.err
		}
		if n == 0 {
			c.setErr(core.Corruptf("source shrank while copying at offset %d", read))
			return c.err
		}
	}
	return nil
}
