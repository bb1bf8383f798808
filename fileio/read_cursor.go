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

// Source is a file a ReadCursor can read from.
type Source interface {
	io.ReaderAt
	Stat() (os.FileInfo, error)
}

// ReadCursor is a buffered, seekable reader over a Source.
type ReadCursor struct {
	src  Source
	buf  []byte
	base int64 // file offset of buf[0]
	off  int   // read position in buf
	lim  int   // valid bytes in buf
	err  error
	pool *Pool
}

// NewReadCursor creates a cursor with a private buffer of size bytes.
func NewReadCursor(src Source, size int) *ReadCursor {
	if size < MinBufferSize {
		size = MinBufferSize
	}
	return &ReadCursor{src: src, buf: make([]byte, size)}
}

// AcquireReadCursor creates a cursor whose buffer is drawn from p
// (the default pool when p is nil). Release hands the buffer back.
func AcquireReadCursor(src Source, p *Pool) *ReadCursor {
	if p == nil {
		p = defaultPool
	}
	return &ReadCursor{src: src, buf: p.Get(), pool: p}
}

// Release returns a pooled buffer. The cursor must not be used afterwards.
// The underlying file is not closed.
func (c *ReadCursor) Release() {
	if c.pool != nil && c.buf != nil {
		c.pool.Put(c.buf)
	}
	c.buf = nil
	c.off, c.lim = 0, 0
	if c.err == nil {
		c.err = errCursorReleased
	}
}

var errCursorReleased = errors.New("fileio: cursor released")

// Err returns the first error the cursor encountered.
func (c *ReadCursor) Err() error { return c.err }

// Position returns the current offset in the file.
func (c *ReadCursor) Position() int64 { return c.base + int64(c.off) }

// Seek moves the cursor to pos. Data is loaded lazily by the next read;
// a position inside the current window reuses the buffered bytes.
func (c *ReadCursor) Seek(pos int64) {
	if pos >= c.base && pos < c.base+int64(c.lim) {
		c.off = int(pos - c.base)
		return
	}
	c.base = pos
	c.off, c.lim = 0, 0
}

// Invalidate drops the buffered window and any recorded error, so the next
// read goes to the file again. The position is kept.
func (c *ReadCursor) Invalidate() {
	c.base += int64(c.off)
	c.off, c.lim = 0, 0
	if c.err != errCursorReleased {
		c.err = nil
	}
}

// Skip advances the position by n bytes.
func (c *ReadCursor) Skip(n int64) { c.Seek(c.Position() + n) }

// Remaining returns the number of bytes between the position and the end of file.
func (c *ReadCursor) Remaining() int64 {
	if c.err != nil {
		return 0
	}
	info, err := c.src.Stat()
	if err != nil {
		c.err = core.IOError("stat", err)
		return 0
	}
	return info.Size() - c.Position()
}

func (c *ReadCursor) compact() {
	if c.off > 0 {
		copy(c.buf, c.buf[c.off:c.lim])
		c.base += int64(c.off)
		c.lim -= c.off
		c.off = 0
	}
}

// fill makes at least need (<= len(buf)) bytes available.
func (c *ReadCursor) fill(need int) bool {
	if c.err != nil {
		return false
	}
	if c.lim-c.off >= need {
		return true
	}
	c.compact()
	for c.lim < need {
		n, err := c.src.ReadAt(c.buf[c.lim:], c.base+int64(c.lim))
		c.lim += n
		if c.lim >= need {
			return true
		}
		if err != nil && !errors.Is(err, io.EOF) {
			c.err = core.IOError("read", err)
			return false
		}
		if n == 0 || err != nil {
			c.err = core.Corruptf("unexpected end of file at offset %d", c.base+int64(c.lim))
			return false
		}
	}
	return true
}

func (c *ReadCursor) readInto(p []byte) bool {
	for len(p) > 0 {
		k := min(len(p), len(c.buf))
		if !c.fill(k) {
			return false
		}
		copy(p, c.buf[c.off:c.off+k])
		c.off += k
		p = p[k:]
	}
	return true
}

// Read implements io.Reader. It returns io.EOF at the end of the file.
func (c *ReadCursor) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if c.off == c.lim {
		c.compact()
		n, err := c.src.ReadAt(c.buf, c.base)
		c.lim = n
		if n == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			c.err = core.IOError("read", err)
			return 0, c.err
		}
	}
	n := copy(p, c.buf[c.off:c.lim])
	c.off += n
	return n, nil
}

// Bytes reads exactly n bytes.
func (c *ReadCursor) Bytes(n int) []byte {
	if n < 0 {
		c.setErr(core.Corruptf("negative length %d at offset %d", n, c.Position()))
		return nil
	}
	if n > c.lim-c.off {
		rem := c.Remaining()
		if c.err != nil {
			return nil
		}
		if int64(n) > rem {
			c.setErr(core.Corruptf("length %d at offset %d exceeds remaining %d bytes", n, c.Position(), rem))
			return nil
		}
	}
	b := make([]byte, n)
	if !c.readInto(b) {
		return nil
	}
	return b
}

func (c *ReadCursor) setErr(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *ReadCursor) Uint8() uint8 {
	if !c.fill(1) {
		return 0
	}
	v := c.buf[c.off]
	c.off++
	return v
}

func (c *ReadCursor) Int8() int8 { return int8(c.Uint8()) }

func (c *ReadCursor) Int16() int16 {
	if !c.fill(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(c.buf[c.off:])
	c.off += 2
	return int16(v)
}

func (c *ReadCursor) Uint32() uint32 {
	if !c.fill(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v
}

func (c *ReadCursor) Int32() int32 { return int32(c.Uint32()) }

func (c *ReadCursor) Int64() int64 {
	if !c.fill(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(c.buf[c.off:])
	c.off += 8
	return int64(v)
}

func (c *ReadCursor) Float64() float64 { return math.Float64frombits(uint64(c.Int64())) }

// NullString reads a length-prefixed string; length -1 is null.
func (c *ReadCursor) NullString() core.Nullable[string] {
	n := c.Int32()
	if c.err != nil || n == -1 {
		return core.Null[string]()
	}
	b := c.Bytes(int(n))
	if c.err != nil {
		return core.Null[string]()
	}
	return core.Some(string(b))
}

// SkipString skips a length-prefixed string without decoding it.
func (c *ReadCursor) SkipString() {
	if n := c.Int32(); n > 0 && c.err == nil {
		c.Skip(int64(n))
	}
}

// Time reads a timestamp in Unix milliseconds; 0 is null.
func (c *ReadCursor) Time() core.Nullable[time.Time] {
	ms := c.Int64()
	if ms == 0 || c.err != nil {
		return core.Null[time.Time]()
	}
	return core.Some(time.UnixMilli(ms))
}
