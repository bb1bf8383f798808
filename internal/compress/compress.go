// Package compress frames a byte stream into independently compressed blocks.
//
// Stream format, repeated until EOF:
//
//	[uncompressed size uint32][stored size uint32][stored bytes]
//
// A stored size of 0 marks a block kept uncompressed (its stored bytes are
// the uncompressed size long). All integers are big-endian.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type selects the block algorithm.
type Type uint8

const (
	None Type = iota
	LZ4
	Zstd
	Snappy
)

// DefaultBlockSize is the uncompressed size of a block.
const DefaultBlockSize = 256 * 1024

const (
	headerSize   = 8
	maxBlockSize = 64 << 20
)

// ErrCorrupt is returned for malformed streams.
var ErrCorrupt = errors.New("compress: corrupt stream")

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	case Snappy:
		return "snappy"
	default:
		return fmt.Sprintf("compress.Type(%d)", uint8(t))
	}
}

// ParseType parses the String form of a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	case "snappy":
		return Snappy, nil
	}
	return None, fmt.Errorf("compress: unknown type %q", s)
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func compressBlock(t Type, data []byte) ([]byte, error) {
	switch t {
	case LZ4:
		out := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, out, nil)
		if err != nil {
			return nil, err
		}
		return out[:n], nil // n == 0: incompressible
	case Zstd:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), nil
	case Snappy:
		return snappy.Encode(nil, data), nil
	default:
		return nil, nil
	}
}

func decompressBlock(t Type, stored []byte, size int) ([]byte, error) {
	out := make([]byte, size)
	switch t {
	case LZ4:
		n, err := lz4.UncompressBlock(stored, out)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %w", ErrCorrupt, err)
		}
		out = out[:n]
	case Zstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		var err error
		if out, err = dec.DecodeAll(stored, out[:0]); err != nil {
			return nil, fmt.Errorf("%w: zstd: %w", ErrCorrupt, err)
		}
	case Snappy:
		var err error
		if out, err = snappy.Decode(out, stored); err != nil {
			return nil, fmt.Errorf("%w: snappy: %w", ErrCorrupt, err)
		}
	default:
		return nil, fmt.Errorf("%w: compressed block in a %s stream", ErrCorrupt, t)
	}
	if len(out) != size {
		return nil, fmt.Errorf("%w: block decompressed to %d bytes, expected %d", ErrCorrupt, len(out), size)
	}
	return out, nil
}

// Writer compresses everything written to it in blocks.
type Writer struct {
	w         io.Writer
	t         Type
	buf       []byte
	blockSize int
	written   int64
	err       error
}

// NewWriter creates a block writer. blockSize <= 0 selects DefaultBlockSize.
func NewWriter(w io.Writer, t Type, blockSize int) *Writer {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	blockSize = min(blockSize, maxBlockSize)
	return &Writer{w: w, t: t, blockSize: blockSize, buf: make([]byte, 0, blockSize)}
}

func (c *Writer) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		if c.err != nil {
			return total, c.err
		}
		k := min(len(p), c.blockSize-len(c.buf))
		c.buf = append(c.buf, p[:k]...)
		total += k
		p = p[k:]
		if len(c.buf) == c.blockSize {
			c.flushBlock()
		}
	}
	return total, c.err
}

func (c *Writer) flushBlock() {
	if c.err != nil || len(c.buf) == 0 {
		return
	}
	stored, err := compressBlock(c.t, c.buf)
	if err != nil {
		c.err = err
		return
	}
	var hdr [headerSize]byte
	binary.BigEndian.PutUint32(hdr[0:], uint32(len(c.buf)))
	// keep the block raw when compression does not pay off
	if len(stored) == 0 || len(stored) > len(c.buf)*9/10 {
		stored = c.buf
	} else {
		binary.BigEndian.PutUint32(hdr[4:], uint32(len(stored)))
	}
	if _, err := c.w.Write(hdr[:]); err != nil {
		c.err = err
		return
	}
	if _, err := c.w.Write(stored); err != nil {
		c.err = err
		return
	}
	c.written += int64(headerSize + len(stored))
	c.buf = c.buf[:0]
}

// Written returns the number of bytes written to the underlying writer.
func (c *Writer) Written() int64 { return c.written }

// Close flushes the last block. It does not close the underlying writer.
func (c *Writer) Close() error {
	c.flushBlock()
	return c.err
}

// Reader decompresses a stream produced by Writer.
type Reader struct {
	r     io.Reader
	t     Type
	block []byte
	off   int
	err   error
}

// NewReader creates a block reader. t must match the writer's type.
func NewReader(r io.Reader, t Type) *Reader {
	return &Reader{r: r, t: t}
}

func (c *Reader) Read(p []byte) (int, error) {
	for c.off == len(c.block) {
		if c.err != nil {
			return 0, c.err
		}
		c.err = c.next()
	}
	n := copy(p, c.block[c.off:])
	c.off += n
	return n, nil
}

func (c *Reader) next() error {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: truncated block header", ErrCorrupt)
		}
		return err // io.EOF at a block boundary ends the stream
	}
	size := binary.BigEndian.Uint32(hdr[0:])
	storedSize := binary.BigEndian.Uint32(hdr[4:])
	if size == 0 || size > maxBlockSize || storedSize > maxBlockSize {
		return fmt.Errorf("%w: bad block header %d/%d", ErrCorrupt, size, storedSize)
	}
	n := size
	if storedSize != 0 {
		n = storedSize
	}
	stored := make([]byte, n)
	if _, err := io.ReadFull(c.r, stored); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: truncated block", ErrCorrupt)
		}
		return err
	}
	block := stored
	if storedSize != 0 {
		var err error
		if block, err = decompressBlock(c.t, stored, int(size)); err != nil {
			return err
		}
	}
	c.block, c.off = block, 0
	return nil
}
