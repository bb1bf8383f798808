// Package codec defines how rows and index keys are (de)serialized.
//
// A Codec writes one value through a fileio.WriteCursor and reads it back
// through a fileio.ReadCursor. Codecs that always use the same number of bytes
// also implement FixedSize; the row store then addresses rows by position
// instead of keeping an offset table, and the range index requires it for keys.
//
// Changing the codec of an existing store is a breaking change: persisted bytes
// are not self-describing.
//
// # Nulls
//
// Nullable fixed-width codecs reserve one value of the underlying type as the
// null marker. Encoding that value as data fails with core.ErrInvalidArgument.
//
//	NullableInt8/16/32/64   math.MinInt8/16/32/64
//	NullableFloat64         NaN
//	Time                    0 ms since the Unix epoch
//	NullableString          length -1
//	Enum                    all-ones ordinal
package codec

import (
	"github.com/hupe1980/wormdb/fileio"
)

// Codec encodes/decodes values of T.
// Implementations must be safe for concurrent use.
type Codec[T any] interface {
	Encode(w *fileio.WriteCursor, v T) error
	Decode(r *fileio.ReadCursor) (T, error)
}

// FixedSize is implemented by codecs whose encoding has a constant width.
type FixedSize interface {
	ItemSize() int
}

// Fixed is a Codec with a constant encoded width.
type Fixed[T any] interface {
	Codec[T]
	FixedSize
}

// SizeOf returns the constant width of c, if it has one.
func SizeOf(c any) (int, bool) {
	if f, ok := c.(FixedSize); ok && f.ItemSize() > 0 {
		return f.ItemSize(), true
	}
	return 0, false
}
