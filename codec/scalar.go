package codec

import (
	"fmt"
	"math"
	"time"

	"github.com/hupe1980/wormdb/core"
	"github.com/hupe1980/wormdb/fileio"
)

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~float64
}

type scalar[T number] struct {
	size int
	put  func(*fileio.WriteCursor, T)
	get  func(*fileio.ReadCursor) T
}

func (c scalar[T]) ItemSize() int { return c.size }

func (c scalar[T]) Encode(w *fileio.WriteCursor, v T) error {
	c.put(w, v)
	return w.Err()
}

func (c scalar[T]) Decode(r *fileio.ReadCursor) (T, error) {
	v := c.get(r)
	return v, r.Err()
}

// sentinel encodes null as a reserved value of T.
type sentinel[T number] struct {
	scalar[T]
	null   T
	isNull func(T) bool
}

func (c sentinel[T]) Encode(w *fileio.WriteCursor, v core.Nullable[T]) error {
	if !v.Valid {
		c.put(w, c.null)
		return w.Err()
	}
	if c.isNull(v.Value) {
		return fmt.Errorf("%w: %v is reserved for null", core.ErrInvalidArgument, v.Value)
	}
	c.put(w, v.Value)
	return w.Err()
}

func (c sentinel[T]) Decode(r *fileio.ReadCursor) (core.Nullable[T], error) {
	v := c.get(r)
	if err := r.Err(); err != nil {
		return core.Null[T](), err
	}
	if c.isNull(v) {
		return core.Null[T](), nil
	}
	return core.Some(v), nil
}

func equals[T number](null T) func(T) bool {
	return func(v T) bool { return v == null }
}

var (
	Int8    Fixed[int8]    = scalar[int8]{1, (*fileio.WriteCursor).PutInt8, (*fileio.ReadCursor).Int8}
	Int16   Fixed[int16]   = scalar[int16]{2, (*fileio.WriteCursor).PutInt16, (*fileio.ReadCursor).Int16}
	Int32   Fixed[int32]   = scalar[int32]{4, (*fileio.WriteCursor).PutInt32, (*fileio.ReadCursor).Int32}
	Int64   Fixed[int64]   = scalar[int64]{8, (*fileio.WriteCursor).PutInt64, (*fileio.ReadCursor).Int64}
	Float64 Fixed[float64] = scalar[float64]{8, (*fileio.WriteCursor).PutFloat64, (*fileio.ReadCursor).Float64}
)

var (
	NullableInt8 Fixed[core.Nullable[int8]] = sentinel[int8]{
		scalar[int8]{1, (*fileio.WriteCursor).PutInt8, (*fileio.ReadCursor).Int8},
		math.MinInt8, equals[int8](math.MinInt8),
	}
	NullableInt16 Fixed[core.Nullable[int16]] = sentinel[int16]{
		scalar[int16]{2, (*fileio.WriteCursor).PutInt16, (*fileio.ReadCursor).Int16},
		math.MinInt16, equals[int16](math.MinInt16),
	}
	NullableInt32 Fixed[core.Nullable[int32]] = sentinel[int32]{
		scalar[int32]{4, (*fileio.WriteCursor).PutInt32, (*fileio.ReadCursor).Int32},
		math.MinInt32, equals[int32](math.MinInt32),
	}
	NullableInt64 Fixed[core.Nullable[int64]] = sentinel[int64]{
		scalar[int64]{8, (*fileio.WriteCursor).PutInt64, (*fileio.ReadCursor).Int64},
		math.MinInt64, equals[int64](math.MinInt64),
	}
	NullableFloat64 Fixed[core.Nullable[float64]] = sentinel[float64]{
		scalar[float64]{8, (*fileio.WriteCursor).PutFloat64, (*fileio.ReadCursor).Float64},
		math.NaN(), math.IsNaN,
	}
)

type timeCodec struct{}

// Time stores a nullable timestamp with millisecond precision.
var Time Fixed[core.Nullable[time.Time]] = timeCodec{}

func (timeCodec) ItemSize() int { return 8 }

func (timeCodec) Encode(w *fileio.WriteCursor, v core.Nullable[time.Time]) error {
	if v.Valid && v.Value.UnixMilli() == 0 {
		return fmt.Errorf("%w: the Unix epoch is reserved for null", core.ErrInvalidArgument)
	}
	w.PutTime(v)
	return w.Err()
}

func (timeCodec) Decode(r *fileio.ReadCursor) (core.Nullable[time.Time], error) {
	v := r.Time()
	return v, r.Err()
}

type stringCodec struct{}

func (stringCodec) Encode(w *fileio.WriteCursor, v string) error {
	w.PutString(v)
	return w.Err()
}

func (stringCodec) Decode(r *fileio.ReadCursor) (string, error) {
	v := r.NullString()
	if err := r.Err(); err != nil {
		return "", err
	}
	if !v.Valid {
		return "", core.Corruptf("null in a non-null string column at offset %d", r.Position())
	}
	return v.Value, nil
}

type nullableStringCodec struct{}

func (nullableStringCodec) Encode(w *fileio.WriteCursor, v core.Nullable[string]) error {
	w.PutNullString(v)
	return w.Err()
}

func (nullableStringCodec) Decode(r *fileio.ReadCursor) (core.Nullable[string], error) {
	v := r.NullString()
	return v, r.Err()
}

var (
	// String stores a length-prefixed UTF-8 string.
	String Codec[string] = stringCodec{}

	// NullableString stores a length-prefixed UTF-8 string, length -1 for null.
	NullableString Codec[core.Nullable[string]] = nullableStringCodec{}
)
