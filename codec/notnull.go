package codec

import (
	"fmt"

	"github.com/hupe1980/wormdb/core"
	"github.com/hupe1980/wormdb/fileio"
)

type notNull[T any] struct {
	inner Codec[T]
}

func (c notNull[T]) Encode(w *fileio.WriteCursor, v core.Nullable[T]) error {
	if !v.Valid {
		return fmt.Errorf("%w: null in a non-null column", core.ErrInvalidArgument)
	}
	return c.inner.Encode(w, v.Value)
}

func (c notNull[T]) Decode(r *fileio.ReadCursor) (core.Nullable[T], error) {
	v, err := c.inner.Decode(r)
	if err != nil {
		return core.Null[T](), err
	}
	return core.Some(v), nil
}

type notNullFixed[T any] struct {
	notNull[T]
	size int
}

func (c notNullFixed[T]) ItemSize() int { return c.size }

// NotNull adapts a codec of T to nullable values that are never null.
// Encoding null fails with core.ErrInvalidArgument. The result is FixedSize
// when c is.
func NotNull[T any](c Codec[T]) Codec[core.Nullable[T]] {
	if size, ok := SizeOf(c); ok {
		return notNullFixed[T]{notNull[T]{c}, size}
	}
	return notNull[T]{c}
}

// NotNullFixed is NotNull for fixed-width codecs.
func NotNullFixed[T any](c Fixed[T]) Fixed[core.Nullable[T]] {
	return notNullFixed[T]{notNull[T]{c}, c.ItemSize()}
}
