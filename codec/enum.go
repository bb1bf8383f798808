package codec

import (
	"fmt"
	"strings"

	"github.com/hupe1980/wormdb/core"
	"github.com/hupe1980/wormdb/fileio"
)

// ordinalWidth picks 1, 2 or 4 bytes so that the all-ones pattern
// (and reserved markers below it) never collide with a real ordinal.
func ordinalWidth(n, reserved int) int {
	switch {
	case n <= 0xFF-reserved:
		return 1
	case n <= 0xFFFF-reserved:
		return 2
	}
	return 4
}

func putOrdinal(w *fileio.WriteCursor, width int, v int) {
	switch width {
	case 1:
		w.PutUint8(uint8(v))
	case 2:
		w.PutInt16(int16(v))
	default:
		w.PutInt32(int32(v))
	}
}

// getOrdinal reads an ordinal, mapping the all-ones pattern to -1 and the
// one below it to -2.
func getOrdinal(r *fileio.ReadCursor, width int) int {
	var v, mask int
	switch width {
	case 1:
		v, mask = int(r.Uint8()), 0xFF
	case 2:
		v, mask = int(uint16(r.Int16())), 0xFFFF
	default:
		return int(r.Int32())
	}
	switch v {
	case mask:
		return -1
	case mask - 1:
		return -2
	}
	return v
}

// Enum stores values of a closed set by their ordinal in the set.
// The width is 1, 2 or 4 bytes depending on the cardinality. The value set
// must not change once data has been written.
type Enum[T comparable] struct {
	values   []T
	ordinals map[T]int
	width    int
}

// NewEnum creates an enum codec over values, which must be distinct.
func NewEnum[T comparable](values ...T) (*Enum[T], error) {
	ordinals := make(map[T]int, len(values))
	for i, v := range values {
		if _, dup := ordinals[v]; dup {
			return nil, fmt.Errorf("%w: duplicate enum value %v", core.ErrInvalidArgument, v)
		}
		ordinals[v] = i
	}
	return &Enum[T]{
		values:   values,
		ordinals: ordinals,
		width:    ordinalWidth(len(values), 1),
	}, nil
}

func (e *Enum[T]) ItemSize() int { return e.width }

// Values returns the value set in ordinal order.
func (e *Enum[T]) Values() []T { return e.values }

func (e *Enum[T]) Encode(w *fileio.WriteCursor, v core.Nullable[T]) error {
	ord := -1
	if v.Valid {
		i, ok := e.ordinals[v.Value]
		if !ok {
			return fmt.Errorf("%w: %v is not an enum value", core.ErrInvalidArgument, v.Value)
		}
		ord = i
	}
	putOrdinal(w, e.width, ord)
	return w.Err()
}

func (e *Enum[T]) Decode(r *fileio.ReadCursor) (core.Nullable[T], error) {
	ord := getOrdinal(r, e.width)
	if err := r.Err(); err != nil {
		return core.Null[T](), err
	}
	if ord == -1 {
		return core.Null[T](), nil
	}
	if ord < 0 || ord >= len(e.values) {
		return core.Null[T](), core.Corruptf("enum ordinal %d out of range [0:%d]", ord, len(e.values))
	}
	return core.Some(e.values[ord]), nil
}

// EnumString stores frequent strings by their position in a dictionary
// and any other string in full. Dictionary matching ignores case, so a
// dictionary value reads back with the dictionary's spelling.
type EnumString struct {
	values   []string
	ordinals map[string]int
	width    int
}

// NewEnumString creates a dictionary codec. Values must be distinct
// ignoring case.
func NewEnumString(values ...string) (*EnumString, error) {
	ordinals := make(map[string]int, len(values))
	for i, v := range values {
		key := strings.ToLower(v)
		if _, dup := ordinals[key]; dup {
			return nil, fmt.Errorf("%w: duplicate dictionary value %q", core.ErrInvalidArgument, v)
		}
		ordinals[key] = i
	}
	return &EnumString{
		values:   values,
		ordinals: ordinals,
		width:    ordinalWidth(len(values), 2),
	}, nil
}

func (e *EnumString) Encode(w *fileio.WriteCursor, v core.Nullable[string]) error {
	if !v.Valid {
		putOrdinal(w, e.width, -1)
		return w.Err()
	}
	if i, ok := e.ordinals[strings.ToLower(v.Value)]; ok {
		putOrdinal(w, e.width, i)
		return w.Err()
	}
	putOrdinal(w, e.width, -2)
	w.PutString(v.Value)
	return w.Err()
}

func (e *EnumString) Decode(r *fileio.ReadCursor) (core.Nullable[string], error) {
	ord := getOrdinal(r, e.width)
	if err := r.Err(); err != nil {
		return core.Null[string](), err
	}
	switch {
	case ord == -1:
		return core.Null[string](), nil
	case ord == -2:
		v := r.NullString()
		return v, r.Err()
	case ord < 0 || ord >= len(e.values):
		return core.Null[string](), core.Corruptf("dictionary ordinal %d out of range [0:%d]", ord, len(e.values))
	}
	return core.Some(e.values[ord]), nil
}
