package core

import (
	"cmp"
	"fmt"
)

// Range is an inclusive range [Min, Max].
type Range[K cmp.Ordered] struct {
	Min K
	Max K
}

// NewRange returns the range [min, max].
func NewRange[K cmp.Ordered](min, max K) Range[K] {
	return Range[K]{Min: min, Max: max}
}

// Valid reports whether Min <= Max.
func (r Range[K]) Valid() bool {
	return cmp.Compare(r.Min, r.Max) <= 0
}

// Validate returns ErrInvalidArgument when a bound is NaN, the null value of
// float keys, and ErrInvalidRange when Min > Max.
func (r Range[K]) Validate() error {
	if isNaN(r.Min) || isNaN(r.Max) {
		return fmt.Errorf("%w: null range bound: [%v - %v]", ErrInvalidArgument, r.Min, r.Max)
	}
	if !r.Valid() {
		return fmt.Errorf("%w: [%v - %v]", ErrInvalidRange, r.Min, r.Max)
	}
	return nil
}

func isNaN[K cmp.Ordered](v K) bool {
	return v != v
}

// Contains reports whether v lies in the range.
func (r Range[K]) Contains(v K) bool {
	return cmp.Compare(r.Min, v) <= 0 && cmp.Compare(r.Max, v) >= 0
}

// Covers reports whether o lies entirely inside r.
func (r Range[K]) Covers(o Range[K]) bool {
	return cmp.Compare(r.Min, o.Min) <= 0 && cmp.Compare(r.Max, o.Max) >= 0
}

func (r Range[K]) String() string {
	return fmt.Sprintf("[%v - %v]", r.Min, r.Max)
}
