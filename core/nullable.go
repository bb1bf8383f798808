package core

import (
	"cmp"
	"fmt"
)

// Nullable holds a value that may be null. The zero value is null.
type Nullable[T any] struct {
	Value T
	Valid bool
}

// Some returns a non-null value.
func Some[T any](v T) Nullable[T] {
	return Nullable[T]{Value: v, Valid: true}
}

// Null returns the null value of T.
func Null[T any]() Nullable[T] {
	return Nullable[T]{}
}

// IsNull reports whether n is null.
func (n Nullable[T]) IsNull() bool { return !n.Valid }

// Get returns the value and whether it is non-null.
func (n Nullable[T]) Get() (T, bool) { return n.Value, n.Valid }

func (n Nullable[T]) String() string {
	if !n.Valid {
		return "null"
	}
	return fmt.Sprint(n.Value)
}

// CompareNullable orders values ascending with nulls last.
func CompareNullable[K cmp.Ordered](a, b Nullable[K]) int {
	switch {
	case !a.Valid && !b.Valid:
		return 0
	case !a.Valid:
		return 1
	case !b.Valid:
		return -1
	}
	return cmp.Compare(a.Value, b.Value)
}
