package store

import (
	"cmp"
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/wormdb/core"
	"github.com/hupe1980/wormdb/index"
	"github.com/hupe1980/wormdb/rowset"
)

// Condition narrows a set of rows. Conditions built on an index require the
// index to be attached to the queried store.
type Condition interface {
	index() any
	apply(rows *rowset.Set) error
}

type condition struct {
	idx any
	fn  func(rows *rowset.Set) error
}

func (c condition) index() any                   { return c.idx }
func (c condition) apply(rows *rowset.Set) error { return c.fn(rows) }

func intersectWith(rows *rowset.Set, found *rowset.Set, err error) error {
	if err != nil {
		return err
	}
	rows.Intersect(found)
	return nil
}

// Eq keeps rows whose key equals key. A null key matches null rows.
func Eq[K cmp.Ordered](idx index.Index[K], key core.Nullable[K]) Condition {
	return condition{idx, func(rows *rowset.Set) error {
		found, err := idx.Lookup(key)
		return intersectWith(rows, found, err)
	}}
}

// Between keeps rows whose key is in [min, max].
func Between[K cmp.Ordered](idx index.Index[K], min, max K) Condition {
	return condition{idx, func(rows *rowset.Set) error {
		found, err := idx.LookupRange(min, max)
		return intersectWith(rows, found, err)
	}}
}

// In keeps rows whose key is one of keys.
func In[K cmp.Ordered](idx index.Index[K], keys ...core.Nullable[K]) Condition {
	return condition{idx, func(rows *rowset.Set) error {
		found, err := idx.LookupAny(keys)
		return intersectWith(rows, found, err)
	}}
}

// AnyRange keeps rows whose key falls in at least one of ranges.
func AnyRange[K cmp.Ordered](idx index.Index[K], ranges ...core.Range[K]) Condition {
	return condition{idx, func(rows *rowset.Set) error {
		found, err := idx.LookupRanges(ranges...)
		return intersectWith(rows, found, err)
	}}
}

// Match keeps rows whose key satisfies pred. pred sees every distinct key of
// the index, and the null key too when includeNull is set; rows with a null
// key are dropped otherwise.
func Match[K cmp.Ordered](idx index.Index[K], pred func(core.Nullable[K]) bool, includeNull bool) Condition {
	return condition{idx, func(rows *rowset.Set) error {
		keys, err := idx.Keys(includeNull)
		if err != nil {
			return err
		}
		selected := keys[:0:0]
		for _, k := range keys {
			if pred(k) {
				selected = append(selected, k)
			}
		}
		found, err := idx.LookupAny(selected)
		return intersectWith(rows, found, err)
	}}
}

// Rows keeps the given row ids.
func Rows(set *rowset.Set) Condition {
	return condition{nil, func(rows *rowset.Set) error {
		rows.Intersect(set)
		return nil
	}}
}

// Bitmap keeps the row ids of bm.
func Bitmap(bm *roaring.Bitmap) Condition {
	return Rows(rowset.FromBitmap(bm))
}

// Where returns the rows matching every condition.
func (s *RowStore[T]) Where(conds ...Condition) (*rowset.Set, error) {
	start := time.Now()
	rows, err := s.where(conds)
	s.opts.metrics.RecordLookup(time.Since(start), err)
	return rows, err
}

func (s *RowStore[T]) where(conds []Condition) (*rowset.Set, error) {
	n, err := s.Size()
	if err != nil {
		return nil, err
	}
	for _, c := range conds {
		if idx := c.index(); idx != nil && !s.HasIndex(idx) {
			return nil, fmt.Errorf("%w: index is not attached to %s", core.ErrInvalidArgument, s.opts.name)
		}
	}
	rows := rowset.Dense(n)
	for _, c := range conds {
		if rows.IsEmpty() {
			break
		}
		if err := c.apply(rows); err != nil {
			return nil, err
		}
	}
	rows.Trim()
	return rows, nil
}

// Select returns the rows matching every condition, in row id order.
func (s *RowStore[T]) Select(conds ...Condition) ([]T, error) {
	rows, err := s.Where(conds...)
	if err != nil {
		return nil, err
	}
	return s.GetAll(rows)
}

// GetAll returns the rows of set in ascending order.
func (s *RowStore[T]) GetAll(set *rowset.Set) ([]T, error) {
	out := make([]T, 0, set.Len())
	for row := range set.All() {
		v, err := s.Get(row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Query collects conditions fluently:
//
//	rows, err := s.Query().And(store.Between(age, 20, 30)).And(store.Eq(city, core.Some("Oslo"))).Rows()
type Query[T any] struct {
	s     *RowStore[T]
	conds []Condition
}

// Query starts an empty query matching every row.
func (s *RowStore[T]) Query() *Query[T] { return &Query[T]{s: s} }

// And adds a condition.
func (q *Query[T]) And(c Condition) *Query[T] {
	q.conds = append(q.conds, c)
	return q
}

// Rows runs the query and returns the matching row ids.
func (q *Query[T]) Rows() (*rowset.Set, error) { return q.s.Where(q.conds...) }

// Select runs the query and returns the matching rows.
func (q *Query[T]) Select() ([]T, error) { return q.s.Select(q.conds...) }

// candidates intersects the lookups of every attached index for v.
func (s *RowStore[T]) candidates(v T) (*rowset.Set, error) {
	n, err := s.Size()
	if err != nil {
		return nil, err
	}
	rows := rowset.Dense(n)
	bindings, _ := s.snapshot()
	for _, b := range bindings {
		if rows.IsEmpty() {
			break
		}
		found, err := b.lookupRow(v)
		if err != nil {
			return nil, err
		}
		rows.Intersect(found)
	}
	return rows, nil
}

// IndexOf returns the first row equal to v, or -1. Attached indexes narrow
// the candidates; equal decides among them.
func (s *RowStore[T]) IndexOf(v T, equal func(a, b T) bool) (int, error) {
	rows, err := s.candidates(v)
	if err != nil {
		return -1, err
	}
	for i := 0; i < rows.Len(); i++ {
		row := rows.Get(i)
		ok, err := s.rowEquals(row, v, equal)
		if err != nil {
			return -1, err
		}
		if ok {
			return row, nil
		}
	}
	return -1, nil
}

// LastIndexOf returns the last row equal to v, or -1.
func (s *RowStore[T]) LastIndexOf(v T, equal func(a, b T) bool) (int, error) {
	rows, err := s.candidates(v)
	if err != nil {
		return -1, err
	}
	for i := rows.Len() - 1; i >= 0; i-- {
		row := rows.Get(i)
		ok, err := s.rowEquals(row, v, equal)
		if err != nil {
			return -1, err
		}
		if ok {
			return row, nil
		}
	}
	return -1, nil
}

func (s *RowStore[T]) rowEquals(row int, v T, equal func(a, b T) bool) (bool, error) {
	got, err := s.Get(row)
	if err != nil {
		return false, err
	}
	return equal(got, v), nil
}
