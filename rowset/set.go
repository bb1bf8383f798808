package rowset

import (
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"

	"github.com/hupe1980/wormdb/core"
)

type kind uint8

const (
	kindEmpty kind = iota
	kindDense
	kindSparse
)

// Set is a set of row ids. The zero value is an empty set.
type Set struct {
	kind   kind
	n      int   // dense: exclusive upper bound
	data   []int // sparse
	sorted bool  // sparse: data is strictly ascending
}

// Empty returns a new empty set.
func Empty() *Set { return &Set{} }

// Dense returns the set {0, ..., n-1}.
func Dense(n int) *Set {
	if n <= 0 {
		return &Set{}
	}
	return &Set{kind: kindDense, n: n}
}

// Of returns a sparse set holding values. Duplicates and disorder are allowed.
func Of(values ...int) *Set {
	s := &Set{}
	s.AddAll(values...)
	return s
}

// Wrap returns a sparse set that takes ownership of values.
func Wrap(values []int) *Set {
	if len(values) == 0 {
		return &Set{}
	}
	for _, v := range values {
		checkRow(v)
	}
	return &Set{kind: kindSparse, data: values}
}

// WithCapacity returns an empty set with room for n sparse values.
func WithCapacity(n int) *Set {
	return &Set{kind: kindSparse, data: make([]int, 0, n), sorted: true}
}

func checkRow(v int) {
	if v < 0 {
		panic(fmt.Sprintf("rowset: negative row id %d", v))
	}
}

func (s *Set) setEmpty() {
	s.kind, s.n, s.data, s.sorted = kindEmpty, 0, nil, false
}

func (s *Set) setDense(n int) {
	if n <= 0 {
		s.setEmpty()
		return
	}
	s.kind, s.n, s.data, s.sorted = kindDense, n, nil, false
}

func (s *Set) setSparse(data []int, sorted bool) {
	if len(data) == 0 {
		s.setEmpty()
		return
	}
	s.kind, s.n, s.data, s.sorted = kindSparse, 0, data, sorted
}

// normalize sorts and deduplicates a sparse set.
func (s *Set) normalize() {
	if s.kind != kindSparse || s.sorted {
		return
	}
	slices.Sort(s.data)
	s.data = slices.Compact(s.data)
	s.sorted = true
}

// unpack turns a dense set into an equivalent sparse one with spare capacity.
func (s *Set) unpack(extra int) {
	if s.kind != kindDense {
		return
	}
	data := make([]int, s.n, s.n+extra)
	for i := range data {
		data[i] = i
	}
	s.setSparse(data, true)
}

// last returns the largest value of a non-empty set.
func (s *Set) last() int {
	switch s.kind {
	case kindDense:
		return s.n - 1
	case kindSparse:
		if s.sorted {
			return s.data[len(s.data)-1]
		}
		return slices.Max(s.data)
	}
	return -1
}

// Len returns the number of row ids.
func (s *Set) Len() int {
	switch s.kind {
	case kindDense:
		return s.n
	case kindSparse:
		s.normalize()
		return len(s.data)
	}
	return 0
}

// IsEmpty reports whether the set holds no row ids.
func (s *Set) IsEmpty() bool {
	return s.kind == kindEmpty || (s.kind == kindSparse && len(s.data) == 0)
}

// IsDense reports whether the set is held as the range {0, ..., n-1}.
func (s *Set) IsDense() bool { return s.kind == kindDense }

// Contains reports whether v is in the set.
func (s *Set) Contains(v int) bool {
	switch s.kind {
	case kindDense:
		return v >= 0 && v < s.n
	case kindSparse:
		s.normalize()
		_, ok := slices.BinarySearch(s.data, v)
		return ok
	}
	return false
}

// Get returns the i-th smallest row id. It panics if i is out of range.
func (s *Set) Get(i int) int {
	if i < 0 || i >= s.Len() {
		panic(fmt.Sprintf("rowset: index %d out of range [0:%d]", i, s.Len()))
	}
	if s.kind == kindDense {
		return i
	}
	return s.data[i]
}

// Add inserts v. It panics on a negative v.
func (s *Set) Add(v int) {
	checkRow(v)
	switch s.kind {
	case kindEmpty:
		s.setSparse(append(make([]int, 0, 8), v), true)
	case kindDense:
		switch {
		case v < s.n:
		case v == s.n:
			s.n++
		default:
			s.unpack(1)
			s.data = append(s.data, v)
		}
	case kindSparse:
		if s.sorted && len(s.data) > 0 && s.data[len(s.data)-1] >= v {
			s.sorted = false
		}
		s.data = append(s.data, v)
	}
}

// AddAll inserts every value.
func (s *Set) AddAll(values ...int) {
	for _, v := range values {
		s.Add(v)
	}
}

// Remove deletes v and reports whether it was present.
func (s *Set) Remove(v int) bool {
	switch s.kind {
	case kindDense:
		if v < 0 || v >= s.n {
			return false
		}
		if v == s.n-1 {
			s.setDense(s.n - 1)
			return true
		}
		s.unpack(0)
	case kindEmpty:
		return false
	}
	s.normalize()
	i, ok := slices.BinarySearch(s.data, v)
	if !ok {
		return false
	}
	s.setSparse(slices.Delete(s.data, i, i+1), true)
	return true
}

// RemoveIf deletes every row id matching pred and reports whether any was removed.
func (s *Set) RemoveIf(pred func(int) bool) bool {
	switch s.kind {
	case kindEmpty:
		return false
	case kindDense:
		data := make([]int, 0, s.n)
		for v := range s.n {
			if !pred(v) {
				data = append(data, v)
			}
		}
		if len(data) == s.n {
			return false
		}
		s.setSparse(data, true)
		return true
	}
	before := len(s.data)
	kept := slices.DeleteFunc(s.data, pred)
	s.setSparse(kept, s.sorted)
	return len(kept) < before
}

// RemoveAll deletes every row id of other and reports whether s changed.
func (s *Set) RemoveAll(other *Set) bool {
	if s.IsEmpty() || other.IsEmpty() {
		return false
	}
	if s == other {
		s.setEmpty()
		return true
	}

	if other.kind == kindDense {
		m := other.n
		switch s.kind {
		case kindDense:
			if s.n <= m {
				s.setEmpty()
				return true
			}
			data := make([]int, 0, s.n-m)
			for v := m; v < s.n; v++ {
				data = append(data, v)
			}
			s.setSparse(data, true)
			return true
		default:
			s.normalize()
			i, _ := slices.BinarySearch(s.data, m)
			if i == 0 {
				return false
			}
			s.setSparse(slices.Delete(s.data, 0, i), true)
			return true
		}
	}

	other.normalize()
	if s.kind == kindDense {
		if other.data[0] >= s.n {
			return false
		}
		s.unpack(0)
	}
	s.normalize()
	return s.removeSorted(other.data)
}

// removeSorted is a merge join removing b from s.data in place.
func (s *Set) removeSorted(b []int) bool {
	a := s.data
	w, j := 0, 0
	for _, v := range a {
		for j < len(b) && b[j] < v {
			j++
		}
		if j < len(b) && b[j] == v {
			continue
		}
		a[w] = v
		w++
	}
	if w == len(a) {
		return false
	}
	s.setSparse(a[:w], true)
	return true
}

// Union adds every row id of other to s.
func (s *Set) Union(other *Set) {
	if s == other || other.IsEmpty() {
		return
	}
	switch {
	case s.IsEmpty():
		c := other.Clone()
		*s = *c
	case s.kind == kindDense && other.kind == kindDense:
		s.setDense(max(s.n, other.n))
	case s.kind == kindDense:
		other.normalize()
		i, _ := slices.BinarySearch(other.data, s.n)
		if i == len(other.data) {
			return
		}
		tail := other.data[i:]
		s.unpack(len(tail))
		s.data = append(s.data, tail...)
	case other.kind == kindDense:
		m := other.n
		s.normalize()
		i, _ := slices.BinarySearch(s.data, m)
		if i == len(s.data) {
			s.setDense(m)
			return
		}
		data := make([]int, m, m+len(s.data)-i)
		for v := range data {
			data[v] = v
		}
		s.setSparse(append(data, s.data[i:]...), true)
	default:
		keep := s.sorted && other.sorted && s.data[len(s.data)-1] < other.data[0]
		s.data = append(s.data, other.data...)
		s.sorted = keep
	}
}

// Intersect keeps only the row ids also in other and reports whether s changed.
func (s *Set) Intersect(other *Set) bool {
	if s == other || s.IsEmpty() {
		return false
	}
	if other.IsEmpty() {
		s.setEmpty()
		return true
	}

	switch {
	case other.kind == kindDense:
		m := other.n
		if s.kind == kindDense {
			if s.n <= m {
				return false
			}
			s.setDense(m)
			return true
		}
		if s.last() < m {
			return false
		}
		s.normalize()
		i, _ := slices.BinarySearch(s.data, m)
		s.setSparse(s.data[:i], true)
		return true
	case s.kind == kindDense:
		n := s.n
		other.normalize()
		i, _ := slices.BinarySearch(other.data, n)
		if i == n {
			// other holds {0, ..., n-1} and maybe more
			return false
		}
		s.setSparse(slices.Clone(other.data[:i]), true)
		return true
	}

	s.normalize()
	other.normalize()
	a, b := s.data, other.data
	w, j := 0, 0
	for _, v := range a {
		for j < len(b) && b[j] < v {
			j++
		}
		if j == len(b) {
			break
		}
		if b[j] == v {
			a[w] = v
			w++
		}
	}
	if w == len(a) {
		return false
	}
	s.setSparse(a[:w], true)
	return true
}

// Clear empties the set.
func (s *Set) Clear() { s.setEmpty() }

// Trim releases unused backing storage.
func (s *Set) Trim() {
	if s.kind != kindSparse {
		return
	}
	s.normalize()
	if cap(s.data) > len(s.data) {
		data := make([]int, len(s.data))
		copy(data, s.data)
		s.data = data
	}
}

// Clone returns an independent copy of s.
func (s *Set) Clone() *Set {
	c := *s
	if s.kind == kindSparse {
		c.data = slices.Clone(s.data)
	}
	return &c
}

// Equal reports whether s and other hold the same row ids,
// regardless of representation.
func (s *Set) Equal(other *Set) bool {
	if s == other {
		return true
	}
	if s.Len() != other.Len() {
		return false
	}
	switch {
	case s.IsEmpty():
		return true
	case s.kind == kindDense && other.kind == kindDense:
		return true
	case s.kind == kindDense:
		// distinct non-negative values with max n-1 are exactly {0, ..., n-1}
		return other.data[len(other.data)-1] == s.n-1
	case other.kind == kindDense:
		return s.data[len(s.data)-1] == other.n-1
	}
	return slices.Equal(s.data, other.data)
}

// All iterates over the row ids in ascending order.
func (s *Set) All() iter.Seq[int] {
	return func(yield func(int) bool) {
		switch s.kind {
		case kindDense:
			for v := range s.n {
				if !yield(v) {
					return
				}
			}
		case kindSparse:
			s.normalize()
			for _, v := range s.data {
				if !yield(v) {
					return
				}
			}
		}
	}
}

// Slice returns the row ids in ascending order.
func (s *Set) Slice() []int {
	out := make([]int, 0, s.Len())
	for v := range s.All() {
		out = append(out, v)
	}
	return out
}

// Ranges decomposes the set into maximal runs of consecutive row ids.
func (s *Set) Ranges() []core.Range[int] {
	if s.IsEmpty() {
		return nil
	}
	if s.kind == kindDense {
		return []core.Range[int]{{Min: 0, Max: s.n - 1}}
	}
	s.normalize()
	var out []core.Range[int]
	start, prev := s.data[0], s.data[0]
	for _, v := range s.data[1:] {
		if v != prev+1 {
			out = append(out, core.Range[int]{Min: start, Max: prev})
			start = v
		}
		prev = v
	}
	return append(out, core.Range[int]{Min: start, Max: prev})
}

// String formats the set as its runs, e.g. "[0-2, 5, 7]".
func (s *Set) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, r := range s.Ranges() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Itoa(r.Min))
		if r.Max != r.Min {
			sb.WriteByte('-')
			sb.WriteString(strconv.Itoa(r.Max))
		}
	}
	sb.WriteByte(']')
	return sb.String()
}
