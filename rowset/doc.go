// Package rowset implements Set, a set of non-negative row ids.
//
// A Set has three representations:
//
//   - empty
//   - dense: exactly {0, ..., n-1}, held as a single bound
//   - sparse: an array of row ids, sorted and deduplicated lazily
//
// Every operation switches on the pair of representations involved and picks
// the cheapest algorithm; intersecting Dense(n) with a small sparse set costs
// O(|sparse|), never O(n). A sparse set that happens to hold {0, ..., n-1} is
// Equal to Dense(n).
//
// Operations taking another Set treat an aliased operand (s.Op(s)) as the
// set-algebraic identity: Union and Intersect are no-ops and RemoveAll empties
// the set. A Set is not safe for concurrent use, and reading a sparse operand
// may normalize its backing array.
//
// Sets convert to and from roaring bitmaps, which is also the serialized form.
package rowset
