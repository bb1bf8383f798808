package rowset

import (
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/wormdb/core"
)

// ToBitmap returns the set as a roaring bitmap.
func (s *Set) ToBitmap() *roaring.Bitmap {
	bm := roaring.New()
	switch s.kind {
	case kindDense:
		bm.AddRange(0, uint64(s.n))
	case kindSparse:
		s.normalize()
		ids := make([]uint32, len(s.data))
		for i, v := range s.data {
			ids[i] = uint32(v)
		}
		bm.AddMany(ids)
	}
	return bm
}

// FromBitmap builds a set from a roaring bitmap. A bitmap holding exactly
// {0, ..., n-1} becomes Dense(n).
func FromBitmap(bm *roaring.Bitmap) *Set {
	if bm == nil || bm.IsEmpty() {
		return &Set{}
	}
	card := bm.GetCardinality()
	if bm.Minimum() == 0 && uint64(bm.Maximum()) == card-1 {
		return Dense(int(card))
	}
	ids := bm.ToArray()
	data := make([]int, len(ids))
	for i, v := range ids {
		data[i] = int(v)
	}
	return &Set{kind: kindSparse, data: data, sorted: true}
}

// MarshalBinary encodes the set in the portable roaring format.
func (s *Set) MarshalBinary() ([]byte, error) {
	if !s.IsEmpty() && uint64(s.last()) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: row id %d exceeds 32 bits", core.ErrInvalidArgument, s.last())
	}
	return s.ToBitmap().ToBytes()
}

// UnmarshalBinary decodes a set written by MarshalBinary.
func (s *Set) UnmarshalBinary(data []byte) error {
	bm := roaring.New()
	if err := bm.UnmarshalBinary(data); err != nil {
		return core.Corruptf("row set: %v", err)
	}
	*s = *FromBitmap(bm)
	return nil
}
