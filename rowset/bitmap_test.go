package rowset

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/wormdb/core"
)

func TestBitmap_RoundTrip(t *testing.T) {
	for _, s := range []*Set{Empty(), Dense(1000), Of(3, 70000, 5, 1<<20)} {
		data, err := s.MarshalBinary()
		require.NoError(t, err)

		var got Set
		require.NoError(t, got.UnmarshalBinary(data))
		assert.True(t, s.Equal(&got), "%s != %s", s, &got)
	}
}

func TestFromBitmap_DetectsDense(t *testing.T) {
	bm := roaring.New()
	bm.AddRange(0, 128)
	assert.True(t, FromBitmap(bm).IsDense())

	bm.Add(500)
	s := FromBitmap(bm)
	assert.False(t, s.IsDense())
	assert.Equal(t, 129, s.Len())
	assert.Equal(t, uint64(129), s.ToBitmap().GetCardinality())
	assert.True(t, FromBitmap(nil).IsEmpty())
}

func TestUnmarshalBinary_Corrupt(t *testing.T) {
	var s Set
	err := s.UnmarshalBinary([]byte{1, 2, 3})
	assert.ErrorIs(t, err, core.ErrCorrupt)
}
