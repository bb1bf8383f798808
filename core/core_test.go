package core

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareNullable_NullsLast(t *testing.T) {
	tests := []struct {
		a, b Nullable[int]
		want int
	}{
		{Some(1), Some(2), -1},
		{Some(2), Some(2), 0},
		{Some(3), Some(2), 1},
		{Some(math.MaxInt), Null[int](), -1},
		{Null[int](), Some(math.MinInt), 1},
		{Null[int](), Null[int](), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareNullable(tt.a, tt.b), "%v vs %v", tt.a, tt.b)
	}
}

func TestSortPairs(t *testing.T) {
	pairs := []KeyToIndex[string]{
		{Key: Null[string](), Row: 4},
		Pair("b", 3),
		Pair("a", 2),
		{Key: Null[string](), Row: 0},
		Pair("b", 1),
	}
	SortPairs(pairs)

	assert.Equal(t, []KeyToIndex[string]{
		Pair("a", 2),
		Pair("b", 1),
		Pair("b", 3),
		{Key: Null[string](), Row: 0},
		{Key: Null[string](), Row: 4},
	}, pairs)
}

func TestRange(t *testing.T) {
	r := NewRange(10, 20)
	assert.True(t, r.Valid())
	assert.True(t, r.Contains(10))
	assert.True(t, r.Contains(20))
	assert.False(t, r.Contains(21))
	assert.True(t, r.Covers(NewRange(12, 18)))
	assert.False(t, r.Covers(NewRange(5, 18)))

	err := NewRange(3, 1).Validate()
	assert.ErrorIs(t, err, ErrInvalidRange)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = NewRange(math.NaN(), 1).Validate()
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.NotErrorIs(t, err, ErrInvalidRange)
	assert.ErrorIs(t, NewRange(1, math.NaN()).Validate(), ErrInvalidArgument)
	assert.NoError(t, NewRange(math.Inf(-1), math.Inf(1)).Validate())
}

func TestErrorKinds(t *testing.T) {
	assert.ErrorIs(t, ErrSizeMismatch, ErrCorrupt)
	assert.ErrorIs(t, ErrStoreBusy, ErrConcurrency)
	assert.ErrorIs(t, ErrClosed, ErrState)

	err := IOError("read", errors.New("disk gone"))
	assert.ErrorIs(t, err, ErrIO)
	assert.Contains(t, err.Error(), "disk gone")
	assert.Nil(t, IOError("read", nil))

	assert.ErrorIs(t, Corruptf("bad block %d", 3), ErrCorrupt)
}
