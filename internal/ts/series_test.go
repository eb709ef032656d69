package ts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRows(t *testing.T) {
	s, err := FromRows([][]float64{
		{1, 10},
		{2, 20},
		{3, 30},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Channels())
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []float64{1, 2, 3}, s.Data[0])
	assert.Equal(t, []float64{10, 20, 30}, s.Data[1])

	_, err = FromRows([][]float64{{1, 2}, {3}})
	require.Error(t, err)
}

func TestSplitDropsRemainder(t *testing.T) {
	s := New(2, 13)
	for tIdx := 0; tIdx < 13; tIdx++ {
		s.Data[0][tIdx] = float64(tIdx)
	}
	windows := Split(s, 4)
	require.Len(t, windows, 3)
	for i, w := range windows {
		assert.Equal(t, 4, w.Len())
		assert.Equal(t, float64(i*4), w.Data[0][0])
	}

	assert.Nil(t, Split(s, 14))
	assert.Nil(t, Split(s, 0))
}

func TestWindowAtClamps(t *testing.T) {
	s := New(1, 10)
	for i := 0; i < 10; i++ {
		s.Data[0][i] = float64(i)
	}

	w := s.WindowAt(0, 4)
	assert.Equal(t, []float64{0, 1, 2, 3}, w.Data[0])

	w = s.WindowAt(9, 4)
	assert.Equal(t, []float64{6, 7, 8, 9}, w.Data[0])

	w = s.WindowAt(5, 4)
	assert.Equal(t, 4, w.Len())
}

func TestPadTo(t *testing.T) {
	s, err := FromRows([][]float64{{1, 4}, {2, 5}, {3, 6}})
	require.NoError(t, err)

	padded := s.PadTo(5)
	assert.Equal(t, []float64{1, 2, 3, 3, 3}, padded.Data[0])
	assert.Equal(t, []float64{4, 5, 6, 6, 6}, padded.Data[1])

	// Padding must not alias the original storage.
	padded.Data[0][0] = 99
	assert.Equal(t, 1.0, s.Data[0][0])

	same := s.PadTo(2)
	assert.Equal(t, 3, same.Len())
}

func TestFlattenAndColumn(t *testing.T) {
	s, err := FromRows([][]float64{{1, 4}, {2, 5}})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 4, 5}, s.Flatten())
	assert.Equal(t, []float64{2, 5}, s.Column(1))
}
