package validate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReductions(t *testing.T) {
	data := []int32{5, -3, 9, 1}
	assert.Equal(t, int32(12), Sum(data))
	assert.Equal(t, int32(-3), Min(data))
	assert.Equal(t, int32(9), Max(data))
	assert.Equal(t, int32(math.MaxInt32), Min(nil))
	assert.Equal(t, int32(math.MinInt32), Max(nil))
	assert.Equal(t, int32(math.MinInt32), Sum([]int32{math.MaxInt32, 1}), "sum wraps like the device")
	assert.InDelta(t, 3.75, SumFloat32([]float32{1.25, 2.5}), 1e-12)
}

func TestInclusiveScan(t *testing.T) {
	assert.Equal(t, []int32{3, 4, 11, 11, 15, 16, 22, 25}, InclusiveScan([]int32{3, 1, 7, 0, 4, 1, 6, 3}))
	assert.Empty(t, InclusiveScan(nil))
}

func TestDividers(t *testing.T) {
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, Dividers(0, 9, 10))
	assert.Equal(t, []float64{0, 2, 4, 6, 8, 10}, Dividers(0, 9, 5))
	// 3 buckets over 10 values: 0-3, 4-6, 7-9
	assert.Equal(t, []float64{0, 4, 7, 10}, Dividers(0, 9, 3))
}

func TestHistogram(t *testing.T) {
	data := []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 3, 3, -1, 10}
	assert.Equal(t, []int32{1, 1, 1, 3, 1, 1, 1, 1, 1, 1}, Histogram(data, 0, 9, 10, 0, false))
	assert.Equal(t, []int32{6, 3, 3}, Histogram(data, 0, 9, 3, 0, false))
	assert.Equal(t, []int32{0, 1, 1, 3, 1, 1, 1, 1, 1, 1}, Histogram(data, 0, 9, 10, 0, true))
	assert.Equal(t, []int32{0, 0}, Histogram([]int32{-5}, 0, 9, 2, 0, false))
	assert.Nil(t, Histogram(data, 0, 9, 0, 0, false))
}

func TestEqual(t *testing.T) {
	require.NoError(t, EqualInt32([]int32{1, 2}, []int32{1, 2}))
	err := EqualInt32([]int32{1, 5}, []int32{1, 2})
	var m *Mismatch
	require.ErrorAs(t, err, &m)
	assert.Equal(t, 1, m.Index)
	assert.Error(t, EqualInt32([]int32{1}, []int32{1, 2}))

	require.NoError(t, EqualFloat32([]float32{1, 2.0001}, []float32{1, 2}, 1e-3))
	require.ErrorAs(t, EqualFloat32([]float32{1, 2.1}, []float32{1, 2}, 1e-3), &m)
	assert.Equal(t, 1, m.Index)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.Equal(t, 8, s.Count)
	assert.InDelta(t, 5, s.Mean, 1e-12)
	assert.InDelta(t, 2.138089935, s.StdDev, 1e-6)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
	assert.Equal(t, Summary{}, Summarize(nil))
	assert.Equal(t, 0.0, Summarize([]float64{3}).StdDev)
}
