// Package validate computes host-side reference results for the device
// primitives and compares device output against them. Integer references
// wrap on overflow exactly like 32-bit device arithmetic.
package validate

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func toFloat64(data []int32) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}

// Sum is the wrapping int32 sum of data
func Sum(data []int32) int32 {
	var s int32
	for _, v := range data {
		s += v
	}
	return s
}

// SumFloat32 is the float64 sum of float32 data
func SumFloat32(data []float32) float64 {
	f := make([]float64, len(data))
	for i, v := range data {
		f[i] = float64(v)
	}
	return floats.Sum(f)
}

// Min returns the smallest element, MaxInt32 for empty data
func Min(data []int32) int32 {
	if len(data) == 0 {
		return math.MaxInt32
	}
	return int32(floats.Min(toFloat64(data)))
}

// Max returns the largest element, MinInt32 for empty data
func Max(data []int32) int32 {
	if len(data) == 0 {
		return math.MinInt32
	}
	return int32(floats.Max(toFloat64(data)))
}

// InclusiveScan returns the wrapping inclusive prefix sums of data
func InclusiveScan(data []int32) []int32 {
	out := make([]int32, len(data))
	var s int32
	for i, v := range data {
		s += v
		out[i] = s
	}
	return out
}

// Elementwise applies op pairwise; a and b must have the same length
func Elementwise(a, b []int32, op func(x, y int32) int32) []int32 {
	out := make([]int32, len(a))
	for i := range a {
		out[i] = op(a[i], b[i])
	}
	return out
}

// Dividers returns the bin edges of bins equal-width buckets over the
// inclusive integer range [lo, hi]. Bucket k holds the values v with
// dividers[k] <= v < dividers[k+1].
func Dividers(lo, hi int32, bins int) []float64 {
	span := int64(hi) - int64(lo) + 1
	d := make([]float64, bins+1)
	for k := 0; k <= bins; k++ {
		// smallest v with (v-lo)*bins/span >= k
		edge := (int64(k)*span + int64(bins) - 1) / int64(bins)
		d[k] = float64(int64(lo) + edge)
	}
	return d
}

// Histogram counts the values of data in [lo, hi] into bins buckets. Values
// equal to skip are ignored when skipNeutral is set.
func Histogram(data []int32, lo, hi int32, bins int, skip int32, skipNeutral bool) []int32 {
	if bins <= 0 {
		return nil
	}
	in := make([]float64, 0, len(data))
	for _, v := range data {
		if v < lo || v > hi || (skipNeutral && v == skip) {
			continue
		}
		in = append(in, float64(v))
	}
	sort.Float64s(in)
	counts := make([]float64, bins)
	if len(in) > 0 {
		counts = stat.Histogram(counts, Dividers(lo, hi, bins), in, nil)
	}
	out := make([]int32, bins)
	for i, c := range counts {
		out[i] = int32(c)
	}
	return out
}

// Mismatch describes the first element where device output differs
type Mismatch struct {
	Index     int
	Got, Want interface{}
}

func (m *Mismatch) Error() string {
	return fmt.Sprintf("element %d: got %v, want %v", m.Index, m.Got, m.Want)
}

// EqualInt32 returns a *Mismatch for the first differing element
func EqualInt32(got, want []int32) error {
	if len(got) != len(want) {
		return fmt.Errorf("length %d, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			return &Mismatch{Index: i, Got: got[i], Want: want[i]}
		}
	}
	return nil
}

// EqualFloat32 compares within an absolute tolerance
func EqualFloat32(got, want []float32, tol float64) error {
	if len(got) != len(want) {
		return fmt.Errorf("length %d, want %d", len(got), len(want))
	}
	g, w := make([]float64, len(got)), make([]float64, len(want))
	for i := range got {
		g[i], w[i] = float64(got[i]), float64(want[i])
	}
	if floats.EqualApprox(g, w, tol) {
		return nil
	}
	for i := range g {
		if math.Abs(g[i]-w[i]) > tol {
			return &Mismatch{Index: i, Got: got[i], Want: want[i]}
		}
	}
	return nil
}

// Summary is the mean and standard deviation of a series of timings
type Summary struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Summarize returns the statistics of samples, zero for an empty series
func Summarize(samples []float64) Summary {
	if len(samples) == 0 {
		return Summary{}
	}
	mean, std := stat.MeanStdDev(samples, nil)
	if len(samples) == 1 {
		std = 0
	}
	return Summary{
		Count:  len(samples),
		Mean:   mean,
		StdDev: std,
		Min:    floats.Min(samples),
		Max:    floats.Max(samples),
	}
}
