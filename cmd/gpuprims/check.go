package main

import (
	"fmt"

	"github.com/notargets/gpuprims/primitives"
	"github.com/notargets/gpuprims/validate"
)

// check compares a report against the host reference of its algorithm
func check(r *primitives.Report, a, b []int32) error {
	var err error
	switch r.Algorithm {
	case primitives.AlgAdd, primitives.AlgAdd2D:
		err = validate.EqualInt32(r.Vector, validate.Elementwise(a, b, func(x, y int32) int32 { return x + y }))
	case primitives.AlgMul:
		err = validate.EqualInt32(r.Vector, validate.Elementwise(a, b, func(x, y int32) int32 { return x * y }))
	case primitives.AlgMultAdd:
		err = validate.EqualInt32(r.Vector, validate.Elementwise(a, b, func(x, y int32) int32 { return x*y + y }))
	case primitives.AlgAddF:
		want := make([]float32, len(a))
		for i := range a {
			want[i] = float32(a[i]) + float32(b[i])
		}
		err = validate.EqualFloat32(r.Floats, want, 1e-6)
	case primitives.AlgReduceSum:
		err = equalScalar(r.Scalar, validate.Sum(a))
	case primitives.AlgReduceMin:
		err = equalScalar(r.Scalar, validate.Min(a))
	case primitives.AlgReduceMax:
		err = equalScalar(r.Scalar, validate.Max(a))
	case primitives.AlgHistogramSimple, primitives.AlgHistogramComplex, primitives.AlgHistogramRange:
		h := r.Histogram
		var skip int32
		if h.Sentinel != nil {
			skip = *h.Sentinel
		}
		err = validate.EqualInt32(r.Vector, validate.Histogram(a, h.Min, h.Max, h.Bins, skip, h.Sentinel != nil))
	case primitives.AlgScan, primitives.AlgScanBlelloch:
		err = validate.EqualInt32(r.Vector, validate.InclusiveScan(a))
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s result does not match the host reference: %w", r.Algorithm, err)
	}
	return nil
}

func equalScalar(got *int32, want int32) error {
	if got == nil {
		return fmt.Errorf("no result")
	}
	if *got != want {
		return &validate.Mismatch{Index: 0, Got: *got, Want: want}
	}
	return nil
}
