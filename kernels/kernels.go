// Package kernels ships the OKL source of the parallel primitives and the
// typed descriptor of every entry point it declares.
package kernels

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/notargets/gpuprims/runner/builder"
)

//go:embed primitives.okl
var source string

// Source returns the embedded kernel source
func Source() string {
	return source
}

const (
	Add             = "add"
	Mul             = "mul"
	MultAdd         = "multadd"
	AddF            = "addf"
	Add2D           = "add2d"
	ReduceAdd       = "reduce_add"
	ReduceMin       = "reduce_min"
	ReduceMax       = "reduce_max"
	HistSimple      = "hist_simple"
	HistComplex     = "hist_complex"
	ScanAdd         = "scan_add"
	ScanBlelloch    = "scan_add_blelloch"
	ScanGroupTotals = "scan_group_totals"
	ScanAddCarry    = "scan_add_carry"
)

func elementwise(name string, dims int, dt builder.DataType) *builder.KernelSpec {
	return builder.MustKernelSpec(name, dims,
		builder.Input("A").Type(dt),
		builder.Input("B").Type(dt),
		builder.Output("C").Type(dt),
	)
}

func reduction(name string) *builder.KernelSpec {
	return builder.MustKernelSpec(name, 1,
		builder.Input("A").Type(builder.INT32),
		builder.Output("B").Type(builder.INT32),
		builder.Local("scratch").Type(builder.INT32),
	)
}

var descriptors = map[string]*builder.KernelSpec{
	Add:     elementwise(Add, 1, builder.INT32),
	Mul:     elementwise(Mul, 1, builder.INT32),
	MultAdd: elementwise(MultAdd, 1, builder.INT32),
	AddF:    elementwise(AddF, 1, builder.Float32),
	Add2D:   elementwise(Add2D, 2, builder.INT32),

	ReduceAdd: reduction(ReduceAdd),
	ReduceMin: reduction(ReduceMin),
	ReduceMax: reduction(ReduceMax),

	HistSimple: builder.MustKernelSpec(HistSimple, 1,
		builder.Input("A").Type(builder.INT32),
		builder.InOut("H").Type(builder.INT32),
		builder.Scalar("nr_bins").Type(builder.INT32),
		builder.Scalar("neutral_element").Type(builder.INT32),
		builder.Scalar("min_value").Type(builder.INT32),
		builder.Scalar("max_value").Type(builder.INT32),
	),
	HistComplex: builder.MustKernelSpec(HistComplex, 1,
		builder.Input("A").Type(builder.INT32),
		builder.InOut("H").Type(builder.INT32),
		builder.Scalar("nr_bins").Type(builder.INT32),
		builder.Scalar("min_value").Type(builder.INT32),
		builder.Scalar("max_value").Type(builder.INT32),
		builder.Local("local_hist").Type(builder.INT32),
	),

	ScanAdd: builder.MustKernelSpec(ScanAdd, 1,
		builder.Input("A").Type(builder.INT32),
		builder.Output("B").Type(builder.INT32),
		builder.Local("cur").Type(builder.INT32),
		builder.Local("next").Type(builder.INT32),
	),
	ScanBlelloch: builder.MustKernelSpec(ScanBlelloch, 1,
		builder.Input("A").Type(builder.INT32),
		builder.Output("B").Type(builder.INT32),
		builder.Local("temp").Type(builder.INT32),
	),
	ScanGroupTotals: builder.MustKernelSpec(ScanGroupTotals, 1,
		builder.Input("B").Type(builder.INT32),
		builder.Output("T").Type(builder.INT32),
	),
	ScanAddCarry: builder.MustKernelSpec(ScanAddCarry, 1,
		builder.InOut("B").Type(builder.INT32),
		builder.Input("T").Type(builder.INT32),
	),
}

// Descriptor returns the descriptor of a shipped entry point
func Descriptor(name string) (*builder.KernelSpec, error) {
	spec, ok := descriptors[name]
	if !ok {
		return nil, fmt.Errorf("no descriptor for kernel %q", name)
	}
	return spec, nil
}

// Names returns the shipped entry points in sorted order
func Names() []string {
	names := make([]string, 0, len(descriptors))
	for name := range descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
