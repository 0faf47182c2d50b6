// Package primitives selects and sequences the shipped kernels for each
// parallel primitive. Inputs are padded to the runner's work-group size
// with the neutral element of the algorithm, uploaded, processed by one or
// more dispatches over shared buffers, and the logical part of the result is
// downloaded.
package primitives

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/notargets/gpuprims/device"
	"github.com/notargets/gpuprims/kernels"
	"github.com/notargets/gpuprims/logger"
	"github.com/notargets/gpuprims/planner"
	"github.com/notargets/gpuprims/runner"
	"github.com/notargets/gpuprims/runner/builder"
)

// Primitives runs the parallel primitives on one runner. The runner's
// program must be built from the shipped kernel source.
type Primitives struct {
	kr  *runner.Runner
	log logger.Logger
	seq int
}

// New creates the primitive set. A nil logger uses the runner's logger.
func New(kr *runner.Runner, log logger.Logger) *Primitives {
	if kr == nil {
		panic("primitives need a runner")
	}
	if log == nil {
		log = kr.Logger()
	}
	return &Primitives{kr: kr, log: log}
}

// Runner returns the underlying runner
func (p *Primitives) Runner() *runner.Runner {
	return p.kr
}

// scope names the buffers of one primitive call; buffer names are unique
// for the lifetime of the runner and released when the call returns.
type scope struct {
	p    *Primitives
	name string
}

func (p *Primitives) begin(op string) scope {
	p.seq++
	return scope{p: p, name: fmt.Sprintf("%s#%d", op, p.seq)}
}

func (s scope) buffer(role string) string {
	return s.name + "." + role
}

// release frees every buffer of the call once its result is on the host
func (s scope) release() {
	prefix := s.name + "."
	var names []string
	for _, name := range s.p.kr.GetAllocatedBuffers() {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	if err := s.p.kr.Release(names...); err != nil {
		s.p.log.Warn("release failed", "call", s.name, "error", err)
	}
}

// define (re)binds a shipped kernel to named buffers and values in
// parameter order
func (p *Primitives) define(kernel string, args ...interface{}) error {
	spec, err := kernels.Descriptor(kernel)
	if err != nil {
		return device.NewError(device.KindConfiguration, "define", kernel, err)
	}
	if _, err = p.kr.GetKernelDefinition(kernel); err != nil {
		if err = p.kr.DefineKernelSpec(spec); err != nil {
			return err
		}
	}
	return p.kr.SetArgs(kernel, args...)
}

// dispatchGroups runs a 1-D kernel over physical items in work-groups of
// the compiled size
func (p *Primitives) dispatchGroups(kernel string, physical int) error {
	g := p.kr.WorkGroupSize
	_, err := p.kr.Dispatch(kernel, device.Extent{physical}, device.Extent{g})
	return err
}

// upload pads data per part and uploads it to a new buffer
func uploadPadded[T planner.Element](p *Primitives, name string, access device.AccessMode, data []T, part planner.Partition) error {
	padded, err := planner.Pad(data, part)
	if err != nil {
		return err
	}
	_, err = runner.CopyArrayToDevice(p.kr, name, access, padded)
	return err
}

// ============================================================================
// Element-wise kernels
// ============================================================================

// Elementwise runs add, mul or multadd over two int32 vectors of equal length
func (p *Primitives) Elementwise(kernel string, a, b []int32) ([]int32, error) {
	switch kernel {
	case kernels.Add, kernels.Mul, kernels.MultAdd:
	default:
		return nil, device.Errorf(device.KindConfiguration, "Elementwise",
			"kernel %s is not an int32 element-wise kernel", kernel)
	}
	return elementwise(p, kernel, a, b)
}

// AddF adds two float32 vectors
func (p *Primitives) AddF(a, b []float32) ([]float32, error) {
	return elementwise(p, kernels.AddF, a, b)
}

func elementwise[T planner.Element](p *Primitives, kernel string, a, b []T) ([]T, error) {
	if len(a) != len(b) {
		return nil, device.Errorf(device.KindConfiguration, kernel,
			"operands have %d and %d elements", len(a), len(b))
	}
	part, err := planner.Plan(len(a), p.kr.WorkGroupSize, planner.SumPolicy)
	if err != nil {
		return nil, err
	}
	if part.Empty() {
		return []T{}, nil
	}
	s := p.begin(kernel)
	defer s.release()
	if err = uploadPadded(p, s.buffer("A"), device.ReadOnly, a, part); err != nil {
		return nil, err
	}
	if err = uploadPadded(p, s.buffer("B"), device.ReadOnly, b, part); err != nil {
		return nil, err
	}
	var zero T
	dt, _ := builder.DataTypeOf(zero)
	if _, err = p.kr.Allocate(s.buffer("C"), device.WriteOnly, dt, part.PhysicalLength); err != nil {
		return nil, err
	}
	if err = p.define(kernel, s.buffer("A"), s.buffer("B"), s.buffer("C")); err != nil {
		return nil, err
	}
	if err = p.dispatchGroups(kernel, part.PhysicalLength); err != nil {
		return nil, err
	}
	out, err := runner.CopyArrayToHost[T](p.kr, s.buffer("C"), part.LogicalLength)
	if err != nil {
		return nil, err
	}
	p.log.Info("elementwise", "kernel", kernel, "elements", part.LogicalLength, "groups", part.GroupCount)
	return out, nil
}

// Add2D adds two width x height int32 matrices stored row-major. The
// work-group shape is left to the device.
func (p *Primitives) Add2D(a, b []int32, width, height int) ([]int32, error) {
	const op = "Add2D"
	if width <= 0 || height <= 0 {
		return nil, device.Errorf(device.KindConfiguration, op, "extent %dx%d is empty", width, height)
	}
	if len(a) != width*height || len(b) != width*height {
		return nil, device.Errorf(device.KindConfiguration, op,
			"operands have %d and %d elements, extent %dx%d needs %d", len(a), len(b), width, height, width*height)
	}
	s := p.begin(kernels.Add2D)
	defer s.release()
	if _, err := runner.CopyArrayToDevice(p.kr, s.buffer("A"), device.ReadOnly, a); err != nil {
		return nil, err
	}
	if _, err := runner.CopyArrayToDevice(p.kr, s.buffer("B"), device.ReadOnly, b); err != nil {
		return nil, err
	}
	if _, err := p.kr.Allocate(s.buffer("C"), device.WriteOnly, builder.INT32, len(a)); err != nil {
		return nil, err
	}
	if err := p.define(kernels.Add2D, s.buffer("A"), s.buffer("B"), s.buffer("C")); err != nil {
		return nil, err
	}
	if _, err := p.kr.Dispatch(kernels.Add2D, device.Extent{width, height}, nil); err != nil {
		return nil, err
	}
	return runner.CopyArrayToHost[int32](p.kr, s.buffer("C"), -1)
}

// ============================================================================
// Reductions
// ============================================================================

// ReduceOp selects a reduction
type ReduceOp int

const (
	Sum ReduceOp = iota
	Min
	Max
)

func (op ReduceOp) String() string {
	switch op {
	case Sum:
		return "sum"
	case Min:
		return "min"
	case Max:
		return "max"
	}
	return fmt.Sprintf("ReduceOp(%d)", int(op))
}

func (op ReduceOp) kernel() string {
	switch op {
	case Min:
		return kernels.ReduceMin
	case Max:
		return kernels.ReduceMax
	}
	return kernels.ReduceAdd
}

func (op ReduceOp) policy() planner.NeutralPolicy {
	switch op {
	case Min:
		return planner.MinPolicy
	case Max:
		return planner.MaxPolicy
	}
	return planner.SumPolicy
}

// Reduce combines data into one value. Each pass leaves one partial per
// work-group; passes repeat over the partials until a single group remains.
// An empty input yields the neutral element without any dispatch.
func (p *Primitives) Reduce(op ReduceOp, data []int32) (int32, error) {
	if op < Sum || op > Max {
		return 0, device.Errorf(device.KindConfiguration, "Reduce", "unknown reduction %v", op)
	}
	policy := op.policy()
	neutral, err := planner.PadValue[int32](policy)
	if err != nil {
		return 0, err
	}
	g := p.kr.WorkGroupSize
	part, err := planner.Plan(len(data), g, policy)
	if err != nil {
		return 0, err
	}
	if part.Empty() {
		return neutral, nil
	}

	s := p.begin("reduce_" + op.String())
	defer s.release()
	in := s.buffer("in")
	if err = uploadPadded(p, in, device.ReadOnly, data, part); err != nil {
		return 0, err
	}
	kernel := op.kernel()
	for pass := 0; ; pass++ {
		next, err := planner.Plan(part.GroupCount, g, policy)
		if err != nil {
			return 0, err
		}
		out := s.buffer(fmt.Sprintf("partial%d", pass))
		if _, err = p.kr.Allocate(out, device.ReadWrite, builder.INT32, next.PhysicalLength); err != nil {
			return 0, err
		}
		if next.Padding() > 0 {
			if _, err = p.kr.Fill(out, neutral, false); err != nil {
				return 0, err
			}
		}
		if err = p.define(kernel, in, out, runner.LocalSize(g)); err != nil {
			return 0, err
		}
		if err = p.dispatchGroups(kernel, part.PhysicalLength); err != nil {
			return 0, err
		}
		p.log.Debug("reduce pass", "op", op.String(), "pass", pass, "groups", part.GroupCount)
		if part.GroupCount == 1 {
			result, err := runner.CopyArrayToHost[int32](p.kr, out, 1)
			if err != nil {
				return 0, err
			}
			p.log.Info("reduce", "op", op.String(), "elements", len(data), "passes", pass+1, "result", result[0])
			return result[0], nil
		}
		in, part = out, next
	}
}

// ============================================================================
// Histograms
// ============================================================================

// HistogramKind selects the histogram kernel
type HistogramKind int

const (
	// Simple counts every element with a global atomic increment
	Simple HistogramKind = iota
	// Complex counts in local memory and merges once per work-group
	Complex
)

func (k HistogramKind) String() string {
	if k == Complex {
		return "complex"
	}
	return "simple"
}

// HistogramOptions describe the buckets: Bins equal-width buckets over the
// inclusive range [Min, Max]. Sentinel, when set, is the value written into
// padded slots; it must lie outside the range.
type HistogramOptions struct {
	Bins     int    `json:"bins"`
	Min      int32  `json:"min"`
	Max      int32  `json:"max"`
	Sentinel *int32 `json:"sentinel,omitempty"`
}

func (o HistogramOptions) policy() planner.NeutralPolicy {
	if o.Sentinel != nil {
		return planner.HistogramSentinel(float64(o.Min), float64(o.Max), float64(*o.Sentinel))
	}
	return planner.HistogramPolicy(float64(o.Min), float64(o.Max))
}

// Histogram counts the elements of data per bucket. Padded slots hold a
// value outside the range and are never counted.
func (p *Primitives) Histogram(kind HistogramKind, data []int32, opts HistogramOptions) ([]int32, error) {
	const op = "Histogram"
	if opts.Bins <= 0 || opts.Bins > math.MaxInt32 {
		return nil, device.Errorf(device.KindConfiguration, op, "nr_bins must be positive, got %d", opts.Bins)
	}
	if kind == Complex && opts.Bins > p.kr.MaxBins {
		return nil, device.Errorf(device.KindConfiguration, op,
			"nr_bins %d exceeds the local histogram size %d", opts.Bins, p.kr.MaxBins)
	}
	policy := opts.policy()
	part, err := planner.Plan(len(data), p.kr.WorkGroupSize, policy)
	if err != nil {
		return nil, err
	}
	if part.Empty() {
		return make([]int32, opts.Bins), nil
	}
	neutral, err := histogramNeutral(data, policy, part)
	if err != nil {
		return nil, err
	}

	s := p.begin("hist_" + kind.String())
	defer s.release()
	in, hist := s.buffer("in"), s.buffer("H")
	if err = uploadPadded(p, in, device.ReadOnly, data, part); err != nil {
		return nil, err
	}
	if _, err = p.kr.Allocate(hist, device.ReadWrite, builder.INT32, opts.Bins); err != nil {
		return nil, err
	}
	if _, err = p.kr.Fill(hist, int32(0), false); err != nil {
		return nil, err
	}

	kernel := kernels.HistSimple
	args := []interface{}{in, hist, int32(opts.Bins), neutral, opts.Min, opts.Max}
	if kind == Complex {
		kernel = kernels.HistComplex
		args = []interface{}{in, hist, int32(opts.Bins), opts.Min, opts.Max, runner.LocalSize(p.kr.MaxBins)}
	}
	if err = p.define(kernel, args...); err != nil {
		return nil, err
	}
	if err = p.dispatchGroups(kernel, part.PhysicalLength); err != nil {
		return nil, err
	}
	out, err := runner.CopyArrayToHost[int32](p.kr, hist, -1)
	if err != nil {
		return nil, err
	}
	p.log.Info("histogram", "kind", kind.String(), "elements", len(data), "bins", opts.Bins, "pad", neutral)
	return out, nil
}

// histogramNeutral is the value the simple kernel skips. Without padded
// slots no element needs it, so when no value outside the range is
// representable any value absent from data will do.
func histogramNeutral(data []int32, policy planner.NeutralPolicy, part planner.Partition) (int32, error) {
	v, err := planner.PadValue[int32](policy)
	if err == nil || part.Padding() > 0 {
		return v, err
	}
	return absentValue(data), nil
}

// absentValue returns the smallest int32 that does not occur in data
func absentValue(data []int32) int32 {
	sorted := slices.Clone(data)
	slices.Sort(sorted)
	candidate := int64(math.MinInt32)
	for _, v := range sorted {
		if int64(v) > candidate {
			break
		}
		if int64(v) == candidate {
			candidate++
		}
	}
	return int32(candidate)
}

// HistogramOfRange finds the range of data with a min and a max reduction
// and counts data into bins buckets over it
func (p *Primitives) HistogramOfRange(kind HistogramKind, data []int32, bins int) ([]int32, HistogramOptions, error) {
	opts := HistogramOptions{Bins: bins}
	if len(data) == 0 {
		return make([]int32, max(bins, 0)), opts, nil
	}
	var err error
	if opts.Min, err = p.Reduce(Min, data); err != nil {
		return nil, opts, err
	}
	if opts.Max, err = p.Reduce(Max, data); err != nil {
		return nil, opts, err
	}
	hist, err := p.Histogram(kind, data, opts)
	return hist, opts, err
}

// ============================================================================
// Inclusive scan
// ============================================================================

// ScanKind selects the per-group scan kernel
type ScanKind int

const (
	// HillisSteele is the double-buffered step-efficient scan
	HillisSteele ScanKind = iota
	// Blelloch is the work-efficient scan; the work-group size must be a power of two
	Blelloch
)

func (k ScanKind) String() string {
	if k == Blelloch {
		return "blelloch"
	}
	return "hillis-steele"
}

// Scan returns the inclusive prefix sums of data. Each work-group scans its
// own slice; across groups the group totals are scanned recursively and
// added back as carries.
func (p *Primitives) Scan(kind ScanKind, data []int32) ([]int32, error) {
	g := p.kr.WorkGroupSize
	if kind == Blelloch && g&(g-1) != 0 {
		return nil, device.Errorf(device.KindConfiguration, "Scan",
			"blelloch scan needs a power-of-two work-group size, got %d", g)
	}
	part, err := planner.Plan(len(data), g, planner.ScanPolicy)
	if err != nil {
		return nil, err
	}
	if part.Empty() {
		return []int32{}, nil
	}
	s := p.begin("scan_" + kind.String())
	defer s.release()
	if err = uploadPadded(p, s.buffer("in"), device.ReadOnly, data, part); err != nil {
		return nil, err
	}
	if _, err = p.kr.Allocate(s.buffer("out"), device.ReadWrite, builder.INT32, part.PhysicalLength); err != nil {
		return nil, err
	}
	levels, err := p.scanInto(s, kind, s.buffer("in"), s.buffer("out"), part, 0)
	if err != nil {
		return nil, err
	}
	out, err := runner.CopyArrayToHost[int32](p.kr, s.buffer("out"), part.LogicalLength)
	if err != nil {
		return nil, err
	}
	p.log.Info("scan", "kind", kind.String(), "elements", len(data), "groups", part.GroupCount, "levels", levels)
	return out, nil
}

// scanInto scans in into out and propagates carries across work-groups. It
// returns the number of scan levels used.
func (p *Primitives) scanInto(s scope, kind ScanKind, in, out string, part planner.Partition, level int) (int, error) {
	g := p.kr.WorkGroupSize
	if err := p.scanGroups(kind, in, out); err != nil {
		return 0, err
	}
	if err := p.dispatchGroups(scanKernel(kind), part.PhysicalLength); err != nil {
		return 0, err
	}
	if part.GroupCount == 1 {
		return level + 1, nil
	}

	next, err := planner.Plan(part.GroupCount, g, planner.ScanPolicy)
	if err != nil {
		return 0, err
	}
	totals := s.buffer(fmt.Sprintf("totals%d", level))
	carries := s.buffer(fmt.Sprintf("carries%d", level))
	for _, name := range []string{totals, carries} {
		if _, err = p.kr.Allocate(name, device.ReadWrite, builder.INT32, next.PhysicalLength); err != nil {
			return 0, err
		}
	}
	if next.Padding() > 0 {
		if _, err = p.kr.Fill(totals, int32(0), false); err != nil {
			return 0, err
		}
	}
	if err = p.define(kernels.ScanGroupTotals, out, totals); err != nil {
		return 0, err
	}
	if err = p.dispatchGroups(kernels.ScanGroupTotals, part.PhysicalLength); err != nil {
		return 0, err
	}
	levels, err := p.scanInto(s, kind, totals, carries, next, level+1)
	if err != nil {
		return 0, err
	}
	if err = p.define(kernels.ScanAddCarry, out, carries); err != nil {
		return 0, err
	}
	if err = p.dispatchGroups(kernels.ScanAddCarry, part.PhysicalLength); err != nil {
		return 0, err
	}
	return levels, nil
}

func scanKernel(kind ScanKind) string {
	if kind == Blelloch {
		return kernels.ScanBlelloch
	}
	return kernels.ScanAdd
}

func (p *Primitives) scanGroups(kind ScanKind, in, out string) error {
	g := runner.LocalSize(p.kr.WorkGroupSize)
	if kind == Blelloch {
		return p.define(kernels.ScanBlelloch, in, out, g)
	}
	return p.define(kernels.ScanAdd, in, out, g, g)
}
