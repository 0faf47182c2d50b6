package primitives

import (
	"fmt"
	"sort"
	"strings"

	"github.com/notargets/gpuprims/device"
)

// Algorithm names accepted by Run
const (
	AlgAdd              = "add"
	AlgMul              = "mul"
	AlgMultAdd          = "multadd"
	AlgAddF             = "addf"
	AlgAdd2D            = "add2d"
	AlgReduceSum        = "reduce-sum"
	AlgReduceMin        = "reduce-min"
	AlgReduceMax        = "reduce-max"
	AlgHistogramSimple  = "histogram-simple"
	AlgHistogramComplex = "histogram-complex"
	AlgHistogramRange   = "histogram-range"
	AlgScan             = "scan"
	AlgScanBlelloch     = "scan-blelloch"
)

// Options parameterise Run
type Options struct {
	Histogram HistogramOptions
	// Width of the 2-D extent for add2d; the height follows from the input length
	Width int
}

// Report is the outcome of one Run
type Report struct {
	Algorithm  string            `json:"algorithm"`
	Elements   int               `json:"elements"`
	Scalar     *int32            `json:"scalar,omitempty"`
	Vector     []int32           `json:"vector,omitempty"`
	Floats     []float32         `json:"floats,omitempty"`
	Histogram  *HistogramOptions `json:"histogram,omitempty"`
	Dispatches []Dispatch        `json:"dispatches"`
	ElapsedNs  uint64            `json:"elapsed_ns"`
}

// Dispatch is the timing of one kernel launch
type Dispatch struct {
	Kernel    string `json:"kernel"`
	ElapsedNs uint64 `json:"elapsed_ns"`
	Timed     bool   `json:"timed"`
}

type algorithm func(p *Primitives, a, b []int32, opts Options, r *Report) error

var algorithms = map[string]algorithm{
	AlgAdd:     vectorOp(AlgAdd),
	AlgMul:     vectorOp(AlgMul),
	AlgMultAdd: vectorOp(AlgMultAdd),
	AlgAddF: func(p *Primitives, a, b []int32, _ Options, r *Report) error {
		fa, fb := toFloat32(a), toFloat32(b)
		out, err := p.AddF(fa, fb)
		r.Floats = out
		return err
	},
	AlgAdd2D: func(p *Primitives, a, b []int32, opts Options, r *Report) error {
		width := opts.Width
		if width <= 0 {
			width = len(a)
		}
		if width == 0 || len(a)%width != 0 {
			return device.Errorf(device.KindConfiguration, AlgAdd2D,
				"%d elements do not form rows of width %d", len(a), width)
		}
		out, err := p.Add2D(a, b, width, len(a)/width)
		r.Vector = out
		return err
	},
	AlgReduceSum: reduceOp(Sum),
	AlgReduceMin: reduceOp(Min),
	AlgReduceMax: reduceOp(Max),
	AlgHistogramSimple: func(p *Primitives, a, _ []int32, opts Options, r *Report) error {
		out, err := p.Histogram(Simple, a, opts.Histogram)
		r.Vector, r.Histogram = out, &opts.Histogram
		return err
	},
	AlgHistogramComplex: func(p *Primitives, a, _ []int32, opts Options, r *Report) error {
		out, err := p.Histogram(Complex, a, opts.Histogram)
		r.Vector, r.Histogram = out, &opts.Histogram
		return err
	},
	AlgHistogramRange: func(p *Primitives, a, _ []int32, opts Options, r *Report) error {
		out, used, err := p.HistogramOfRange(Complex, a, opts.Histogram.Bins)
		r.Vector, r.Histogram = out, &used
		return err
	},
	AlgScan: func(p *Primitives, a, _ []int32, _ Options, r *Report) error {
		out, err := p.Scan(HillisSteele, a)
		r.Vector = out
		return err
	},
	AlgScanBlelloch: func(p *Primitives, a, _ []int32, _ Options, r *Report) error {
		out, err := p.Scan(Blelloch, a)
		r.Vector = out
		return err
	},
}

func vectorOp(kernel string) algorithm {
	return func(p *Primitives, a, b []int32, _ Options, r *Report) error {
		out, err := p.Elementwise(kernel, a, b)
		r.Vector = out
		return err
	}
}

func reduceOp(op ReduceOp) algorithm {
	return func(p *Primitives, a, _ []int32, _ Options, r *Report) error {
		v, err := p.Reduce(op, a)
		r.Scalar = &v
		return err
	}
}

func toFloat32(v []int32) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// Algorithms returns the names accepted by Run, sorted
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Binary reports whether an algorithm takes a second operand
func Binary(name string) bool {
	switch name {
	case AlgAdd, AlgMul, AlgMultAdd, AlgAddF, AlgAdd2D:
		return true
	}
	return false
}

// Run executes a named algorithm. b is only read by binary algorithms.
func (p *Primitives) Run(name string, a, b []int32, opts Options) (*Report, error) {
	alg, ok := algorithms[name]
	if !ok {
		return nil, device.Errorf(device.KindConfiguration, "Run",
			"unknown algorithm %q (available: %s)", name, strings.Join(Algorithms(), ", "))
	}
	first := len(p.kr.Profile.Samples)
	r := &Report{Algorithm: name, Elements: len(a)}
	if err := alg(p, a, b, opts, r); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	rec := p.kr.Profile
	for i := first; i < len(rec.Samples); i++ {
		r.Dispatches = append(r.Dispatches, Dispatch{
			Kernel:    rec.Names[i],
			ElapsedNs: rec.Samples[i].Elapsed(),
			Timed:     rec.Samples[i].Available,
		})
		r.ElapsedNs += rec.Samples[i].Elapsed()
	}
	return r, nil
}
