package software

import (
	"fmt"
	"sync/atomic"

	"github.com/notargets/gpuprims/device"
)

// KernelFunc is the body of one work-group
type KernelFunc func(g *WorkGroup)

// KernelImpl is a Go implementation of a named entry point
type KernelImpl struct {
	Name   string
	Dims   int
	Params []device.ArgKind
	Run    KernelFunc
}

var (
	buf    = device.ArgBuffer
	scalar = device.ArgScalar
	local  = device.ArgLocal
)

// builtinKernels returns the implementations of every entry point shipped in
// kernels/primitives.okl, keyed by name.
func builtinKernels() map[string]*KernelImpl {
	impls := []*KernelImpl{
		{Name: "add", Dims: 1, Params: []device.ArgKind{buf, buf, buf}, Run: elementwise(func(a, b int32) int32 { return a + b })},
		{Name: "mul", Dims: 1, Params: []device.ArgKind{buf, buf, buf}, Run: elementwise(func(a, b int32) int32 { return a * b })},
		{Name: "multadd", Dims: 1, Params: []device.ArgKind{buf, buf, buf}, Run: elementwise(func(a, b int32) int32 { return a*b + b })},
		{Name: "addf", Dims: 1, Params: []device.ArgKind{buf, buf, buf}, Run: addf},
		{Name: "add2d", Dims: 2, Params: []device.ArgKind{buf, buf, buf}, Run: elementwise(func(a, b int32) int32 { return a + b })},

		{Name: "reduce_add", Dims: 1, Params: []device.ArgKind{buf, buf, local}, Run: reduce(func(a, b int32) int32 { return a + b })},
		{Name: "reduce_min", Dims: 1, Params: []device.ArgKind{buf, buf, local}, Run: reduce(min32)},
		{Name: "reduce_max", Dims: 1, Params: []device.ArgKind{buf, buf, local}, Run: reduce(max32)},

		{Name: "hist_simple", Dims: 1, Params: []device.ArgKind{buf, buf, scalar, scalar, scalar, scalar}, Run: histSimple},
		{Name: "hist_complex", Dims: 1, Params: []device.ArgKind{buf, buf, scalar, scalar, scalar, local}, Run: histComplex},

		{Name: "scan_add", Dims: 1, Params: []device.ArgKind{buf, buf, local, local}, Run: scanHillisSteele},
		{Name: "scan_add_blelloch", Dims: 1, Params: []device.ArgKind{buf, buf, local}, Run: scanBlelloch},
		{Name: "scan_group_totals", Dims: 1, Params: []device.ArgKind{buf, buf}, Run: scanGroupTotals},
		{Name: "scan_add_carry", Dims: 1, Params: []device.ArgKind{buf, buf}, Run: scanAddCarry},
	}
	registry := make(map[string]*KernelImpl, len(impls))
	for _, k := range impls {
		registry[k.Name] = k
	}
	return registry
}

// elementwise applies op to A and B into C; for 2-D extents the global
// linear index is row-major over (width, height).
func elementwise(op func(a, b int32) int32) KernelFunc {
	return func(g *WorkGroup) {
		a, b, c := g.Int32s(0), g.Int32s(1), g.Int32s(2)
		g.Items(func(it Item) {
			id := it.GlobalID
			c[id] = op(a[id], b[id])
		})
	}
}

func addf(g *WorkGroup) {
	a, b, c := g.Float32s(0), g.Float32s(1), g.Float32s(2)
	g.Items(func(it Item) {
		id := it.GlobalID
		c[id] = a[id] + b[id]
	})
}

// reduce is the tree reduction in local memory. Each group writes its partial
// result to B[group].
func reduce(combine func(a, b int32) int32) KernelFunc {
	return func(g *WorkGroup) {
		n := g.Size()
		a, b, scratch := g.Int32s(0), g.Int32s(1), g.Local32(2, n)
		group := g.GroupID()

		g.Items(func(it Item) {
			scratch[it.LocalID] = a[it.GlobalID]
		})
		for stride := 1; stride < n; stride *= 2 {
			g.Items(func(it Item) {
				lid := it.LocalID
				if lid%(2*stride) == 0 && lid+stride < n {
					scratch[lid] = combine(scratch[lid], scratch[lid+stride])
				}
			})
		}
		g.Items(func(it Item) {
			if it.LocalID == 0 {
				b[group] = scratch[0]
			}
		})
	}
}

// BinOf maps v to one of bins equal-width buckets over the inclusive range
// [lo, hi]. Values outside the range belong to no bucket.
func BinOf(v, lo, hi int32, bins int) (int, bool) {
	if bins <= 0 || v < lo || v > hi {
		return 0, false
	}
	span := int64(hi) - int64(lo) + 1
	return int((int64(v) - int64(lo)) * int64(bins) / span), true
}

// histSimple: A, H, nr_bins, neutral_element, min_value, max_value
func histSimple(g *WorkGroup) {
	a, h := g.Int32s(0), g.Int32s(1)
	bins, neutral, lo, hi := int(g.Int32(2)), g.Int32(3), g.Int32(4), g.Int32(5)
	checkBins(len(h), bins)
	g.Items(func(it Item) {
		v := a[it.GlobalID]
		if v == neutral {
			return
		}
		if bin, ok := BinOf(v, lo, hi, bins); ok {
			atomic.AddInt32(&h[bin], 1)
		}
	})
}

// histComplex: A, H, nr_bins, min_value, max_value, local histogram
func histComplex(g *WorkGroup) {
	a, h := g.Int32s(0), g.Int32s(1)
	bins, lo, hi := int(g.Int32(2)), g.Int32(3), g.Int32(4)
	checkBins(len(h), bins)
	hist := g.Local32(5, bins)
	n := g.Size()

	g.Items(func(it Item) {
		for b := it.LocalID; b < bins; b += n {
			hist[b] = 0
		}
	})
	g.Items(func(it Item) {
		if bin, ok := BinOf(a[it.GlobalID], lo, hi, bins); ok {
			atomic.AddInt32(&hist[bin], 1)
		}
	})
	g.Items(func(it Item) {
		for b := it.LocalID; b < bins; b += n {
			if hist[b] != 0 {
				atomic.AddInt32(&h[b], hist[b])
			}
		}
	})
}

func checkBins(capacity, bins int) {
	if bins <= 0 || bins > capacity {
		panic(fmt.Sprintf("nr_bins %d does not fit an output of %d bins", bins, capacity))
	}
}

// scanHillisSteele is the double-buffered inclusive scan of one work-group
func scanHillisSteele(g *WorkGroup) {
	n := g.Size()
	a, b := g.Int32s(0), g.Int32s(1)
	cur, next := g.Local32(2, n), g.Local32(3, n)

	g.Items(func(it Item) {
		cur[it.LocalID] = a[it.GlobalID]
	})
	for stride := 1; stride < n; stride *= 2 {
		src, dst := cur, next
		g.Items(func(it Item) {
			lid := it.LocalID
			if lid >= stride {
				dst[lid] = src[lid] + src[lid-stride]
			} else {
				dst[lid] = src[lid]
			}
		})
		cur, next = next, cur
	}
	g.Items(func(it Item) {
		b[it.GlobalID] = cur[it.LocalID]
	})
}

// scanBlelloch is the work-efficient up-sweep/down-sweep scan. It produces
// the exclusive scan in local memory and adds the input back for the
// inclusive result. The work-group size must be a power of two.
func scanBlelloch(g *WorkGroup) {
	n := g.Size()
	if n&(n-1) != 0 {
		panic(fmt.Sprintf("work-group size %d is not a power of two", n))
	}
	a, b := g.Int32s(0), g.Int32s(1)
	t := g.Local32(2, n)

	g.Items(func(it Item) {
		t[it.LocalID] = a[it.GlobalID]
	})
	for stride := 1; stride < n; stride *= 2 {
		g.Items(func(it Item) {
			lid := it.LocalID
			if (lid+1)%(2*stride) == 0 {
				t[lid] += t[lid-stride]
			}
		})
	}
	g.Items(func(it Item) {
		if it.LocalID == n-1 {
			t[it.LocalID] = 0
		}
	})
	for stride := n / 2; stride > 0; stride /= 2 {
		g.Items(func(it Item) {
			lid := it.LocalID
			if (lid+1)%(2*stride) == 0 {
				left := t[lid-stride]
				t[lid-stride] = t[lid]
				t[lid] += left
			}
		})
	}
	g.Items(func(it Item) {
		b[it.GlobalID] = t[it.LocalID] + a[it.GlobalID]
	})
}

// scanGroupTotals: B, T. The last item of each group publishes the group's
// inclusive total.
func scanGroupTotals(g *WorkGroup) {
	b, totals := g.Int32s(0), g.Int32s(1)
	n := g.Size()
	group := g.GroupID()
	g.Items(func(it Item) {
		if it.LocalID == n-1 {
			totals[group] = b[it.GlobalID]
		}
	})
}

// scanAddCarry: B, T where T is the inclusive scan of the group totals
func scanAddCarry(g *WorkGroup) {
	b, totals := g.Int32s(0), g.Int32s(1)
	group := g.GroupID()
	if group == 0 {
		return
	}
	carry := totals[group-1]
	g.Items(func(it Item) {
		b[it.GlobalID] += carry
	})
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
