package software

import (
	"fmt"
	"unsafe"

	"github.com/notargets/gpuprims/device"
)

// Item identifies one work-item inside a work-group
type Item struct {
	Local    [3]int
	Global   [3]int
	LocalID  int // linear index within the work-group
	GlobalID int // linear index within the global extent
}

type boundArg struct {
	kind   device.ArgKind
	data   []byte
	scalar interface{}
}

// WorkGroup is the execution context of one work-group. Work-items run in
// phases: every call to Items runs the function for all items of the group
// and returns only when all of them have finished, which is the barrier.
type WorkGroup struct {
	Group      [3]int
	NumGroups  [3]int
	LocalSize  [3]int
	GlobalSize [3]int

	args []boundArg
}

// Size returns the number of work-items in the group
func (g *WorkGroup) Size() int {
	return g.LocalSize[0] * g.LocalSize[1] * g.LocalSize[2]
}

// GroupID returns the linear group index
func (g *WorkGroup) GroupID() int {
	return (g.Group[2]*g.NumGroups[1]+g.Group[1])*g.NumGroups[0] + g.Group[0]
}

// Items runs fn once per work-item, then acts as a barrier
func (g *WorkGroup) Items(fn func(it Item)) {
	var it Item
	lid := 0
	for z := 0; z < g.LocalSize[2]; z++ {
		for y := 0; y < g.LocalSize[1]; y++ {
			for x := 0; x < g.LocalSize[0]; x++ {
				it.Local = [3]int{x, y, z}
				it.Global = [3]int{
					g.Group[0]*g.LocalSize[0] + x,
					g.Group[1]*g.LocalSize[1] + y,
					g.Group[2]*g.LocalSize[2] + z,
				}
				it.LocalID = lid
				it.GlobalID = (it.Global[2]*g.GlobalSize[1]+it.Global[1])*g.GlobalSize[0] + it.Global[0]
				fn(it)
				lid++
			}
		}
	}
}

func (g *WorkGroup) arg(i int, kinds ...device.ArgKind) boundArg {
	if i < 0 || i >= len(g.args) {
		panic(fmt.Sprintf("argument %d out of range (%d arguments)", i, len(g.args)))
	}
	a := g.args[i]
	for _, k := range kinds {
		if a.kind == k {
			return a
		}
	}
	panic(fmt.Sprintf("argument %d is a %s, expected %v", i, a.kind, kinds))
}

// Int32s views a buffer or local argument as int32 elements
func (g *WorkGroup) Int32s(i int) []int32 {
	data := g.arg(i, device.ArgBuffer, device.ArgLocal).data
	if len(data) < 4 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&data[0])), len(data)/4)
}

// Float32s views a buffer or local argument as float32 elements
func (g *WorkGroup) Float32s(i int) []float32 {
	data := g.arg(i, device.ArgBuffer, device.ArgLocal).data
	if len(data) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), len(data)/4)
}

// Local32 views a local argument as int32 and checks it holds at least n elements
func (g *WorkGroup) Local32(i, n int) []int32 {
	s := g.Int32s(i)
	if len(s) < n {
		panic(fmt.Sprintf("local argument %d holds %d elements, work-group needs %d", i, len(s), n))
	}
	return s
}

// Int32 returns a scalar argument
func (g *WorkGroup) Int32(i int) int32 {
	v, ok := g.arg(i, device.ArgScalar).scalar.(int32)
	if !ok {
		panic(fmt.Sprintf("scalar argument %d is %T, expected int32", i, g.args[i].scalar))
	}
	return v
}

// Float32 returns a scalar argument
func (g *WorkGroup) Float32(i int) float32 {
	v, ok := g.arg(i, device.ArgScalar).scalar.(float32)
	if !ok {
		panic(fmt.Sprintf("scalar argument %d is %T, expected float32", i, g.args[i].scalar))
	}
	return v
}

// alignedBytes returns a zeroed byte slice backed by 8-byte aligned storage
func alignedBytes(n int64) []byte {
	if n <= 0 {
		return nil
	}
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), n)
}
