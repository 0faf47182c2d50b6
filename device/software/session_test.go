package software

import (
	"strings"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/notargets/gpuprims/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int32Bytes(v []int32) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4)
}

func openSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Free)
	return s
}

func TestOpen(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		s := openSession(t, Config{})
		info := s.Info()
		assert.Equal(t, BackendName, info.Backend)
		assert.Equal(t, DefaultMaxGroup, info.MaxWorkGroupSize)
		assert.True(t, info.Profiling)
		assert.NotEmpty(t, s.ID())
	})

	t.Run("UniqueIDs", func(t *testing.T) {
		a, b := openSession(t, Config{}), openSession(t, Config{})
		assert.NotEqual(t, a.ID(), b.ID())
	})

	t.Run("BadIndices", func(t *testing.T) {
		_, err := Open(Config{PlatformIndex: 1})
		assert.True(t, device.IsKind(err, device.KindDevice), "got %v", err)
		_, err = Open(Config{DeviceIndex: 3})
		assert.True(t, device.IsKind(err, device.KindDevice), "got %v", err)
	})
}

func TestTransfers(t *testing.T) {
	s := openSession(t, Config{})

	mem, err := s.Malloc(16, device.ReadWrite)
	require.NoError(t, err)
	assert.Equal(t, int64(16), mem.Size())

	t.Run("RoundTrip", func(t *testing.T) {
		in := []int32{1, 2, 3, 4}
		_, err := s.EnqueueWrite(mem, 0, int32Bytes(in), true)
		require.NoError(t, err)
		out := make([]int32, 4)
		_, err = s.EnqueueRead(mem, 0, int32Bytes(out), true)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("Offset", func(t *testing.T) {
		_, err := s.EnqueueWrite(mem, 8, int32Bytes([]int32{9}), true)
		require.NoError(t, err)
		out := make([]int32, 1)
		_, err = s.EnqueueRead(mem, 8, int32Bytes(out), true)
		require.NoError(t, err)
		assert.Equal(t, int32(9), out[0])
	})

	t.Run("OutOfRange", func(t *testing.T) {
		_, err := s.EnqueueWrite(mem, 8, make([]byte, 12), true)
		assert.True(t, device.IsKind(err, device.KindTransfer), "got %v", err)
		_, err = s.EnqueueRead(mem, -4, make([]byte, 4), true)
		assert.True(t, device.IsKind(err, device.KindTransfer), "got %v", err)
	})

	t.Run("Fill", func(t *testing.T) {
		_, err := s.EnqueueFill(mem, int32Bytes([]int32{-5}), true)
		require.NoError(t, err)
		out := make([]int32, 4)
		_, err = s.EnqueueRead(mem, 0, int32Bytes(out), true)
		require.NoError(t, err)
		assert.Equal(t, []int32{-5, -5, -5, -5}, out)

		_, err = s.EnqueueFill(mem, make([]byte, 3), true)
		assert.True(t, device.IsKind(err, device.KindConfiguration), "got %v", err)
	})

	t.Run("BadSize", func(t *testing.T) {
		_, err := s.Malloc(0, device.ReadOnly)
		assert.True(t, device.IsKind(err, device.KindConfiguration))
	})

	t.Run("Freed", func(t *testing.T) {
		m, err := s.Malloc(4, device.ReadOnly)
		require.NoError(t, err)
		m.Free()
		_, err = s.EnqueueWrite(m, 0, make([]byte, 4), true)
		assert.True(t, device.IsKind(err, device.KindTransfer), "got %v", err)
	})
}

func TestBuild(t *testing.T) {
	s := openSession(t, Config{})

	t.Run("Unbalanced", func(t *testing.T) {
		_, err := s.Build("@kernel void add(const int *A) {\n", device.BuildOptions{Flags: "-O3"})
		var bd *device.BuildDiagnostic
		require.ErrorAs(t, err, &bd)
		assert.Equal(t, "BUILD_ERROR", bd.Status)
		assert.Equal(t, "-O3", bd.Options)
		assert.Contains(t, bd.Log, "expected '}'")
		assert.True(t, strings.HasPrefix(bd.Report(), "Build Status: BUILD_ERROR\n"))
	})

	t.Run("NoEntryPoints", func(t *testing.T) {
		_, err := s.Build("int x;", device.BuildOptions{})
		assert.True(t, device.IsKind(err, device.KindBuild))
	})

	t.Run("UnknownKernel", func(t *testing.T) {
		_, err := s.Build("@kernel void nope(int *A) {}", device.BuildOptions{})
		var bd *device.BuildDiagnostic
		require.ErrorAs(t, err, &bd)
		assert.Contains(t, bd.Log, "nope")
	})

	t.Run("Registered", func(t *testing.T) {
		require.NoError(t, s.Register(&KernelImpl{
			Name:   "negate",
			Dims:   1,
			Params: []device.ArgKind{device.ArgBuffer},
			Run: func(g *WorkGroup) {
				a := g.Int32s(0)
				g.Items(func(it Item) { a[it.GlobalID] = -a[it.GlobalID] })
			},
		}))
		prog, err := s.Build("@kernel void negate(int *A) {}", device.BuildOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"negate"}, prog.Names())
		_, err = prog.Kernel("missing")
		assert.True(t, device.IsKind(err, device.KindConfiguration))

		mem, err := s.Malloc(8, device.ReadWrite)
		require.NoError(t, err)
		_, err = s.EnqueueWrite(mem, 0, int32Bytes([]int32{4, -2}), true)
		require.NoError(t, err)
		k, err := prog.Kernel("negate")
		require.NoError(t, err)
		_, err = s.EnqueueKernel(k, []device.Arg{device.BufferArg(mem)}, device.Extent{2}, nil)
		require.NoError(t, err)
		out := make([]int32, 2)
		_, err = s.EnqueueRead(mem, 0, int32Bytes(out), true)
		require.NoError(t, err)
		assert.Equal(t, []int32{-4, 2}, out)
	})

	t.Run("RegisterInvalid", func(t *testing.T) {
		assert.Error(t, s.Register(nil))
		assert.Error(t, s.Register(&KernelImpl{Name: "x", Dims: 4, Run: func(*WorkGroup) {}}))
	})
}

func TestEnqueueKernelValidation(t *testing.T) {
	h := newHarness(t, 4)
	a, b, c := h.zeros(8), h.zeros(8), h.zeros(8)
	add, err := h.prog.Kernel("add")
	require.NoError(t, err)
	reduce, err := h.prog.Kernel("reduce_add")
	require.NoError(t, err)

	cases := []struct {
		name   string
		kernel device.Kernel
		args   []device.Arg
		global device.Extent
		local  device.Extent
	}{
		{"indivisible local", add, bufs(a, b, c), device.Extent{8}, device.Extent{3}},
		{"wrong dims", add, bufs(a, b, c), device.Extent{2, 4}, nil},
		{"too few args", add, bufs(a, b), device.Extent{8}, nil},
		{"scalar for buffer", add, []device.Arg{device.BufferArg(a), device.ScalarArg(int32(1)), device.BufferArg(c)}, device.Extent{8}, nil},
		{"local needs explicit extent", reduce, append(bufs(a, c), device.LocalArg(16)), device.Extent{8}, nil},
		{"empty local", reduce, append(bufs(a, c), device.LocalArg(0)), device.Extent{8}, device.Extent{4}},
		{"empty global", add, bufs(a, b, c), device.Extent{0}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.s.EnqueueKernel(tc.kernel, tc.args, tc.global, tc.local)
			require.Error(t, err)
			assert.True(t, device.IsKind(err, device.KindConfiguration), "got %v", err)
		})
	}

	t.Run("exceeds device limit", func(t *testing.T) {
		s := openSession(t, Config{MaxWorkGroupSize: 2})
		prog, err := s.Build("@kernel void add(int *A, int *B, int *C) {}", device.BuildOptions{})
		require.NoError(t, err)
		k, err := prog.Kernel("add")
		require.NoError(t, err)
		m, err := s.Malloc(32, device.ReadWrite)
		require.NoError(t, err)
		_, err = s.EnqueueKernel(k, bufs(m, m, m), device.Extent{8}, device.Extent{4})
		assert.True(t, device.IsKind(err, device.KindConfiguration), "got %v", err)
	})
}

func TestChooseLocal(t *testing.T) {
	s := openSession(t, Config{MaxWorkGroupSize: 8})
	assert.Equal(t, device.Extent{8}, s.chooseLocal(device.Extent{64}))
	assert.Equal(t, device.Extent{5}, s.chooseLocal(device.Extent{10}))
	assert.Equal(t, device.Extent{7, 1}, s.chooseLocal(device.Extent{7, 3}))
}

func TestQueueOrderAndProfiling(t *testing.T) {
	s := openSession(t, Config{})
	require.NoError(t, s.Register(&KernelImpl{
		Name:   "step",
		Dims:   1,
		Params: []device.ArgKind{device.ArgBuffer, device.ArgScalar},
		Run: func(g *WorkGroup) {
			a := g.Int32s(0)
			want := g.Int32(1)
			g.Items(func(it Item) {
				if a[it.GlobalID] != want {
					panic("out of order")
				}
				a[it.GlobalID]++
			})
		},
	}))
	prog, err := s.Build("@kernel void step(int *A, const int n) {}", device.BuildOptions{})
	require.NoError(t, err)
	k, err := prog.Kernel("step")
	require.NoError(t, err)
	mem, err := s.Malloc(64*4, device.ReadWrite)
	require.NoError(t, err)

	var events []device.Event
	for i := 0; i < 20; i++ {
		ev, err := s.EnqueueKernel(k, []device.Arg{device.BufferArg(mem), device.ScalarArg(int32(i))}, device.Extent{64}, nil)
		require.NoError(t, err)
		events = append(events, ev)
	}
	require.NoError(t, s.Finish())

	var prevEnd uint64
	for i, ev := range events {
		assert.True(t, ev.Done())
		ts, err := ev.Profile()
		require.NoError(t, err)
		assert.True(t, ts.Queued <= ts.Submitted && ts.Submitted <= ts.Started && ts.Started <= ts.Ended, "event %d: %+v", i, ts)
		assert.GreaterOrEqual(t, ts.Started, prevEnd, "event %d started before its predecessor ended", i)
		prevEnd = ts.Ended
	}
	out := make([]int32, 64)
	_, err = s.EnqueueRead(mem, 0, int32Bytes(out), true)
	require.NoError(t, err)
	assert.Equal(t, int32(20), out[63])
}

func TestProfilingDisabled(t *testing.T) {
	s := openSession(t, Config{DisableProfiling: true})
	assert.False(t, s.Info().Profiling)
	mem, err := s.Malloc(4, device.ReadWrite)
	require.NoError(t, err)
	ev, err := s.EnqueueWrite(mem, 0, make([]byte, 4), true)
	require.NoError(t, err)
	_, err = ev.Profile()
	assert.ErrorIs(t, err, device.ErrProfilingUnavailable)
}

func TestEveryWorkGroupRuns(t *testing.T) {
	s := openSession(t, Config{Workers: 4})
	var groups atomic.Int32
	require.NoError(t, s.Register(&KernelImpl{
		Name:   "count",
		Dims:   1,
		Params: []device.ArgKind{device.ArgBuffer},
		Run:    func(g *WorkGroup) { groups.Add(1) },
	}))
	prog, err := s.Build("@kernel void count(int *A) {}", device.BuildOptions{})
	require.NoError(t, err)
	k, _ := prog.Kernel("count")
	mem, _ := s.Malloc(4, device.ReadWrite)
	ev, err := s.EnqueueKernel(k, []device.Arg{device.BufferArg(mem)}, device.Extent{64}, device.Extent{4})
	require.NoError(t, err)
	require.NoError(t, ev.Wait())
	assert.Equal(t, int32(16), groups.Load())
}

func TestFinishReportsAsyncFailureOnce(t *testing.T) {
	s := openSession(t, Config{})
	require.NoError(t, s.Register(&KernelImpl{
		Name:   "fault",
		Dims:   1,
		Params: []device.ArgKind{device.ArgBuffer},
		Run:    func(g *WorkGroup) { panic("device fault") },
	}))
	prog, err := s.Build("@kernel void fault(int *A) {}", device.BuildOptions{})
	require.NoError(t, err)
	k, _ := prog.Kernel("fault")
	mem, _ := s.Malloc(4, device.ReadWrite)
	_, err = s.EnqueueKernel(k, []device.Arg{device.BufferArg(mem)}, device.Extent{1}, nil)
	require.NoError(t, err)

	err = s.Finish()
	require.Error(t, err)
	assert.True(t, device.IsKind(err, device.KindDispatch))
	assert.Contains(t, err.Error(), "device fault")
	assert.NoError(t, s.Finish())
}

func TestLister(t *testing.T) {
	platforms, err := Lister{}.Platforms()
	require.NoError(t, err)
	require.Len(t, platforms, 1)
	require.Len(t, platforms[0].Devices, 1)
	assert.Equal(t, PlatformName, platforms[0].Name)
	assert.Contains(t, platforms[0].Devices[0].Description, "workers")
	assert.Contains(t, device.FormatPlatforms(platforms), "Device 0, "+DeviceName)
}
