package runner

import (
	"testing"

	"github.com/notargets/gpuprims/device"
	"github.com/notargets/gpuprims/kernels"
	"github.com/notargets/gpuprims/runner/builder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocate(t *testing.T) {
	kr := newTestRunner(t, 4)

	buf, err := kr.Allocate("A", device.ReadOnly, builder.INT32, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(40), buf.Bytes())
	assert.Equal(t, int64(40), buf.Memory.Size())

	_, err = kr.Allocate("B", device.WriteOnly, builder.Float64, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, kr.GetAllocatedBuffers())

	cases := []struct {
		name     string
		buffer   string
		dt       builder.DataType
		elements int
	}{
		{"duplicate", "A", builder.INT32, 4},
		{"empty name", "", builder.INT32, 4},
		{"zero elements", "C", builder.INT32, 0},
		{"negative elements", "C", builder.INT32, -1},
		{"bad type", "C", builder.DataType(99), 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := kr.Allocate(tc.buffer, device.ReadWrite, tc.dt, tc.elements)
			assert.True(t, device.IsKind(err, device.KindConfiguration), "got %v", err)
		})
	}

	_, err = kr.GetBuffer("missing")
	assert.True(t, device.IsKind(err, device.KindConfiguration))
}

func TestUploadDownload(t *testing.T) {
	kr := newTestRunner(t, 4)
	_, err := kr.Allocate("X", device.ReadWrite, builder.INT32, 8)
	require.NoError(t, err)

	t.Run("RoundTrip", func(t *testing.T) {
		in := []int32{1, 2, 3, 4, 5, 6, 7, 8}
		_, err := kr.Upload("X", in, true)
		require.NoError(t, err)
		out := make([]int32, 8)
		_, err = kr.Download("X", out, true)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("DownloadIsIdempotent", func(t *testing.T) {
		first, second := make([]int32, 8), make([]int32, 8)
		_, err := kr.Download("X", first, true)
		require.NoError(t, err)
		_, err = kr.Download("X", second, true)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("Prefix", func(t *testing.T) {
		_, err := kr.Upload("X", []int32{-1, -2}, true)
		require.NoError(t, err)
		out := make([]int32, 3)
		_, err = kr.Download("X", out, true)
		require.NoError(t, err)
		assert.Equal(t, []int32{-1, -2, 3}, out)
	})

	t.Run("CapacityExceeded", func(t *testing.T) {
		_, err := kr.Upload("X", make([]int32, 9), true)
		require.Error(t, err)
		assert.True(t, device.IsKind(err, device.KindConfiguration))
		assert.Contains(t, err.Error(), "capacity exceeded")
	})

	t.Run("TypeMismatch", func(t *testing.T) {
		_, err := kr.Upload("X", make([]float32, 4), true)
		assert.True(t, device.IsKind(err, device.KindConfiguration), "got %v", err)
		_, err = kr.Download("X", make([]int64, 4), true)
		assert.True(t, device.IsKind(err, device.KindConfiguration), "got %v", err)
		_, err = kr.Upload("X", []int{1, 2}, true)
		assert.True(t, device.IsKind(err, device.KindConfiguration), "got %v", err)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := kr.Upload("X", []int32{}, true)
		assert.True(t, device.IsKind(err, device.KindConfiguration), "got %v", err)
	})

	t.Run("UnknownBuffer", func(t *testing.T) {
		_, err := kr.Download("nope", make([]int32, 1), true)
		assert.True(t, device.IsKind(err, device.KindConfiguration), "got %v", err)
	})
}

func TestNonBlockingTransfers(t *testing.T) {
	kr := newTestRunner(t, 4)
	_, err := kr.Allocate("X", device.ReadWrite, builder.INT32, 1024)
	require.NoError(t, err)

	in := make([]int32, 1024)
	for i := range in {
		in[i] = int32(i * 3)
	}
	up, err := kr.Upload("X", in, false)
	require.NoError(t, err)

	out := make([]int32, 1024)
	down, err := kr.Download("X", out, false)
	require.NoError(t, err)
	require.NoError(t, kr.Wait(up, down, nil))
	assert.True(t, up.Done())
	assert.Equal(t, in, out)
	assert.Empty(t, kr.pending)
}

func TestFill(t *testing.T) {
	kr := newTestRunner(t, 4)
	_, err := kr.Allocate("I", device.ReadWrite, builder.INT32, 5)
	require.NoError(t, err)
	_, err = kr.Allocate("F", device.ReadWrite, builder.Float64, 3)
	require.NoError(t, err)
	_, err = kr.Allocate("U", device.ReadWrite, builder.UINT32, 2)
	require.NoError(t, err)

	_, err = kr.Fill("I", -7, true)
	require.NoError(t, err)
	ints := make([]int32, 5)
	_, err = kr.Download("I", ints, true)
	require.NoError(t, err)
	assert.Equal(t, []int32{-7, -7, -7, -7, -7}, ints)

	_, err = kr.Fill("F", 2.5, false)
	require.NoError(t, err)
	floats := make([]float64, 3)
	_, err = kr.Download("F", floats, true)
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5, 2.5, 2.5}, floats)

	for _, bad := range []struct {
		buffer string
		value  interface{}
	}{
		{"I", 1.5},
		{"I", int64(1) << 40},
		{"U", -1},
		{"I", "seven"},
	} {
		_, err = kr.Fill(bad.buffer, bad.value, true)
		assert.True(t, device.IsKind(err, device.KindConfiguration), "fill %s with %v: got %v", bad.buffer, bad.value, err)
	}
}

func TestRelease(t *testing.T) {
	kr := newTestRunner(t, 4)
	const n = 8
	for _, name := range []string{"A", "B"} {
		_, err := kr.Allocate(name, device.ReadOnly, builder.INT32, n)
		require.NoError(t, err)
	}
	_, err := kr.Allocate("C", device.WriteOnly, builder.INT32, n)
	require.NoError(t, err)
	_, err = kr.Fill("A", int32(1), false)
	require.NoError(t, err)
	_, err = kr.Fill("B", int32(2), false)
	require.NoError(t, err)
	defineShipped(t, kr, kernels.Add)
	_, err = kr.Dispatch(kernels.Add, device.Extent{n}, nil)
	require.NoError(t, err)

	t.Run("FreesAndForgets", func(t *testing.T) {
		require.NoError(t, kr.Release("A", "C"))
		assert.Equal(t, []string{"B"}, kr.GetAllocatedBuffers())
		_, err := kr.GetBuffer("A")
		assert.True(t, device.IsKind(err, device.KindConfiguration))
	})

	t.Run("UnbindsKernelArguments", func(t *testing.T) {
		def, err := kr.GetKernelDefinition(kernels.Add)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 2}, def.Unbound())
		_, err = kr.Dispatch(kernels.Add, device.Extent{n}, nil)
		assert.True(t, device.IsKind(err, device.KindConfiguration), "got %v", err)
	})

	t.Run("NameCanBeReused", func(t *testing.T) {
		_, err := kr.Allocate("A", device.ReadOnly, builder.INT32, 2*n)
		require.NoError(t, err)
		assert.Equal(t, []string{"B", "A"}, kr.GetAllocatedBuffers())
	})

	t.Run("UnknownName", func(t *testing.T) {
		err := kr.Release("B", "missing")
		assert.True(t, device.IsKind(err, device.KindConfiguration))
		assert.Equal(t, []string{"B", "A"}, kr.GetAllocatedBuffers(), "nothing is released on error")
	})

	t.Run("Nothing", func(t *testing.T) {
		assert.NoError(t, kr.Release())
	})
}
