package kernels

import (
	"strings"
	"testing"

	"github.com/notargets/gpuprims/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceDeclaresEveryDescriptor(t *testing.T) {
	src := Source()
	require.NotEmpty(t, src)

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			spec, err := Descriptor(name)
			require.NoError(t, err)
			assert.Contains(t, src, spec.GenerateKernelDeclaration()+" {",
				"source declaration of %s drifted from its descriptor", name)
		})
	}
}

func TestEntryPointsMatchDescriptors(t *testing.T) {
	entries := device.EntryPoints(Source())
	assert.ElementsMatch(t, Names(), entries)
	assert.Empty(t, device.CheckBalanced(Source()))
}

func TestDescriptorShapes(t *testing.T) {
	spec, err := Descriptor(Add2D)
	require.NoError(t, err)
	assert.Equal(t, 2, spec.Dims)
	assert.False(t, spec.HasLocal())

	for _, name := range []string{ReduceAdd, ReduceMin, ReduceMax, HistComplex, ScanAdd, ScanBlelloch} {
		spec, err := Descriptor(name)
		require.NoError(t, err)
		assert.True(t, spec.HasLocal(), name)
	}

	hist, err := Descriptor(HistSimple)
	require.NoError(t, err)
	require.Len(t, hist.Params, 6)
	assert.Equal(t, "neutral_element", hist.Params[3].Name)
	assert.True(t, strings.HasPrefix(hist.GenerateKernelSignature(), "const int *A"))

	_, err = Descriptor("reduce_add_3")
	assert.Error(t, err)
}
