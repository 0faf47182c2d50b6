package device

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtent(t *testing.T) {
	e := Extent{4, 3}
	assert.Equal(t, 2, e.Dims())
	assert.Equal(t, 12, e.Size())
	assert.Equal(t, 3, e.At(1))
	assert.Equal(t, 1, e.At(2))
	assert.Equal(t, "(4,3)", e.String())
	assert.Equal(t, 0, Extent{}.Size())
}

func TestValidateExtents(t *testing.T) {
	tests := []struct {
		name    string
		global  Extent
		local   Extent
		wantErr string
	}{
		{"1D runtime local", Extent{16}, nil, ""},
		{"1D exact", Extent{16}, Extent{4}, ""},
		{"3D exact", Extent{4, 4, 2}, Extent{2, 2, 1}, ""},
		{"no dims", Extent{}, nil, "1 to 3 dimensions"},
		{"four dims", Extent{1, 1, 1, 1}, nil, "1 to 3 dimensions"},
		{"negative", Extent{-4}, nil, "negative"},
		{"empty", Extent{0}, nil, "empty"},
		{"dim mismatch", Extent{16}, Extent{4, 1}, "has 2 dimensions"},
		{"zero local", Extent{16}, Extent{0}, "must be positive"},
		{"indivisible", Extent{10}, Extent{4}, "does not divide"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExtents(tt.global, tt.local)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAccessMode(t *testing.T) {
	assert.True(t, ReadOnly.CanRead())
	assert.False(t, ReadOnly.CanWrite())
	assert.False(t, WriteOnly.CanRead())
	assert.True(t, WriteOnly.CanWrite())
	assert.True(t, ReadWrite.CanRead() && ReadWrite.CanWrite())
	assert.Equal(t, "read-write", ReadWrite.String())
}

func TestErrorKinds(t *testing.T) {
	t.Run("Wrapped", func(t *testing.T) {
		base := Errorf(KindTransfer, "EnqueueRead", "range [0, 8) outside buffer of 4 bytes")
		wrapped := fmt.Errorf("download x: %w", base)
		kind, ok := KindOf(wrapped)
		require.True(t, ok)
		assert.Equal(t, KindTransfer, kind)
		assert.True(t, IsKind(wrapped, KindTransfer))
		assert.False(t, IsKind(wrapped, KindDispatch))
	})

	t.Run("Cause", func(t *testing.T) {
		cause := errors.New("boom")
		err := NewError(KindDispatch, "EnqueueKernel", "add", cause)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "dispatch error in EnqueueKernel: add: boom", err.Error())
	})

	t.Run("BuildDiagnostic", func(t *testing.T) {
		err := fmt.Errorf("build: %w", &BuildDiagnostic{Status: "BUILD_ERROR", Options: "-O3", Log: "line 3: error"})
		assert.True(t, IsKind(err, KindBuild))
		var bd *BuildDiagnostic
		require.ErrorAs(t, err, &bd)
		assert.Equal(t, "Build Status: BUILD_ERROR\nBuild Options:\t-O3\nBuild Log:\t line 3: error\n", bd.Report())
	})

	t.Run("Unclassified", func(t *testing.T) {
		_, ok := KindOf(errors.New("plain"))
		assert.False(t, ok)
		_, ok = KindOf(nil)
		assert.False(t, ok)
	})
}

func TestEntryPoints(t *testing.T) {
	src := `
@kernel void add(const int *A) {}
// @kernel void commented(int *A) {}
/* @kernel void blocked(int *A) {} */
@kernel  void  reduce_min (const int *A) {}
@kernel void add(const int *A) {}
`
	assert.Equal(t, []string{"add", "reduce_min"}, EntryPoints(src))
	assert.Empty(t, EntryPoints("int main() { return 0; }"))
}

func TestCheckBalanced(t *testing.T) {
	assert.Equal(t, "", CheckBalanced("@kernel void k(int *A) { if (A) { A[0] = 1; } }"))
	assert.Equal(t, "", CheckBalanced("void k() {} // }"))

	msg := CheckBalanced("void k() {\n}\n}")
	assert.Equal(t, "line 3: error: unexpected '}'", msg)

	msg = CheckBalanced("void k(\n}")
	assert.True(t, strings.HasPrefix(msg, "line 2: error: unexpected"), msg)

	msg = CheckBalanced("void k() {\n")
	assert.Equal(t, "line 2: error: expected '}' at end of input", msg)
}

func TestFormatPlatforms(t *testing.T) {
	out := FormatPlatforms([]Platform{{
		Index:  0,
		Name:   "Platform A",
		Vendor: "Acme",
		Devices: []Descriptor{
			{Index: 0, Name: "Device X", Description: "fast"},
			{Index: 1, Name: "Device Y"},
		},
	}})
	assert.Equal(t, "Platform 0, Platform A, Acme\n\tDevice 0, Device X, fast\n\tDevice 1, Device Y\n", out)
}
