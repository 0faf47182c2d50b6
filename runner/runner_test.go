package runner

import (
	"errors"
	"strings"
	"testing"

	"github.com/notargets/gpuprims/device"
	"github.com/notargets/gpuprims/kernels"
	"github.com/notargets/gpuprims/runner/builder"
	"github.com/notargets/gpuprims/utils"
)

// newTestRunner opens a software session and builds the shipped kernels
func newTestRunner(t *testing.T, workGroupSize int) *Runner {
	t.Helper()
	session := utils.CreateTestSession()
	kr := NewRunner(session, builder.Config{WorkGroupSize: workGroupSize, MaxBins: 64})
	if err := kr.BuildProgram(kernels.Source(), ""); err != nil {
		t.Fatalf("BuildProgram: %v", err)
	}
	t.Cleanup(func() {
		kr.Free()
		session.Free()
	})
	return kr
}

func TestRunner_Creation(t *testing.T) {
	t.Run("NilSession", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("Expected panic for nil session")
			}
		}()
		NewRunner(nil, builder.Config{WorkGroupSize: 4})
	})

	t.Run("ZeroWorkGroupSize", func(t *testing.T) {
		session := utils.CreateTestSession()
		defer session.Free()
		defer func() {
			if r := recover(); r == nil {
				t.Error("Expected panic for zero work-group size")
			}
		}()
		NewRunner(session, builder.Config{})
	})

	t.Run("Defaults", func(t *testing.T) {
		kr := newTestRunner(t, 8)
		if kr.WorkGroupSize != 8 {
			t.Errorf("Expected WorkGroupSize=8, got %d", kr.WorkGroupSize)
		}
		if kr.MaxBins != 64 {
			t.Errorf("Expected MaxBins=64, got %d", kr.MaxBins)
		}
		if kr.IntType != builder.INT32 || kr.FloatType != builder.Float32 {
			t.Errorf("Unexpected default types %v/%v", kr.IntType, kr.FloatType)
		}
		if kr.Logger() == nil {
			t.Error("Runner should always have a logger")
		}
	})
}

func TestRunner_BuildProgram(t *testing.T) {
	t.Run("Twice", func(t *testing.T) {
		kr := newTestRunner(t, 4)
		err := kr.BuildProgram(kernels.Source(), "")
		if !device.IsKind(err, device.KindConfiguration) {
			t.Errorf("Expected configuration error for a second build, got %v", err)
		}
	})

	t.Run("Diagnostic", func(t *testing.T) {
		session := utils.CreateTestSession()
		defer session.Free()
		kr := NewRunner(session, builder.Config{WorkGroupSize: 4})
		err := kr.BuildProgram("@kernel void add(const int_t *A) {", "-DFOO")
		if !device.IsKind(err, device.KindBuild) {
			t.Fatalf("Expected build error, got %v", err)
		}
		var bd *device.BuildDiagnostic
		if !errors.As(err, &bd) {
			t.Fatalf("Expected a BuildDiagnostic in %v", err)
		}
		if bd.Options != "-DFOO" {
			t.Errorf("Expected options to be reported, got %q", bd.Options)
		}
		if kr.Program != nil {
			t.Error("Program should stay nil after a failed build")
		}
	})

	t.Run("Preamble", func(t *testing.T) {
		kr := newTestRunner(t, 16)
		for _, want := range []string{"#define WORK_GROUP_SIZE 16", "#define MAX_BINS 64", "typedef int int_t;"} {
			if !strings.Contains(kr.KernelPreamble, want) {
				t.Errorf("Preamble missing %q:\n%s", want, kr.KernelPreamble)
			}
		}
	})
}

func TestRunner_Free(t *testing.T) {
	session := utils.CreateTestSession()
	defer session.Free()
	kr := NewRunner(session, builder.Config{WorkGroupSize: 4})
	if _, err := kr.Allocate("x", device.ReadWrite, builder.INT32, 4); err != nil {
		t.Fatal(err)
	}
	kr.Free()
	if len(kr.GetAllocatedBuffers()) != 0 {
		t.Error("Free should release every buffer")
	}
	if _, err := kr.Allocate("x", device.ReadWrite, builder.INT32, 4); err != nil {
		t.Errorf("Name should be reusable after Free: %v", err)
	}
}
