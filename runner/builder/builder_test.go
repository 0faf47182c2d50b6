package builder

import (
	"strings"
	"testing"
)

func TestNewBuilder(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		kb := NewBuilder(Config{WorkGroupSize: 64})
		if kb.FloatType != Float32 || kb.IntType != INT32 {
			t.Errorf("unexpected default types %v/%v", kb.FloatType, kb.IntType)
		}
		if kb.MaxBins != 256 {
			t.Errorf("expected MaxBins=256, got %d", kb.MaxBins)
		}
	})

	t.Run("ZeroWorkGroup", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic for zero work-group size")
			}
		}()
		NewBuilder(Config{})
	})
}

func TestGeneratePreamble(t *testing.T) {
	kb := NewBuilder(Config{WorkGroupSize: 32, MaxBins: 10, FloatType: Float64, IntType: INT64})
	kb.AddDefine("ZED", 3)
	kb.AddDefine("ALPHA", -1)
	preamble := kb.GeneratePreamble()

	for _, want := range []string{
		"typedef double real_t;",
		"typedef long int_t;",
		"#define WORK_GROUP_SIZE 32",
		"#define MAX_BINS 10",
	} {
		if !strings.Contains(preamble, want) {
			t.Errorf("preamble missing %q:\n%s", want, preamble)
		}
	}
	if strings.Index(preamble, "ALPHA") > strings.Index(preamble, "ZED") {
		t.Error("defines should be emitted in sorted order")
	}
	if kb.KernelPreamble != preamble {
		t.Error("preamble should be cached on the builder")
	}
}

func TestDataTypeOf(t *testing.T) {
	tests := []struct {
		v    interface{}
		want DataType
		ok   bool
	}{
		{int32(1), INT32, true},
		{[]int64{1}, INT64, true},
		{uint32(1), UINT32, true},
		{[]float32{}, Float32, true},
		{1.0, Float64, true},
		{1, 0, false},
		{[]int{1}, 0, false},
		{"x", 0, false},
	}
	for _, tt := range tests {
		got, ok := DataTypeOf(tt.v)
		if got != tt.want || ok != tt.ok {
			t.Errorf("DataTypeOf(%T) = %v, %v; want %v, %v", tt.v, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParamBuilder(t *testing.T) {
	host := []float32{1, 2, 3}
	p := Input("A").Bind(host).CopyTo()
	if p.Spec.DataType != Float32 || p.Spec.Size != 3 {
		t.Errorf("binding not inferred: %+v", p.Spec)
	}
	if !p.Spec.NeedsCopyTo() || p.Spec.NeedsCopyBack() {
		t.Error("unexpected copy flags")
	}
	if !p.Spec.Reads() || p.Spec.Writes() || !p.Spec.IsConst() {
		t.Error("input should be a const read-only buffer")
	}

	io := InOut("H").Type(INT32).Size(8).Copy()
	if !io.Spec.Reads() || !io.Spec.Writes() || io.Spec.IsConst() {
		t.Error("inout should be read and written")
	}
	if io.NoCopy(); io.Spec.DoCopyTo || io.Spec.DoCopyBack {
		t.Error("NoCopy should clear copy flags")
	}

	s := Scalar("n").Bind(int32(4))
	if s.Spec.Size != 1 || s.Spec.IsBuffer() {
		t.Errorf("unexpected scalar spec %+v", s.Spec)
	}
	if err := Local("tmp").Type(INT32).Bind([]int32{1}).Spec.Validate(); err == nil {
		t.Error("local with host binding should not validate")
	}
	if err := Output("C").Spec.Validate(); err == nil {
		t.Error("untyped parameter should not validate")
	}
}

func TestKernelSpec(t *testing.T) {
	spec, err := NewKernelSpec("hist", 1,
		Input("A").Type(INT32),
		InOut("H").Type(INT32),
		Scalar("nr_bins").Type(INT32),
		Local("local_hist").Type(INT32),
	)
	if err != nil {
		t.Fatal(err)
	}
	if !spec.HasLocal() {
		t.Error("spec declares a local parameter")
	}
	want := "@kernel void hist(\n\tconst int *A,\n\tint *H,\n\tconst int nr_bins,\n\tconst int globalSize0\n)"
	if got := spec.GenerateKernelDeclaration(); got != want {
		t.Errorf("declaration mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}

	spec2d := MustKernelSpec("add2d", 2, Input("A").Type(Float32))
	if !strings.HasSuffix(spec2d.GenerateKernelSignature(), "const int globalSize0,\n\tconst int globalSize1") {
		t.Errorf("2-D signature should end with both extents:\n%s", spec2d.GenerateKernelSignature())
	}

	bad := []struct {
		name   string
		kernel string
		dims   int
		params []*ParamBuilder
	}{
		{"empty name", "", 1, nil},
		{"zero dims", "k", 0, nil},
		{"four dims", "k", 4, nil},
		{"nil param", "k", 1, []*ParamBuilder{nil}},
		{"duplicate", "k", 1, []*ParamBuilder{Input("A").Type(INT32), Output("A").Type(INT32)}},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewKernelSpec(tt.kernel, tt.dims, tt.params...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
