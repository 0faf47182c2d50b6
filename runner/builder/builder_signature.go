package builder

import (
	"fmt"
	"strings"
)

// KernelSpec is the typed descriptor of one kernel entry point: its name,
// the dimensionality of its global extent and its ordered parameter list.
type KernelSpec struct {
	Name   string
	Dims   int
	Params []ParamSpec
}

// NewKernelSpec builds and validates a kernel descriptor
func NewKernelSpec(name string, dims int, params ...*ParamBuilder) (*KernelSpec, error) {
	if name == "" {
		return nil, fmt.Errorf("kernel name cannot be empty")
	}
	if dims < 1 || dims > 3 {
		return nil, fmt.Errorf("kernel %s: dimensionality must be 1, 2 or 3, got %d", name, dims)
	}
	spec := &KernelSpec{
		Name:   name,
		Dims:   dims,
		Params: make([]ParamSpec, len(params)),
	}
	seen := make(map[string]bool, len(params))
	for i, p := range params {
		if p == nil {
			return nil, fmt.Errorf("kernel %s: parameter %d is nil", name, i)
		}
		spec.Params[i] = p.Spec
		if err := spec.Params[i].Validate(); err != nil {
			return nil, fmt.Errorf("kernel %s: parameter %d: %w", name, i, err)
		}
		if seen[p.Spec.Name] {
			return nil, fmt.Errorf("kernel %s: duplicate parameter %s", name, p.Spec.Name)
		}
		seen[p.Spec.Name] = true
	}
	return spec, nil
}

// MustKernelSpec is NewKernelSpec for static descriptor tables
func MustKernelSpec(name string, dims int, params ...*ParamBuilder) *KernelSpec {
	spec, err := NewKernelSpec(name, dims, params...)
	if err != nil {
		panic(err)
	}
	return spec
}

// HasLocal reports whether the kernel declares per-work-group scratch memory
func (ks *KernelSpec) HasLocal() bool {
	for _, p := range ks.Params {
		if p.Direction == DirectionLocal {
			return true
		}
	}
	return false
}

// GenerateKernelSignature generates the OKL parameter list. Local parameters
// are not part of the OKL signature, they become @shared arrays sized by the
// preamble. The global extent is appended as trailing int arguments.
func (ks *KernelSpec) GenerateKernelSignature() string {
	params := make([]string, 0, len(ks.Params)+ks.Dims)
	for _, p := range ks.Params {
		switch p.Direction {
		case DirectionLocal:
			continue
		case DirectionScalar:
			params = append(params, fmt.Sprintf("const %s %s", p.DataType.CType(), p.Name))
		default:
			constStr := ""
			if p.IsConst() {
				constStr = "const "
			}
			params = append(params, fmt.Sprintf("%s%s *%s", constStr, p.DataType.CType(), p.Name))
		}
	}
	for d := 0; d < ks.Dims; d++ {
		params = append(params, fmt.Sprintf("const int globalSize%d", d))
	}
	return strings.Join(params, ",\n\t")
}

// GenerateKernelDeclaration generates a complete kernel function declaration
func (ks *KernelSpec) GenerateKernelDeclaration() string {
	return fmt.Sprintf("@kernel void %s(\n\t%s\n)",
		ks.Name,
		ks.GenerateKernelSignature())
}
