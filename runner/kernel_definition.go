package runner

import (
	"fmt"

	"github.com/notargets/gpuprims/device"
	"github.com/notargets/gpuprims/runner/builder"
)

// KernelDefinition is a kernel descriptor together with its current
// positional argument bindings
type KernelDefinition struct {
	Spec     *builder.KernelSpec
	Bindings []*DeviceBinding // host bindings copied around each dispatch
	args     []device.Arg
	bound    []bool
}

// Name returns the kernel entry point name
func (def *KernelDefinition) Name() string {
	return def.Spec.Name
}

// Unbound returns the indices of parameters without an argument
func (def *KernelDefinition) Unbound() []int {
	var missing []int
	for i, ok := range def.bound {
		if !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// DefineKernel defines a one-dimensional kernel from its parameter list
func (kr *Runner) DefineKernel(kernelName string, params ...*builder.ParamBuilder) error {
	spec, err := builder.NewKernelSpec(kernelName, 1, params...)
	if err != nil {
		return device.NewError(device.KindConfiguration, "DefineKernel", kernelName, err)
	}
	return kr.DefineKernelSpec(spec)
}

// DefineKernelSpec defines a kernel from a descriptor. Parameters are bound
// automatically where possible: a buffer parameter with host data gets a
// binding and a buffer of its own name, a buffer parameter whose name matches
// an allocated buffer is bound to it, a scalar with a value is bound to the
// value, and a local parameter with a size gets that many elements of scratch.
func (kr *Runner) DefineKernelSpec(spec *builder.KernelSpec) error {
	const op = "DefineKernel"
	if spec == nil {
		return configError(op, "nil kernel descriptor")
	}
	def := &KernelDefinition{
		Spec:  spec,
		args:  make([]device.Arg, len(spec.Params)),
		bound: make([]bool, len(spec.Params)),
	}
	kr.kernelDefinitions[spec.Name] = def

	for i := range spec.Params {
		p := &spec.Params[i]
		switch {
		case p.Direction == builder.DirectionLocal:
			if p.Size > 0 {
				if err := kr.Bind(spec.Name, i, device.LocalArg(p.Size*p.DataType.Size())); err != nil {
					return err
				}
			}
		case p.Direction == builder.DirectionScalar:
			if p.HostBinding != nil {
				if err := kr.Bind(spec.Name, i, device.ScalarArg(p.HostBinding)); err != nil {
					return err
				}
			}
		default:
			if p.HostBinding != nil {
				if err := kr.bindHostParam(def, p); err != nil {
					return err
				}
			}
			if _, exists := kr.buffers[p.Name]; exists {
				if err := kr.BindBuffer(spec.Name, i, p.Name); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// bindHostParam registers the host binding of a buffer parameter and
// allocates its buffer on first use
func (kr *Runner) bindHostParam(def *KernelDefinition, p *builder.ParamSpec) error {
	binding, ok := kr.bindings[p.Name]
	if !ok {
		var err error
		if binding, err = bindingFromSpec(p); err != nil {
			return device.NewError(device.KindConfiguration, "DefineKernel",
				fmt.Sprintf("kernel %s", def.Name()), err)
		}
		kr.bindings[p.Name] = binding
	} else {
		binding.HostBinding = p.HostBinding
		if p.DoCopyTo {
			binding.Actions |= CopyTo
		}
		if p.DoCopyBack {
			binding.Actions |= CopyBack
		}
	}
	if _, exists := kr.buffers[p.Name]; !exists {
		if _, err := kr.Allocate(p.Name, binding.Access, binding.DataType, int(binding.Size)); err != nil {
			return err
		}
	}
	def.Bindings = append(def.Bindings, binding)
	return nil
}

// GetKernelDefinition returns a defined kernel
func (kr *Runner) GetKernelDefinition(kernelName string) (*KernelDefinition, error) {
	def, ok := kr.kernelDefinitions[kernelName]
	if !ok {
		return nil, configError("GetKernelDefinition", "kernel %s not defined - use DefineKernel first", kernelName)
	}
	return def, nil
}
