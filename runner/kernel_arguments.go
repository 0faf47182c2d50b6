package runner

import (
	"fmt"

	"github.com/notargets/gpuprims/device"
	"github.com/notargets/gpuprims/runner/builder"
)

// Bind sets argument index of a kernel. The argument is checked against the
// kernel descriptor: its kind, the scalar type, the buffer element type and
// the buffer access mode must all fit the declared parameter.
func (kr *Runner) Bind(kernelName string, index int, arg device.Arg) error {
	const op = "Bind"
	def, err := kr.GetKernelDefinition(kernelName)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(def.Spec.Params) {
		return configError(op, "kernel %s has %d parameters, index %d is out of range",
			kernelName, len(def.Spec.Params), index)
	}
	p := &def.Spec.Params[index]
	if err = kr.checkArg(p, arg); err != nil {
		return device.NewError(device.KindConfiguration, op,
			fmt.Sprintf("kernel %s parameter %d (%s)", kernelName, index, p.Name), err)
	}
	def.args[index] = arg
	def.bound[index] = true
	return nil
}

func (kr *Runner) checkArg(p *builder.ParamSpec, arg device.Arg) error {
	switch p.Direction {
	case builder.DirectionLocal:
		if arg.Kind != device.ArgLocal {
			return fmt.Errorf("expected a local size, got a %s", arg.Kind)
		}
		if arg.LocalBytes <= 0 || arg.LocalBytes%p.DataType.Size() != 0 {
			return fmt.Errorf("local size of %d bytes is not a positive multiple of %v", arg.LocalBytes, p.DataType)
		}
	case builder.DirectionScalar:
		if arg.Kind != device.ArgScalar {
			return fmt.Errorf("expected a scalar, got a %s", arg.Kind)
		}
		dt, ok := builder.DataTypeOf(arg.Scalar)
		if !ok || dt != p.DataType {
			return fmt.Errorf("expected a %v scalar, got %T", p.DataType, arg.Scalar)
		}
	default:
		if arg.Kind != device.ArgBuffer {
			return fmt.Errorf("expected a buffer, got a %s", arg.Kind)
		}
		buf, ok := kr.byMemory[arg.Memory]
		if !ok || arg.Memory == nil {
			return fmt.Errorf("memory was not allocated by this runner")
		}
		if buf.DataType != p.DataType {
			return fmt.Errorf("buffer %s holds %v, parameter expects %v", buf.Name, buf.DataType, p.DataType)
		}
		if p.Writes() && !buf.Access.CanWrite() {
			return fmt.Errorf("%s parameter cannot bind %s buffer %s", p.Direction, buf.Access, buf.Name)
		}
		if p.Reads() && !buf.Access.CanRead() {
			return fmt.Errorf("%s parameter cannot bind %s buffer %s", p.Direction, buf.Access, buf.Name)
		}
	}
	return nil
}

// BindBuffer binds an allocated buffer by name
func (kr *Runner) BindBuffer(kernelName string, index int, bufferName string) error {
	buf, err := kr.GetBuffer(bufferName)
	if err != nil {
		return err
	}
	return kr.Bind(kernelName, index, device.BufferArg(buf.Memory))
}

// BindScalar binds a by-value argument
func (kr *Runner) BindScalar(kernelName string, index int, value interface{}) error {
	return kr.Bind(kernelName, index, device.ScalarArg(value))
}

// BindLocal binds per-work-group scratch of elements of the parameter's type
func (kr *Runner) BindLocal(kernelName string, index int, elements int) error {
	def, err := kr.GetKernelDefinition(kernelName)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(def.Spec.Params) {
		return configError("BindLocal", "kernel %s has %d parameters, index %d is out of range",
			kernelName, len(def.Spec.Params), index)
	}
	size := def.Spec.Params[index].DataType.Size()
	return kr.Bind(kernelName, index, device.LocalArg(int64(elements)*size))
}

// SetArgs binds every parameter of a kernel in order. A string names a
// buffer, a LocalSize requests scratch elements, a device.Arg is bound as is
// and anything else is a scalar. The count must match the descriptor.
func (kr *Runner) SetArgs(kernelName string, values ...interface{}) error {
	def, err := kr.GetKernelDefinition(kernelName)
	if err != nil {
		return err
	}
	if len(values) != len(def.Spec.Params) {
		return configError("SetArgs", "kernel %s takes %d arguments, got %d",
			kernelName, len(def.Spec.Params), len(values))
	}
	for i, v := range values {
		switch x := v.(type) {
		case string:
			err = kr.BindBuffer(kernelName, i, x)
		case LocalSize:
			err = kr.BindLocal(kernelName, i, int(x))
		case device.Arg:
			err = kr.Bind(kernelName, i, x)
		default:
			err = kr.BindScalar(kernelName, i, x)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// DebugKernelArguments prints the argument list of a kernel
func (kr *Runner) DebugKernelArguments(kernelName string) {
	def, err := kr.GetKernelDefinition(kernelName)
	if err != nil {
		fmt.Printf("%v\n", err)
		return
	}
	fmt.Printf("\n=== Kernel Arguments for %s ===\n", kernelName)
	for i, p := range def.Spec.Params {
		fmt.Printf("  [%d] %-16s %-7s %-8v ", i, p.Name, p.Direction, p.DataType)
		if !def.bound[i] {
			fmt.Printf("UNBOUND\n")
			continue
		}
		arg := def.args[i]
		switch arg.Kind {
		case device.ArgBuffer:
			buf := kr.byMemory[arg.Memory]
			fmt.Printf("buffer %s (%d elements, %s)\n", buf.Name, buf.Elements, buf.Access)
		case device.ArgScalar:
			fmt.Printf("scalar %v\n", arg.Scalar)
		case device.ArgLocal:
			fmt.Printf("local %d bytes\n", arg.LocalBytes)
		}
	}
	fmt.Printf("=================================\n")
}
