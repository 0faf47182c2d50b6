// File: runner/binding.go
// Host↔device bindings: DefineBindings declares them once, AllocateDevice
// creates their buffers, CopyToDevice/CopyFromDevice move the data.

package runner

import (
	"fmt"

	"github.com/notargets/gpuprims/device"
	"github.com/notargets/gpuprims/runner/builder"
)

// ActionFlags represents the memory operations to perform for a parameter
type ActionFlags int

const (
	// No action
	NoAction ActionFlags = 0
	// Copy from host to device before kernel execution
	CopyTo ActionFlags = 1 << iota
	// Copy from device to host after kernel execution
	CopyBack
	// Bidirectional copy (CopyTo | CopyBack)
	Copy = CopyTo | CopyBack
)

// DeviceBinding ties a host slice or scalar to a named device buffer
type DeviceBinding struct {
	Name        string
	HostBinding interface{}
	DataType    builder.DataType
	Size        int64 // elements
	IsScalar    bool
	Access      device.AccessMode
	Actions     ActionFlags
}

// NeedsCopyTo returns true if the binding is uploaded before dispatch
func (b *DeviceBinding) NeedsCopyTo() bool {
	return b.Actions&CopyTo != 0 && b.HostBinding != nil
}

// NeedsCopyBack returns true if the binding is downloaded after dispatch
func (b *DeviceBinding) NeedsCopyBack() bool {
	return b.Actions&CopyBack != 0 && b.HostBinding != nil
}

// DefineBindings establishes host↔device data relationships
func (kr *Runner) DefineBindings(params ...*builder.ParamBuilder) error {
	if kr.IsAllocated {
		return configError("DefineBindings", "bindings cannot be defined after AllocateDevice has been called")
	}
	for i, p := range params {
		if p == nil {
			return configError("DefineBindings", "parameter %d is nil", i)
		}
		binding, err := bindingFromSpec(&p.Spec)
		if err != nil {
			return device.NewError(device.KindConfiguration, "DefineBindings", fmt.Sprintf("parameter %d", i), err)
		}
		kr.bindings[binding.Name] = binding
	}
	return nil
}

func bindingFromSpec(spec *builder.ParamSpec) (*DeviceBinding, error) {
	if err := spec.ValidateBinding(); err != nil {
		return nil, err
	}
	binding := &DeviceBinding{
		Name:        spec.Name,
		HostBinding: spec.HostBinding,
		DataType:    spec.DataType,
		Size:        spec.Size,
		IsScalar:    spec.Direction == builder.DirectionScalar,
		Access:      accessFor(spec.Direction),
	}
	if spec.DoCopyTo {
		binding.Actions |= CopyTo
	}
	if spec.DoCopyBack {
		binding.Actions |= CopyBack
	}
	return binding, nil
}

// GetBinding returns the binding for a name, or nil
func (kr *Runner) GetBinding(name string) *DeviceBinding {
	return kr.bindings[name]
}

// AllocateDevice creates a buffer for every array binding not yet allocated
func (kr *Runner) AllocateDevice() error {
	for _, name := range sortedKeys(kr.bindings) {
		binding := kr.bindings[name]
		if binding.IsScalar {
			continue
		}
		if _, exists := kr.buffers[name]; exists {
			continue
		}
		if _, err := kr.Allocate(name, binding.Access, binding.DataType, int(binding.Size)); err != nil {
			return fmt.Errorf("failed to allocate binding %s: %w", name, err)
		}
	}
	kr.IsAllocated = true
	return nil
}

// CopyToDevice uploads the host data of the named bindings, blocking
func (kr *Runner) CopyToDevice(names ...string) error {
	for _, name := range names {
		binding, err := kr.arrayBinding("CopyToDevice", name)
		if err != nil {
			return err
		}
		if _, err = kr.Upload(name, binding.HostBinding, true); err != nil {
			return fmt.Errorf("failed to copy %s to device: %w", name, err)
		}
	}
	return nil
}

// CopyFromDevice downloads the named buffers into their host bindings, blocking
func (kr *Runner) CopyFromDevice(names ...string) error {
	for _, name := range names {
		binding, err := kr.arrayBinding("CopyFromDevice", name)
		if err != nil {
			return err
		}
		if _, err = kr.Download(name, binding.HostBinding, true); err != nil {
			return fmt.Errorf("failed to copy %s from device: %w", name, err)
		}
	}
	return nil
}

func (kr *Runner) arrayBinding(op, name string) (*DeviceBinding, error) {
	binding, ok := kr.bindings[name]
	switch {
	case !ok:
		return nil, configError(op, "no binding named %s - use DefineBindings first", name)
	case binding.IsScalar:
		return nil, configError(op, "%s is a scalar binding", name)
	case binding.HostBinding == nil:
		return nil, configError(op, "%s has no host data", name)
	}
	return binding, nil
}

// executeCopyActions runs the copies requested for each binding, in order
func (kr *Runner) executeCopyActions(bindings []*DeviceBinding, actions ActionFlags) error {
	for _, b := range bindings {
		if actions&CopyTo != 0 && b.NeedsCopyTo() {
			if err := kr.CopyToDevice(b.Name); err != nil {
				return err
			}
		}
		if actions&CopyBack != 0 && b.NeedsCopyBack() {
			if err := kr.CopyFromDevice(b.Name); err != nil {
				return err
			}
		}
	}
	return nil
}
