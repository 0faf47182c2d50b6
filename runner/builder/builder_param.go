package builder

import (
	"fmt"
	"reflect"
)

// Direction indicates parameter data flow
type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
	DirectionInOut
	DirectionScalar
	DirectionLocal
)

func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	case DirectionInOut:
		return "inout"
	case DirectionScalar:
		return "scalar"
	case DirectionLocal:
		return "local"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParamBuilder provides a fluent interface for building kernel parameters
type ParamBuilder struct {
	Spec ParamSpec
}

// ParamSpec holds the complete specification for a kernel parameter
type ParamSpec struct {
	Name        string
	Direction   Direction
	HostBinding interface{}

	// Type and size (inferred or explicit)
	DataType DataType
	Size     int64

	// Data movement
	DoCopyTo   bool
	DoCopyBack bool
}

// Input creates a parameter specification for a read-only buffer
func Input(deviceName string) *ParamBuilder {
	return &ParamBuilder{
		Spec: ParamSpec{
			Name:      deviceName,
			Direction: DirectionInput,
		},
	}
}

// Output creates a parameter specification for a write-only buffer
func Output(deviceName string) *ParamBuilder {
	return &ParamBuilder{
		Spec: ParamSpec{
			Name:      deviceName,
			Direction: DirectionOutput,
		},
	}
}

// InOut creates a parameter specification for a read-write buffer
func InOut(deviceName string) *ParamBuilder {
	return &ParamBuilder{
		Spec: ParamSpec{
			Name:      deviceName,
			Direction: DirectionInOut,
		},
	}
}

// Scalar creates a parameter specification for a by-value argument
func Scalar(deviceName string) *ParamBuilder {
	return &ParamBuilder{
		Spec: ParamSpec{
			Name:      deviceName,
			Direction: DirectionScalar,
		},
	}
}

// Local creates a parameter specification for per-work-group scratch memory.
// The size is supplied at bind time, not at definition time.
func Local(deviceName string) *ParamBuilder {
	return &ParamBuilder{
		Spec: ParamSpec{
			Name:      deviceName,
			Direction: DirectionLocal,
		},
	}
}

// Bind associates a host variable with this parameter
func (p *ParamBuilder) Bind(hostVar interface{}) *ParamBuilder {
	p.Spec.HostBinding = hostVar
	p.inferFromBinding()
	return p
}

// Type sets the element type
func (p *ParamBuilder) Type(dataType DataType) *ParamBuilder {
	p.Spec.DataType = dataType
	return p
}

// Size sets an explicit element count
func (p *ParamBuilder) Size(elements int) *ParamBuilder {
	p.Spec.Size = int64(elements)
	return p
}

// Copy sets bidirectional copy (host→device before, device→host after)
func (p *ParamBuilder) Copy() *ParamBuilder {
	p.Spec.DoCopyTo = true
	p.Spec.DoCopyBack = true
	return p
}

// CopyTo sets host→device copy before kernel execution
func (p *ParamBuilder) CopyTo() *ParamBuilder {
	p.Spec.DoCopyTo = true
	return p
}

// CopyBack sets device→host copy after kernel execution
func (p *ParamBuilder) CopyBack() *ParamBuilder {
	p.Spec.DoCopyBack = true
	return p
}

// NoCopy explicitly disables data movement
func (p *ParamBuilder) NoCopy() *ParamBuilder {
	p.Spec.DoCopyTo = false
	p.Spec.DoCopyBack = false
	return p
}

// inferFromBinding extracts type and size information from the host binding
func (p *ParamBuilder) inferFromBinding() {
	if p.Spec.HostBinding == nil {
		return
	}
	if dt, ok := DataTypeOf(p.Spec.HostBinding); ok {
		p.Spec.DataType = dt
	}

	v := reflect.ValueOf(p.Spec.HostBinding)
	if v.Kind() == reflect.Slice {
		p.Spec.Size = int64(v.Len())
		return
	}
	p.Spec.Size = 1
}

// IsBuffer reports whether the parameter is backed by a device buffer
func (p *ParamSpec) IsBuffer() bool {
	switch p.Direction {
	case DirectionInput, DirectionOutput, DirectionInOut:
		return true
	}
	return false
}

// IsConst returns whether this parameter is const in the kernel signature
func (p *ParamSpec) IsConst() bool {
	switch p.Direction {
	case DirectionInput, DirectionScalar:
		return true
	default:
		return false
	}
}

// Reads reports whether the kernel reads the parameter's buffer
func (p *ParamSpec) Reads() bool {
	return p.Direction == DirectionInput || p.Direction == DirectionInOut
}

// Writes reports whether the kernel writes the parameter's buffer
func (p *ParamSpec) Writes() bool {
	return p.Direction == DirectionOutput || p.Direction == DirectionInOut
}

// Validate checks that the specification is usable as a kernel parameter declaration
func (p *ParamSpec) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("parameter name cannot be empty")
	}
	if p.DataType == 0 {
		return fmt.Errorf("%s parameter %s needs a type", p.Direction, p.Name)
	}
	if p.DataType.Size() == 0 {
		return fmt.Errorf("parameter %s has unsupported type %v", p.Name, p.DataType)
	}
	if p.Direction == DirectionLocal && (p.HostBinding != nil || p.DoCopyTo || p.DoCopyBack) {
		return fmt.Errorf("local parameter %s cannot have a host binding or copy operations", p.Name)
	}
	return nil
}

// ValidateBinding checks that the specification describes a host↔device binding
func (p *ParamSpec) ValidateBinding() error {
	if err := p.Validate(); err != nil {
		return err
	}
	switch p.Direction {
	case DirectionLocal:
		return fmt.Errorf("local parameter %s cannot be bound to host data", p.Name)
	case DirectionScalar:
		if p.HostBinding == nil {
			return fmt.Errorf("scalar %s needs a bound value", p.Name)
		}
		return nil
	}
	if p.Size <= 0 {
		return fmt.Errorf("array %s needs size", p.Name)
	}
	if p.HostBinding != nil {
		if dt, ok := DataTypeOf(p.HostBinding); !ok || dt != p.DataType {
			return fmt.Errorf("array %s binding %T does not match type %v", p.Name, p.HostBinding, p.DataType)
		}
	}
	return nil
}

// NeedsCopyTo returns whether this parameter needs host→device copy
func (p *ParamSpec) NeedsCopyTo() bool {
	return p.DoCopyTo && p.HostBinding != nil
}

// NeedsCopyBack returns whether this parameter needs device→host copy
func (p *ParamSpec) NeedsCopyBack() bool {
	return p.DoCopyBack && p.HostBinding != nil
}
