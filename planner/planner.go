// Package planner computes the padded geometry of a one-dimensional input:
// the physical length rounded up to a multiple of the work-group size, the
// number of work-groups and the neutral element written into padded slots.
package planner

import (
	"fmt"
	"math"

	"github.com/notargets/gpuprims/device"
)

// Class names the algorithm family a neutral element is chosen for
type Class int

const (
	ClassSum Class = iota
	ClassScan
	ClassMin
	ClassMax
	ClassHistogram
)

func (c Class) String() string {
	switch c {
	case ClassSum:
		return "sum"
	case ClassScan:
		return "scan"
	case ClassMin:
		return "min"
	case ClassMax:
		return "max"
	case ClassHistogram:
		return "histogram"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// NeutralPolicy selects the pad value for one algorithm class
type NeutralPolicy struct {
	Class Class

	// Histogram range, inclusive
	Min, Max float64

	// Explicit histogram sentinel, used instead of the derived one when set
	Sentinel    float64
	HasSentinel bool
}

var (
	SumPolicy  = NeutralPolicy{Class: ClassSum}
	ScanPolicy = NeutralPolicy{Class: ClassScan}
	MinPolicy  = NeutralPolicy{Class: ClassMin}
	MaxPolicy  = NeutralPolicy{Class: ClassMax}
)

// HistogramPolicy pads with a value just outside [min, max]
func HistogramPolicy(min, max float64) NeutralPolicy {
	return NeutralPolicy{Class: ClassHistogram, Min: min, Max: max}
}

// HistogramSentinel pads with an explicit out-of-range value
func HistogramSentinel(min, max, sentinel float64) NeutralPolicy {
	return NeutralPolicy{Class: ClassHistogram, Min: min, Max: max, Sentinel: sentinel, HasSentinel: true}
}

func (p NeutralPolicy) validate() error {
	if p.Class != ClassHistogram {
		return nil
	}
	if p.Min > p.Max {
		return fmt.Errorf("histogram range [%v, %v] is empty", p.Min, p.Max)
	}
	if p.HasSentinel && p.Sentinel >= p.Min && p.Sentinel <= p.Max {
		return fmt.Errorf("histogram sentinel %v lies inside [%v, %v]", p.Sentinel, p.Min, p.Max)
	}
	return nil
}

// Partition is the geometry of one padded input
type Partition struct {
	LogicalLength  int
	PhysicalLength int
	GroupCount     int
	WorkGroupSize  int
	Policy         NeutralPolicy
}

// Empty reports a zero-length input; callers skip the dispatch
func (p Partition) Empty() bool {
	return p.PhysicalLength == 0
}

// Padding returns the number of padded slots
func (p Partition) Padding() int {
	return p.PhysicalLength - p.LogicalLength
}

// Plan rounds logicalLength up to a multiple of workGroupSize
func Plan(logicalLength, workGroupSize int, policy NeutralPolicy) (Partition, error) {
	if workGroupSize <= 0 {
		return Partition{}, device.Errorf(device.KindConfiguration, "Plan",
			"work-group size must be positive, got %d", workGroupSize)
	}
	if logicalLength < 0 {
		return Partition{}, device.Errorf(device.KindConfiguration, "Plan",
			"logical length must not be negative, got %d", logicalLength)
	}
	if err := policy.validate(); err != nil {
		return Partition{}, device.NewError(device.KindConfiguration, "Plan", policy.Class.String(), err)
	}

	physical := logicalLength
	if rem := logicalLength % workGroupSize; rem != 0 {
		physical += workGroupSize - rem
	}
	return Partition{
		LogicalLength:  logicalLength,
		PhysicalLength: physical,
		GroupCount:     physical / workGroupSize,
		WorkGroupSize:  workGroupSize,
		Policy:         policy,
	}, nil
}

// Element is a fixed-width numeric element type a device buffer can hold
type Element interface {
	int32 | int64 | uint32 | float32 | float64
}

// PadValue returns the neutral element of policy for element type T
func PadValue[T Element](policy NeutralPolicy) (T, error) {
	lowest, highest := bounds[T]()
	lo, hi := float64(lowest), float64(highest)
	switch policy.Class {
	case ClassSum, ClassScan:
		return 0, nil
	case ClassMin:
		return highest, nil
	case ClassMax:
		return lowest, nil
	case ClassHistogram:
		if err := policy.validate(); err != nil {
			return 0, device.NewError(device.KindConfiguration, "PadValue", "histogram", err)
		}
		if policy.HasSentinel {
			if policy.Sentinel < lo || policy.Sentinel > hi {
				return 0, device.Errorf(device.KindConfiguration, "PadValue",
					"histogram sentinel %v is not representable", policy.Sentinel)
			}
			v := T(policy.Sentinel)
			if f := float64(v); f >= policy.Min && f <= policy.Max {
				return 0, device.Errorf(device.KindConfiguration, "PadValue",
					"histogram sentinel %v converts to %v inside [%v, %v]", policy.Sentinel, v, policy.Min, policy.Max)
			}
			return v, nil
		}
		if below := policy.Min - 1; below >= lo && below < policy.Min {
			return T(below), nil
		}
		if above := policy.Max + 1; above <= hi && above > policy.Max {
			return T(above), nil
		}
		return 0, device.Errorf(device.KindConfiguration, "PadValue",
			"no representable value outside [%v, %v]", policy.Min, policy.Max)
	}
	return 0, device.Errorf(device.KindConfiguration, "PadValue", "unknown algorithm class %v", policy.Class)
}

// bounds returns the smallest and largest representable values of T
func bounds[T Element]() (lo, hi T) {
	switch any(lo).(type) {
	case int32:
		return any(int32(math.MinInt32)).(T), any(int32(math.MaxInt32)).(T)
	case int64:
		return any(int64(math.MinInt64)).(T), any(int64(math.MaxInt64)).(T)
	case uint32:
		return any(uint32(0)).(T), any(uint32(math.MaxUint32)).(T)
	case float32:
		return any(float32(-math.MaxFloat32)).(T), any(float32(math.MaxFloat32)).(T)
	default:
		return any(-math.MaxFloat64).(T), any(math.MaxFloat64).(T)
	}
}

// Pad returns a copy of data extended to the partition's physical length,
// with every padded slot holding the policy's neutral element. The neutral
// element is only required when there are padded slots.
func Pad[T Element](data []T, part Partition) ([]T, error) {
	if len(data) != part.LogicalLength {
		return nil, device.Errorf(device.KindConfiguration, "Pad",
			"input has %d elements, partition was planned for %d", len(data), part.LogicalLength)
	}
	out := make([]T, part.PhysicalLength)
	copy(out, data)
	if part.Padding() == 0 {
		return out, nil
	}
	pad, err := PadValue[T](part.Policy)
	if err != nil {
		return nil, err
	}
	for i := part.LogicalLength; i < part.PhysicalLength; i++ {
		out[i] = pad
	}
	return out, nil
}
