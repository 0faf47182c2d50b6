// File: runner/types.go
package runner

import (
	"fmt"
	"math"
	"sort"
	"unsafe"

	"github.com/notargets/gpuprims/device"
	"github.com/notargets/gpuprims/runner/builder"
)

// hostBytes views a host slice as raw bytes without copying
func hostBytes(host interface{}) (builder.DataType, []byte, error) {
	switch v := host.(type) {
	case []int32:
		return builder.INT32, sliceBytes(v), nil
	case []int64:
		return builder.INT64, sliceBytes(v), nil
	case []uint32:
		return builder.UINT32, sliceBytes(v), nil
	case []float32:
		return builder.Float32, sliceBytes(v), nil
	case []float64:
		return builder.Float64, sliceBytes(v), nil
	}
	return 0, nil, fmt.Errorf("unsupported host type %T", host)
}

func sliceBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(s[0])))
}

// patternOf encodes one element of type dt holding value
func patternOf(dt builder.DataType, value interface{}) ([]byte, error) {
	f, ok := toFloat(value)
	if !ok {
		return nil, fmt.Errorf("fill value %v (%T) is not numeric", value, value)
	}
	switch dt {
	case builder.INT32:
		if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
			return nil, fmt.Errorf("fill value %v does not fit %v", value, dt)
		}
		return sliceBytes([]int32{int32(f)}), nil
	case builder.UINT32:
		if f != math.Trunc(f) || f < 0 || f > math.MaxUint32 {
			return nil, fmt.Errorf("fill value %v does not fit %v", value, dt)
		}
		return sliceBytes([]uint32{uint32(f)}), nil
	case builder.INT64:
		if i, ok := value.(int64); ok {
			return sliceBytes([]int64{i}), nil
		}
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, fmt.Errorf("fill value %v does not fit %v", value, dt)
		}
		return sliceBytes([]int64{int64(f)}), nil
	case builder.Float32:
		return sliceBytes([]float32{float32(f)}), nil
	case builder.Float64:
		return sliceBytes([]float64{f}), nil
	}
	return nil, fmt.Errorf("unsupported buffer type %v", dt)
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint32:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// accessFor maps a parameter direction to the access mode of its buffer
func accessFor(d builder.Direction) device.AccessMode {
	switch d {
	case builder.DirectionInput:
		return device.ReadOnly
	case builder.DirectionOutput:
		return device.WriteOnly
	default:
		return device.ReadWrite
	}
}

// LocalSize requests per-work-group scratch of a number of elements when
// passed to SetArgs.
type LocalSize int

func configError(op, format string, args ...interface{}) error {
	return device.Errorf(device.KindConfiguration, op, format, args...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
