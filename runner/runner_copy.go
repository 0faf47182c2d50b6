package runner

import (
	"fmt"

	"github.com/notargets/gpuprims/device"
	"github.com/notargets/gpuprims/planner"
	"github.com/notargets/gpuprims/runner/builder"
)

// ============================================================================
// Typed copies between host and device
// ============================================================================

// CopyArrayToHost downloads the first n elements of a buffer into a new
// slice. n < 0 reads the whole buffer.
func CopyArrayToHost[T planner.Element](kr *Runner, name string, n int) ([]T, error) {
	buf, err := kr.GetBuffer(name)
	if err != nil {
		return nil, err
	}
	var sample T
	if dt, _ := builder.DataTypeOf(sample); dt != buf.DataType {
		return nil, configError("CopyArrayToHost", "type mismatch: buffer %s is %v, requested %v",
			name, buf.DataType, dt)
	}
	if n < 0 {
		n = int(buf.Elements)
	}
	if int64(n) > buf.Elements {
		return nil, configError("CopyArrayToHost", "buffer %s holds %d elements, %d requested",
			name, buf.Elements, n)
	}
	result := make([]T, n)
	if n == 0 {
		return result, nil
	}
	if _, err = kr.Download(name, result, true); err != nil {
		return nil, err
	}
	return result, nil
}

// CopyArrayToDevice allocates a buffer sized for data and uploads it
func CopyArrayToDevice[T planner.Element](kr *Runner, name string, access device.AccessMode, data []T) (*Buffer, error) {
	if len(data) == 0 {
		return nil, configError("CopyArrayToDevice", "buffer %s: no data", name)
	}
	dt, _ := builder.DataTypeOf(data)
	buf, err := kr.Allocate(name, access, dt, len(data))
	if err != nil {
		return nil, err
	}
	if _, err = kr.Upload(name, data, true); err != nil {
		return nil, fmt.Errorf("failed to copy %s to device: %w", name, err)
	}
	return buf, nil
}
