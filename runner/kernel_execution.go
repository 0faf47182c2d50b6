// File: runner/kernel_execution.go

package runner

import (
	"fmt"

	"github.com/notargets/gpuprims/device"
	"github.com/notargets/gpuprims/profiler"
	"github.com/notargets/gpuprims/runner/builder"
)

// Enqueue validates a dispatch and issues it on the in-order queue without
// waiting. Host bindings marked CopyTo are uploaded first.
func (kr *Runner) Enqueue(kernelName string, global, local device.Extent) (device.Event, error) {
	const op = "Dispatch"
	def, err := kr.GetKernelDefinition(kernelName)
	if err != nil {
		return nil, err
	}
	if missing := def.Unbound(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, idx := range missing {
			names[i] = fmt.Sprintf("%d (%s)", idx, def.Spec.Params[idx].Name)
		}
		return nil, configError(op, "kernel %s has unbound parameters %v", kernelName, names)
	}
	if global.Dims() != def.Spec.Dims {
		return nil, configError(op, "kernel %s is %d-dimensional, global extent %v is not",
			kernelName, def.Spec.Dims, global)
	}
	if err = device.ValidateExtents(global, local); err != nil {
		return nil, device.NewError(device.KindConfiguration, op, kernelName, err)
	}
	if def.Spec.HasLocal() {
		if local == nil {
			return nil, configError(op, "kernel %s uses local memory sized per work-group and needs an explicit local extent", kernelName)
		}
		if local.Size() != kr.WorkGroupSize {
			return nil, configError(op, "kernel %s was compiled for work-group size %d, local extent is %v",
				kernelName, kr.WorkGroupSize, local)
		}
	}
	k, err := kr.kernelHandle(kernelName)
	if err != nil {
		return nil, err
	}

	if err = kr.executeCopyActions(def.Bindings, CopyTo); err != nil {
		return nil, fmt.Errorf("pre-kernel copy failed: %w", err)
	}
	ev, err := kr.Session.EnqueueKernel(k, def.args, global, local)
	if err != nil {
		return nil, fmt.Errorf("kernel %s dispatch failed: %w", kernelName, err)
	}
	for i, p := range def.Spec.Params {
		if p.IsBuffer() && p.Writes() {
			kr.pending[kr.byMemory[def.args[i].Memory].Name] = ev
		}
	}
	return ev, nil
}

// Dispatch issues a kernel, records its profiling sample and downloads host
// bindings marked CopyBack once it has completed.
func (kr *Runner) Dispatch(kernelName string, global, local device.Extent) (profiler.Sample, error) {
	sample, err := profiler.Around(func() (device.Event, error) {
		return kr.Enqueue(kernelName, global, local)
	})
	if err != nil {
		return sample, err
	}
	def := kr.kernelDefinitions[kernelName]
	if err = kr.executeCopyActions(def.Bindings, CopyBack); err != nil {
		return sample, fmt.Errorf("post-kernel copy failed: %w", err)
	}
	kr.Profile.Add(kernelName, sample)
	kr.log.Debug("dispatch", "kernel", kernelName, "global", global.String(), "local", extentString(local),
		"elapsed_ns", sample.Elapsed(), "timed", sample.Available)
	return sample, nil
}

// DispatchGroups runs a one-dimensional kernel over groups work-groups of the
// runner's work-group size
func (kr *Runner) DispatchGroups(kernelName string, groups int) (profiler.Sample, error) {
	g := kr.WorkGroupSize
	return kr.Dispatch(kernelName, device.Extent{groups * g}, device.Extent{g})
}

func extentString(e device.Extent) string {
	if e == nil {
		return "auto"
	}
	return e.String()
}

// RunKernel binds host data by parameter order and dispatches over a 1-D
// extent of n items. Parameters must already carry their host bindings.
func (kr *Runner) RunKernel(kernelName string, n int, params ...*builder.ParamBuilder) (profiler.Sample, error) {
	if err := kr.DefineKernel(kernelName, params...); err != nil {
		return profiler.Unavailable, err
	}
	return kr.Dispatch(kernelName, device.Extent{n}, nil)
}
