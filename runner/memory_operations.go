package runner

import (
	"errors"
	"fmt"
	"slices"

	"github.com/notargets/gpuprims/device"
	"github.com/notargets/gpuprims/runner/builder"
)

// Buffer is a named device allocation of fixed capacity
type Buffer struct {
	Name     string
	Access   device.AccessMode
	DataType builder.DataType
	Elements int64
	Memory   device.Memory
}

// Bytes returns the capacity in bytes
func (b *Buffer) Bytes() int64 {
	return b.Elements * b.DataType.Size()
}

// Allocate creates a device buffer. Capacity is fixed for the rest of the run.
func (kr *Runner) Allocate(name string, access device.AccessMode, dataType builder.DataType, elements int) (*Buffer, error) {
	const op = "Allocate"
	if name == "" {
		return nil, configError(op, "buffer name cannot be empty")
	}
	if _, exists := kr.buffers[name]; exists {
		return nil, configError(op, "buffer %s already allocated", name)
	}
	if dataType.Size() == 0 {
		return nil, configError(op, "buffer %s has unsupported type %v", name, dataType)
	}
	if elements <= 0 {
		return nil, configError(op, "buffer %s needs a positive element count, got %d", name, elements)
	}
	buf := &Buffer{
		Name:     name,
		Access:   access,
		DataType: dataType,
		Elements: int64(elements),
	}
	mem, err := kr.Session.Malloc(buf.Bytes(), access)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate %s: %w", name, err)
	}
	buf.Memory = mem
	kr.buffers[name] = buf
	kr.byMemory[mem] = buf
	kr.bufferOrder = append(kr.bufferOrder, name)
	kr.log.Debug("allocated", "buffer", name, "type", dataType.String(), "elements", elements, "access", access.String())
	return buf, nil
}

// GetBuffer returns an allocated buffer by name
func (kr *Runner) GetBuffer(name string) (*Buffer, error) {
	buf, ok := kr.buffers[name]
	if !ok {
		return nil, configError("GetBuffer", "no buffer named %s", name)
	}
	return buf, nil
}

// GetAllocatedBuffers returns buffer names in allocation order
func (kr *Runner) GetAllocatedBuffers() []string {
	return append([]string(nil), kr.bufferOrder...)
}

// Release frees named buffers before the end of the run. The queue is
// drained first since queued commands may still use them. Kernel arguments
// bound to a released buffer become unbound.
func (kr *Runner) Release(names ...string) error {
	const op = "Release"
	if len(names) == 0 {
		return nil
	}
	released := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := kr.buffers[name]; !ok {
			return configError(op, "no buffer named %s", name)
		}
		released[name] = true
	}
	err := kr.Session.Finish()
	for name := range released {
		buf := kr.buffers[name]
		kr.unbindMemory(buf.Memory)
		buf.Memory.Free()
		delete(kr.buffers, name)
		delete(kr.byMemory, buf.Memory)
		delete(kr.pending, name)
	}
	kr.bufferOrder = slices.DeleteFunc(kr.bufferOrder, func(name string) bool { return released[name] })
	kr.log.Debug("released", "buffers", len(released))
	if err != nil {
		return fmt.Errorf("queue failed before release: %w", err)
	}
	return nil
}

func (kr *Runner) unbindMemory(mem device.Memory) {
	for _, def := range kr.kernelDefinitions {
		for i, arg := range def.args {
			if def.bound[i] && arg.Kind == device.ArgBuffer && arg.Memory == mem {
				def.args[i] = device.Arg{}
				def.bound[i] = false
			}
		}
	}
}

func (kr *Runner) checkHost(op string, buf *Buffer, host interface{}) ([]byte, error) {
	dt, raw, err := hostBytes(host)
	if err != nil {
		return nil, configError(op, "buffer %s: %v", buf.Name, err)
	}
	if dt != buf.DataType {
		return nil, configError(op, "buffer %s holds %v, host data is %v", buf.Name, buf.DataType, dt)
	}
	if int64(len(raw)) > buf.Bytes() {
		return nil, configError(op, "buffer %s capacity exceeded: %d elements into %d",
			buf.Name, int64(len(raw))/dt.Size(), buf.Elements)
	}
	return raw, nil
}

// Upload writes host data to the start of a buffer. A shorter slice writes a
// prefix. A non-blocking upload reads host when the command executes, so the
// slice must not change until the returned event completes.
func (kr *Runner) Upload(name string, host interface{}, blocking bool) (device.Event, error) {
	const op = "Upload"
	buf, err := kr.GetBuffer(name)
	if err != nil {
		return nil, err
	}
	raw, err := kr.checkHost(op, buf, host)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, configError(op, "buffer %s: nothing to upload", name)
	}
	ev, err := kr.Session.EnqueueWrite(buf.Memory, 0, raw, blocking)
	if err != nil {
		return nil, fmt.Errorf("upload to %s failed: %w", name, err)
	}
	kr.trackWrite(name, ev, blocking)
	kr.log.Debug("upload", "buffer", name, "bytes", len(raw), "blocking", blocking)
	return ev, nil
}

// Fill sets every element of a buffer to value on the device
func (kr *Runner) Fill(name string, value interface{}, blocking bool) (device.Event, error) {
	const op = "Fill"
	buf, err := kr.GetBuffer(name)
	if err != nil {
		return nil, err
	}
	pattern, err := patternOf(buf.DataType, value)
	if err != nil {
		return nil, configError(op, "buffer %s: %v", name, err)
	}
	ev, err := kr.Session.EnqueueFill(buf.Memory, pattern, blocking)
	if err != nil {
		return nil, fmt.Errorf("fill of %s failed: %w", name, err)
	}
	kr.trackWrite(name, ev, blocking)
	kr.log.Debug("fill", "buffer", name, "value", value, "blocking", blocking)
	return ev, nil
}

// Download reads the start of a buffer into host. The last write to the
// buffer is waited for first. A non-blocking download fills host only once
// the returned event completes.
func (kr *Runner) Download(name string, host interface{}, blocking bool) (device.Event, error) {
	const op = "Download"
	buf, err := kr.GetBuffer(name)
	if err != nil {
		return nil, err
	}
	raw, err := kr.checkHost(op, buf, host)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, configError(op, "buffer %s: nothing to download", name)
	}
	if err = kr.awaitWrite(name); err != nil {
		return nil, err
	}
	ev, err := kr.Session.EnqueueRead(buf.Memory, 0, raw, blocking)
	if err != nil {
		return nil, fmt.Errorf("download from %s failed: %w", name, err)
	}
	kr.log.Debug("download", "buffer", name, "bytes", len(raw), "blocking", blocking)
	return ev, nil
}

// Wait blocks until every event has completed and returns their errors
func (kr *Runner) Wait(events ...device.Event) error {
	var errs []error
	for _, ev := range events {
		if ev == nil {
			continue
		}
		if err := ev.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (kr *Runner) trackWrite(name string, ev device.Event, blocking bool) {
	if blocking || ev == nil {
		delete(kr.pending, name)
		return
	}
	kr.pending[name] = ev
}

// awaitWrite waits for the last pending write of a buffer
func (kr *Runner) awaitWrite(name string) error {
	ev, ok := kr.pending[name]
	if !ok {
		return nil
	}
	delete(kr.pending, name)
	if err := ev.Wait(); err != nil {
		return fmt.Errorf("pending write to %s failed: %w", name, err)
	}
	return nil
}
