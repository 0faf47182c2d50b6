package runner

import (
	"fmt"

	"github.com/notargets/gpuprims/device"
	"github.com/notargets/gpuprims/logger"
	"github.com/notargets/gpuprims/profiler"
	"github.com/notargets/gpuprims/runner/builder"
)

// Runner owns the device buffers, the compiled program and the kernel
// definitions of one run. All commands go to the session's single in-order
// queue.
type Runner struct {
	*builder.Builder
	Session device.Session
	Program device.Program
	Profile profiler.Record

	log               logger.Logger
	buffers           map[string]*Buffer
	bufferOrder       []string
	byMemory          map[device.Memory]*Buffer
	pending           map[string]device.Event
	bindings          map[string]*DeviceBinding
	kernelDefinitions map[string]*KernelDefinition
	kernels           map[string]device.Kernel
	IsAllocated       bool
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the logger used for transfer and dispatch records
func WithLogger(l logger.Logger) Option {
	return func(kr *Runner) {
		if l != nil {
			kr.log = l
		}
	}
}

// NewRunner creates a Runner on an open session
func NewRunner(session device.Session, cfg builder.Config, opts ...Option) *Runner {
	if session == nil {
		panic("runner needs an open device session")
	}
	kr := &Runner{
		Builder:           builder.NewBuilder(cfg),
		Session:           session,
		log:               logger.Nop(),
		buffers:           make(map[string]*Buffer),
		byMemory:          make(map[device.Memory]*Buffer),
		pending:           make(map[string]device.Event),
		bindings:          make(map[string]*DeviceBinding),
		kernelDefinitions: make(map[string]*KernelDefinition),
		kernels:           make(map[string]device.Kernel),
	}
	for _, opt := range opts {
		opt(kr)
	}
	kr.log = kr.log.With("session", session.ID(), "backend", session.Info().Backend)
	return kr
}

// Logger returns the runner's logger
func (kr *Runner) Logger() logger.Logger {
	return kr.log
}

// BuildProgram compiles the kernel source once for the run, prefixed by the
// generated preamble. A compile failure is returned as a
// *device.BuildDiagnostic in the error chain.
func (kr *Runner) BuildProgram(source, flags string) error {
	if kr.Program != nil {
		return configError("BuildProgram", "program already built for this run")
	}
	preamble := kr.GeneratePreamble()
	prog, err := kr.Session.Build(source, device.BuildOptions{
		Preamble: preamble,
		Flags:    flags,
	})
	if err != nil {
		return fmt.Errorf("failed to build program: %w", err)
	}
	kr.Program = prog
	kr.log.Info("program built", "entry_points", prog.Names(), "work_group_size", kr.WorkGroupSize)
	return nil
}

// kernelHandle resolves and caches a compiled entry point
func (kr *Runner) kernelHandle(name string) (device.Kernel, error) {
	if k, ok := kr.kernels[name]; ok {
		return k, nil
	}
	if kr.Program == nil {
		return nil, configError("Dispatch", "kernel %s: program not built - use BuildProgram first", name)
	}
	k, err := kr.Program.Kernel(name)
	if err != nil {
		return nil, err
	}
	kr.kernels[name] = k
	return k, nil
}

// Finish waits for every queued command
func (kr *Runner) Finish() error {
	err := kr.Session.Finish()
	for name := range kr.pending {
		delete(kr.pending, name)
	}
	return err
}

// Free waits for the queue, then releases buffers and the program. The
// session stays open.
func (kr *Runner) Free() {
	_ = kr.Session.Finish()
	for _, name := range kr.bufferOrder {
		kr.buffers[name].Memory.Free()
	}
	kr.buffers = make(map[string]*Buffer)
	kr.byMemory = make(map[device.Memory]*Buffer)
	kr.bufferOrder = nil
	kr.pending = make(map[string]device.Event)
	if kr.Program != nil {
		kr.Program.Free()
		kr.Program = nil
	}
	kr.kernels = make(map[string]device.Kernel)
	kr.IsAllocated = false
}
