// Package software is an emulated compute device in pure Go. It keeps device
// memory in host byte slices, serves one in-order command queue from a single
// goroutine and runs the work-groups of a dispatch in parallel across worker
// goroutines. Kernels are Go functions registered under their OKL entry point
// names.
package software

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/notargets/gpuprims/device"
	"golang.org/x/sys/cpu"
)

const (
	BackendName      = "software"
	PlatformName     = "GPUPrims Software Platform"
	DeviceName       = "Emulated Compute Device"
	Vendor           = "gpuprims"
	DefaultMaxGroup  = 1024
	defaultQueueSize = 64
)

// Config selects the emulated device and its execution resources
type Config struct {
	PlatformIndex    int
	DeviceIndex      int
	Workers          int // defaults to runtime.NumCPU()
	MaxWorkGroupSize int // defaults to DefaultMaxGroup
	DisableProfiling bool
}

// Session is a device.Session on the emulated device
type Session struct {
	id       string
	cfg      Config
	info     device.Info
	epoch    time.Time
	queue    *queue
	registry map[string]*KernelImpl

	mu       sync.Mutex
	memories []*memory
	asyncErr error
	freed    bool
}

var _ device.Session = (*Session)(nil)

// Open creates a session on platform/device (0, 0), the only pair the
// emulated device exposes.
func Open(cfg Config) (*Session, error) {
	if cfg.PlatformIndex != 0 {
		return nil, device.Errorf(device.KindDevice, "Open",
			"no platform with index %d (1 platform available)", cfg.PlatformIndex)
	}
	if cfg.DeviceIndex != 0 {
		return nil, device.Errorf(device.KindDevice, "Open",
			"no device with index %d on platform %d (1 device available)", cfg.DeviceIndex, cfg.PlatformIndex)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.MaxWorkGroupSize <= 0 {
		cfg.MaxWorkGroupSize = DefaultMaxGroup
	}

	s := &Session{
		id:       uuid.NewString(),
		cfg:      cfg,
		epoch:    time.Now(),
		registry: builtinKernels(),
	}
	s.info = device.Info{
		Backend:          BackendName,
		Platform:         PlatformName,
		Device:           DeviceName,
		MaxWorkGroupSize: cfg.MaxWorkGroupSize,
		Profiling:        !cfg.DisableProfiling,
	}
	s.queue = newQueue(defaultQueueSize, s.clock)
	return s, nil
}

func (s *Session) clock() uint64 {
	return uint64(time.Since(s.epoch).Nanoseconds())
}

func (s *Session) ID() string        { return s.id }
func (s *Session) Info() device.Info { return s.info }

// Register adds or replaces a kernel implementation. Programs built after the
// call can resolve the entry point.
func (s *Session) Register(impl *KernelImpl) error {
	if impl == nil || impl.Name == "" || impl.Run == nil {
		return fmt.Errorf("kernel implementation needs a name and a body")
	}
	if impl.Dims < 1 || impl.Dims > 3 {
		return fmt.Errorf("kernel %s: dims must be 1, 2 or 3, got %d", impl.Name, impl.Dims)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry[impl.Name] = impl
	return nil
}

type memory struct {
	data   []byte
	access device.AccessMode
	freed  atomic.Bool
}

func (m *memory) Size() int64               { return int64(len(m.data)) }
func (m *memory) Access() device.AccessMode { return m.access }
func (m *memory) Free()                     { m.freed.Store(true) }

// Malloc allocates zeroed device memory
func (s *Session) Malloc(size int64, access device.AccessMode) (device.Memory, error) {
	if size <= 0 {
		return nil, device.Errorf(device.KindConfiguration, "Malloc", "allocation size must be positive, got %d", size)
	}
	m := &memory{data: alignedBytes(size), access: access}
	s.mu.Lock()
	s.memories = append(s.memories, m)
	s.mu.Unlock()
	return m, nil
}

func (s *Session) memoryOf(op string, mem device.Memory) (*memory, error) {
	m, ok := mem.(*memory)
	if !ok || m == nil {
		return nil, device.Errorf(device.KindConfiguration, op, "memory %T does not belong to the software device", mem)
	}
	if m.freed.Load() {
		return nil, device.Errorf(device.KindTransfer, op, "memory has been freed")
	}
	return m, nil
}

func checkRange(op string, m *memory, offset int64, n int) error {
	if offset < 0 || offset+int64(n) > m.Size() {
		return device.Errorf(device.KindTransfer, op,
			"range [%d, %d) outside buffer of %d bytes", offset, offset+int64(n), m.Size())
	}
	return nil
}

// EnqueueWrite copies src into mem at offset. A non-blocking write reads src
// when the command executes.
func (s *Session) EnqueueWrite(mem device.Memory, offset int64, src []byte, blocking bool) (device.Event, error) {
	const op = "EnqueueWrite"
	m, err := s.memoryOf(op, mem)
	if err != nil {
		return nil, err
	}
	if err = checkRange(op, m, offset, len(src)); err != nil {
		return nil, err
	}
	return s.submit(device.KindTransfer, op, blocking, func() error {
		copy(m.data[offset:], src)
		return nil
	})
}

// EnqueueRead copies mem at offset into dst
func (s *Session) EnqueueRead(mem device.Memory, offset int64, dst []byte, blocking bool) (device.Event, error) {
	const op = "EnqueueRead"
	m, err := s.memoryOf(op, mem)
	if err != nil {
		return nil, err
	}
	if err = checkRange(op, m, offset, len(dst)); err != nil {
		return nil, err
	}
	return s.submit(device.KindTransfer, op, blocking, func() error {
		copy(dst, m.data[offset:offset+int64(len(dst))])
		return nil
	})
}

// EnqueueFill repeats pattern over the whole buffer
func (s *Session) EnqueueFill(mem device.Memory, pattern []byte, blocking bool) (device.Event, error) {
	const op = "EnqueueFill"
	m, err := s.memoryOf(op, mem)
	if err != nil {
		return nil, err
	}
	if len(pattern) == 0 || m.Size()%int64(len(pattern)) != 0 {
		return nil, device.Errorf(device.KindConfiguration, op,
			"pattern of %d bytes does not tile a buffer of %d bytes", len(pattern), m.Size())
	}
	p := append([]byte(nil), pattern...)
	return s.submit(device.KindTransfer, op, blocking, func() error {
		for i := 0; i < len(m.data); i += len(p) {
			copy(m.data[i:], p)
		}
		return nil
	})
}

func (s *Session) submit(kind device.ErrorKind, op string, blocking bool, run func() error) (device.Event, error) {
	ev, err := s.queue.enqueue(func() error {
		if err := protect(run); err != nil {
			err = device.NewError(kind, op, "command failed", err)
			if !blocking {
				s.recordAsync(err)
			}
			return err
		}
		return nil
	}, !s.cfg.DisableProfiling)
	if err != nil {
		return nil, device.NewError(kind, op, "enqueue failed", err)
	}
	if blocking {
		if err = ev.Wait(); err != nil {
			return ev, err
		}
	}
	return ev, nil
}

func (s *Session) recordAsync(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.asyncErr == nil {
		s.asyncErr = err
	}
}

type kernel struct {
	impl *KernelImpl
}

func (k *kernel) Name() string { return k.impl.Name }

type program struct {
	names   []string
	kernels map[string]*kernel
}

func (p *program) Names() []string { return append([]string(nil), p.names...) }
func (p *program) Free()           {}

func (p *program) Kernel(name string) (device.Kernel, error) {
	k, ok := p.kernels[name]
	if !ok {
		return nil, device.Errorf(device.KindConfiguration, "Kernel",
			"program has no entry point %q (available: %v)", name, p.names)
	}
	return k, nil
}

// Build checks the source and resolves every @kernel entry point against the
// registered Go implementations.
func (s *Session) Build(source string, opts device.BuildOptions) (device.Program, error) {
	full := source
	if opts.Preamble != "" {
		full = opts.Preamble + "\n" + source
	}
	fail := func(log string) error {
		return &device.BuildDiagnostic{Status: "BUILD_ERROR", Options: opts.Flags, Log: log}
	}
	if msg := device.CheckBalanced(full); msg != "" {
		return nil, fail(msg)
	}
	names := device.EntryPoints(full)
	if len(names) == 0 {
		return nil, fail("error: source declares no @kernel entry points")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := &program{names: names, kernels: make(map[string]*kernel, len(names))}
	var missing []string
	for _, name := range names {
		impl, ok := s.registry[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		p.kernels[name] = &kernel{impl: impl}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fail(fmt.Sprintf("error: no device implementation for kernel(s) %v", missing))
	}
	return p, nil
}

// EnqueueKernel validates the launch and queues it. Work-groups run in
// parallel; the command completes when every group has finished.
func (s *Session) EnqueueKernel(k device.Kernel, args []device.Arg, global, local device.Extent) (device.Event, error) {
	const op = "EnqueueKernel"
	kern, ok := k.(*kernel)
	if !ok || kern == nil {
		return nil, device.Errorf(device.KindConfiguration, op, "kernel %T does not belong to the software device", k)
	}
	impl := kern.impl
	if err := device.ValidateExtents(global, local); err != nil {
		return nil, device.NewError(device.KindConfiguration, op, impl.Name, err)
	}
	if global.Dims() != impl.Dims {
		return nil, device.Errorf(device.KindConfiguration, op,
			"kernel %s is %d-dimensional, global extent %v is not", impl.Name, impl.Dims, global)
	}
	if len(args) != len(impl.Params) {
		return nil, device.Errorf(device.KindConfiguration, op,
			"kernel %s takes %d arguments, got %d", impl.Name, len(impl.Params), len(args))
	}

	bound := make([]boundArg, len(args))
	hasLocal := false
	for i, a := range args {
		if a.Kind != impl.Params[i] {
			return nil, device.Errorf(device.KindConfiguration, op,
				"kernel %s argument %d must be a %s, got %s", impl.Name, i, impl.Params[i], a.Kind)
		}
		bound[i].kind = a.Kind
		switch a.Kind {
		case device.ArgBuffer:
			m, err := s.memoryOf(op, a.Memory)
			if err != nil {
				return nil, err
			}
			bound[i].data = m.data
		case device.ArgScalar:
			if a.Scalar == nil {
				return nil, device.Errorf(device.KindConfiguration, op, "kernel %s scalar argument %d is nil", impl.Name, i)
			}
			bound[i].scalar = a.Scalar
		case device.ArgLocal:
			if a.LocalBytes <= 0 {
				return nil, device.Errorf(device.KindConfiguration, op,
					"kernel %s local argument %d needs a positive size", impl.Name, i)
			}
			hasLocal = true
		}
	}

	if local == nil {
		if hasLocal {
			return nil, device.Errorf(device.KindConfiguration, op,
				"kernel %s uses local memory sized per work-group and needs an explicit local extent", impl.Name)
		}
		local = s.chooseLocal(global)
	}
	if local.Size() > s.cfg.MaxWorkGroupSize {
		return nil, device.Errorf(device.KindConfiguration, op,
			"work-group size %d exceeds device maximum %d", local.Size(), s.cfg.MaxWorkGroupSize)
	}

	var g3, l3 [3]int
	for d := 0; d < 3; d++ {
		g3[d], l3[d] = global.At(d), local.At(d)
	}
	locals := make([]int64, len(args))
	for i, a := range args {
		if a.Kind == device.ArgLocal {
			locals[i] = a.LocalBytes
		}
	}
	return s.submit(device.KindDispatch, op, false, func() error {
		return s.launch(impl, bound, locals, g3, l3)
	})
}

// chooseLocal picks the largest divisor of the first dimension within the
// device limit and 1 for the others.
func (s *Session) chooseLocal(global device.Extent) device.Extent {
	local := make(device.Extent, len(global))
	for d := range local {
		local[d] = 1
	}
	for c := s.cfg.MaxWorkGroupSize; c >= 1; c-- {
		if global[0]%c == 0 {
			local[0] = c
			break
		}
	}
	return local
}

func (s *Session) launch(impl *KernelImpl, bound []boundArg, locals []int64, global, local [3]int) error {
	var num [3]int
	for d := 0; d < 3; d++ {
		num[d] = global[d] / local[d]
	}
	total := num[0] * num[1] * num[2]

	groups := make(chan int, total)
	for i := 0; i < total; i++ {
		groups <- i
	}
	close(groups)

	workers := min(s.cfg.Workers, total)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			args := make([]boundArg, len(bound))
			copy(args, bound)
			for i, n := range locals {
				if n > 0 {
					args[i].data = alignedBytes(n)
				}
			}
			errs[w] = protect(func() error {
				for id := range groups {
					g := &WorkGroup{
						Group: [3]int{
							id % num[0],
							(id / num[0]) % num[1],
							id / (num[0] * num[1]),
						},
						NumGroups:  num,
						LocalSize:  local,
						GlobalSize: global,
						args:       args,
					}
					impl.Run(g)
				}
				return nil
			})
		}(w)
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("kernel %s: %w", impl.Name, err)
	}
	return nil
}

// Finish waits for every queued command and reports the first failure of a
// non-blocking command since the previous Finish.
func (s *Session) Finish() error {
	ev, err := s.queue.enqueue(func() error { return nil }, false)
	if err != nil {
		return device.NewError(device.KindDispatch, "Finish", "queue closed", err)
	}
	_ = ev.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	err, s.asyncErr = s.asyncErr, nil
	return err
}

// Free drains the queue and releases all memory
func (s *Session) Free() {
	s.mu.Lock()
	if s.freed {
		s.mu.Unlock()
		return
	}
	s.freed = true
	s.mu.Unlock()

	s.queue.close()
	s.mu.Lock()
	for _, m := range s.memories {
		m.Free()
	}
	s.memories = nil
	s.mu.Unlock()
}

// Lister enumerates the emulated platform
type Lister struct{}

func (Lister) Platforms() ([]device.Platform, error) {
	return []device.Platform{{
		Index:  0,
		Name:   PlatformName,
		Vendor: Vendor,
		Devices: []device.Descriptor{{
			Index:       0,
			Name:        DeviceName,
			Description: hostDescription(),
		}},
	}}, nil
}

func hostDescription() string {
	desc := fmt.Sprintf("%s/%s, %d workers", runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
	var features []string
	switch {
	case cpu.X86.HasAVX512F:
		features = append(features, "avx512f")
	case cpu.X86.HasAVX2:
		features = append(features, "avx2")
	case cpu.ARM64.HasASIMD:
		features = append(features, "asimd")
	}
	if cpu.X86.HasFMA {
		features = append(features, "fma")
	}
	for _, f := range features {
		desc += ", " + f
	}
	return desc
}
