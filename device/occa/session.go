//go:build occa

// Package occa is a device.Session on OCCA through gocca. OCCA exposes no
// command events, so the session stamps host-side marks around each command
// and completes an event when the device has been synchronized.
package occa

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/notargets/gocca"
	"github.com/notargets/gpuprims/device"
)

const BackendName = "occa"

// Modes are the OCCA backends tried, in platform index order
var Modes = []string{"Serial", "OpenMP", "CUDA", "HIP", "OpenCL", "Metal"}

// Config selects an OCCA mode and device
type Config struct {
	Mode           string // empty selects Modes[PlatformIndex]
	PlatformIndex  int
	DeviceIndex    int
	OpenCLPlatform int
}

// deviceProps renders the OCCA device properties JSON for cfg
func deviceProps(mode string, cfg Config) (string, error) {
	props := map[string]interface{}{"mode": mode}
	switch mode {
	case "CUDA", "HIP", "Metal":
		props["device_id"] = cfg.DeviceIndex
	case "OpenCL":
		props["platform_id"] = cfg.OpenCLPlatform
		props["device_id"] = cfg.DeviceIndex
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Session is a device.Session on one OCCA device
type Session struct {
	id    string
	dev   *gocca.OCCADevice
	info  device.Info
	epoch time.Time

	mu       sync.Mutex
	inflight []*event
	memories []*memory
	fill     map[int]*gocca.OCCAKernel
	freed    bool
}

var _ device.Session = (*Session)(nil)

// Open creates a device for cfg
func Open(cfg Config) (*Session, error) {
	mode := cfg.Mode
	if mode == "" {
		if cfg.PlatformIndex < 0 || cfg.PlatformIndex >= len(Modes) {
			return nil, device.Errorf(device.KindDevice, "Open",
				"no platform with index %d (%d OCCA modes)", cfg.PlatformIndex, len(Modes))
		}
		mode = Modes[cfg.PlatformIndex]
	}
	props, err := deviceProps(mode, cfg)
	if err != nil {
		return nil, device.NewError(device.KindDevice, "Open", mode, err)
	}
	dev, err := gocca.NewDevice(props)
	if err != nil {
		return nil, device.NewError(device.KindDevice, "Open", fmt.Sprintf("no device for %s", props), err)
	}
	return &Session{
		id:    uuid.NewString(),
		dev:   dev,
		epoch: time.Now(),
		fill:  make(map[int]*gocca.OCCAKernel),
		info: device.Info{
			Backend:          BackendName,
			Platform:         dev.Mode(),
			Device:           fmt.Sprintf("%s device %d", dev.Mode(), cfg.DeviceIndex),
			PlatformIndex:    cfg.PlatformIndex,
			DeviceIndex:      cfg.DeviceIndex,
			MaxWorkGroupSize: 1024,
			Profiling:        true,
		},
	}, nil
}

func (s *Session) ID() string        { return s.id }
func (s *Session) Info() device.Info { return s.info }
func (s *Session) Mode() string      { return s.dev.Mode() }

func (s *Session) clock() uint64 {
	return uint64(time.Since(s.epoch).Nanoseconds())
}

type event struct {
	s    *Session
	ts   device.Timestamps
	done bool
	err  error
}

func (e *event) Wait() error {
	e.s.sync()
	return e.err
}

func (e *event) Done() bool {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	return e.done
}

func (e *event) Profile() (device.Timestamps, error) {
	if err := e.Wait(); err != nil {
		return device.Timestamps{}, err
	}
	return e.ts, nil
}

// sync finishes the device and completes every in-flight event
func (s *Session) sync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inflight) == 0 {
		return
	}
	s.dev.Finish()
	now := s.clock()
	for _, ev := range s.inflight {
		ev.ts.Ended = now
		ev.done = true
	}
	s.inflight = nil
}

// issue runs submit with host marks around it
func (s *Session) issue(blocking bool, submit func() error) (device.Event, error) {
	ev := &event{s: s}
	ev.ts.Queued = s.clock()
	ev.ts.Submitted = ev.ts.Queued
	ev.ts.Started = s.clock()
	ev.err = submit()
	s.mu.Lock()
	s.inflight = append(s.inflight, ev)
	s.mu.Unlock()
	if blocking {
		if err := ev.Wait(); err != nil {
			return ev, err
		}
	}
	return ev, nil
}

type memory struct {
	mem    *gocca.OCCAMemory
	size   int64
	access device.AccessMode
	freed  bool
}

func (m *memory) Size() int64               { return m.size }
func (m *memory) Access() device.AccessMode { return m.access }

func (m *memory) Free() {
	if !m.freed {
		m.mem.Free()
		m.freed = true
	}
}

func (s *Session) Malloc(size int64, access device.AccessMode) (device.Memory, error) {
	if size <= 0 {
		return nil, device.Errorf(device.KindConfiguration, "Malloc", "allocation size must be positive, got %d", size)
	}
	mem := s.dev.Malloc(size, nil, nil)
	if mem == nil {
		return nil, device.Errorf(device.KindTransfer, "Malloc", "device allocation of %d bytes failed", size)
	}
	m := &memory{mem: mem, size: size, access: access}
	s.mu.Lock()
	s.memories = append(s.memories, m)
	s.mu.Unlock()
	return m, nil
}

func memoryOf(op string, mem device.Memory, offset int64, n int) (*memory, error) {
	m, ok := mem.(*memory)
	if !ok || m == nil {
		return nil, device.Errorf(device.KindConfiguration, op, "memory %T does not belong to the OCCA device", mem)
	}
	if m.freed {
		return nil, device.Errorf(device.KindTransfer, op, "memory has been freed")
	}
	if offset < 0 || offset+int64(n) > m.size {
		return nil, device.Errorf(device.KindTransfer, op,
			"range [%d, %d) outside buffer of %d bytes", offset, offset+int64(n), m.size)
	}
	return m, nil
}

// EnqueueWrite copies src to the device. OCCA copies are synchronous, so a
// non-blocking write has completed on return as well.
func (s *Session) EnqueueWrite(mem device.Memory, offset int64, src []byte, blocking bool) (device.Event, error) {
	m, err := memoryOf("EnqueueWrite", mem, offset, len(src))
	if err != nil {
		return nil, err
	}
	s.sync()
	return s.issue(blocking, func() error {
		if len(src) > 0 {
			m.mem.CopyFromWithOffset(unsafe.Pointer(&src[0]), int64(len(src)), offset)
		}
		return nil
	})
}

func (s *Session) EnqueueRead(mem device.Memory, offset int64, dst []byte, blocking bool) (device.Event, error) {
	m, err := memoryOf("EnqueueRead", mem, offset, len(dst))
	if err != nil {
		return nil, err
	}
	s.sync()
	return s.issue(blocking, func() error {
		if len(dst) > 0 {
			m.mem.CopyToWithOffset(unsafe.Pointer(&dst[0]), int64(len(dst)), offset)
		}
		return nil
	})
}

const fillSource = `
@kernel void gpuprims_fill4(unsigned int *buf, const unsigned int value, const int n) {
	for (int i = 0; i < n; ++i; @tile(256, @outer, @inner)) {
		buf[i] = value;
	}
}

@kernel void gpuprims_fill8(unsigned long *buf, const unsigned long value, const int n) {
	for (int i = 0; i < n; ++i; @tile(256, @outer, @inner)) {
		buf[i] = value;
	}
}
`

func (s *Session) fillKernel(width int) (*gocca.OCCAKernel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.fill[width]; ok {
		return k, nil
	}
	k, err := s.dev.BuildKernelFromString(fillSource, fmt.Sprintf("gpuprims_fill%d", width), nil)
	if err != nil {
		return nil, err
	}
	s.fill[width] = k
	return k, nil
}

// EnqueueFill runs a fill kernel for 4 and 8 byte patterns and uploads a
// host-side tiled copy for any other width
func (s *Session) EnqueueFill(mem device.Memory, pattern []byte, blocking bool) (device.Event, error) {
	const op = "EnqueueFill"
	m, err := memoryOf(op, mem, 0, 0)
	if err != nil {
		return nil, err
	}
	if len(pattern) == 0 || m.size%int64(len(pattern)) != 0 {
		return nil, device.Errorf(device.KindConfiguration, op,
			"pattern of %d bytes does not tile a buffer of %d bytes", len(pattern), m.size)
	}
	n := int32(m.size / int64(len(pattern)))
	switch len(pattern) {
	case 4, 8:
		k, err := s.fillKernel(len(pattern))
		if err != nil {
			return nil, device.NewError(device.KindTransfer, op, "fill kernel", err)
		}
		return s.issue(blocking, func() error {
			if len(pattern) == 4 {
				return k.RunWithArgs(m.mem, binary.NativeEndian.Uint32(pattern), n)
			}
			return k.RunWithArgs(m.mem, binary.NativeEndian.Uint64(pattern), n)
		})
	}
	tiled := make([]byte, m.size)
	for i := 0; i < len(tiled); i += len(pattern) {
		copy(tiled[i:], pattern)
	}
	return s.EnqueueWrite(mem, 0, tiled, blocking)
}

type kernel struct {
	name string
	k    *gocca.OCCAKernel
}

func (k *kernel) Name() string { return k.name }

type program struct {
	names   []string
	kernels map[string]*kernel
}

func (p *program) Names() []string { return append([]string(nil), p.names...) }

func (p *program) Kernel(name string) (device.Kernel, error) {
	k, ok := p.kernels[name]
	if !ok {
		return nil, device.Errorf(device.KindConfiguration, "Kernel",
			"program has no entry point %q (available: %v)", name, p.names)
	}
	return k, nil
}

func (p *program) Free() {
	for _, k := range p.kernels {
		k.k.Free()
	}
}

// buildProps renders the kernel properties. OpenMP does not get -O3 by
// default, so it is added unless flags are given.
func (s *Session) buildProps(flags string) (string, error) {
	if flags == "" && s.dev.Mode() == "OpenMP" {
		flags = "-O3"
	}
	if flags == "" {
		return "", nil
	}
	raw, err := json.Marshal(map[string]string{"compiler_flags": flags})
	return string(raw), err
}

// Build compiles every @kernel entry point of the preamble-prefixed source
func (s *Session) Build(source string, opts device.BuildOptions) (device.Program, error) {
	full := source
	if opts.Preamble != "" {
		full = opts.Preamble + "\n" + source
	}
	propsJSON, err := s.buildProps(opts.Flags)
	if err != nil {
		return nil, device.NewError(device.KindBuild, "Build", "kernel properties", err)
	}
	names := device.EntryPoints(full)
	if len(names) == 0 {
		return nil, &device.BuildDiagnostic{Status: "BUILD_ERROR", Options: propsJSON,
			Log: "error: source declares no @kernel entry points"}
	}

	p := &program{names: names, kernels: make(map[string]*kernel, len(names))}
	var logs []string
	for _, name := range names {
		var k *gocca.OCCAKernel
		if propsJSON != "" {
			props := gocca.JsonParse(propsJSON)
			k, err = s.dev.BuildKernelFromString(full, name, props)
			props.Free()
		} else {
			k, err = s.dev.BuildKernelFromString(full, name, nil)
		}
		if err != nil {
			logs = append(logs, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		p.kernels[name] = &kernel{name: name, k: k}
	}
	if len(logs) > 0 {
		p.Free()
		sort.Strings(logs)
		return nil, &device.BuildDiagnostic{
			Status:  "BUILD_ERROR",
			Options: propsJSON,
			Log:     strings.Join(logs, "\n"),
		}
	}
	return p, nil
}

// EnqueueKernel passes buffers and scalars in order, drops local arguments
// (they are @shared arrays sized at compile time) and appends the global
// extent. The local extent is fixed by the kernel's @inner loops.
func (s *Session) EnqueueKernel(k device.Kernel, args []device.Arg, global, local device.Extent) (device.Event, error) {
	const op = "EnqueueKernel"
	kern, ok := k.(*kernel)
	if !ok || kern == nil {
		return nil, device.Errorf(device.KindConfiguration, op, "kernel %T does not belong to the OCCA device", k)
	}
	if err := device.ValidateExtents(global, local); err != nil {
		return nil, device.NewError(device.KindConfiguration, op, kern.name, err)
	}
	runArgs := make([]interface{}, 0, len(args)+len(global))
	for i, a := range args {
		switch a.Kind {
		case device.ArgBuffer:
			m, err := memoryOf(op, a.Memory, 0, 0)
			if err != nil {
				return nil, err
			}
			runArgs = append(runArgs, m.mem)
		case device.ArgScalar:
			if a.Scalar == nil {
				return nil, device.Errorf(device.KindConfiguration, op, "kernel %s scalar argument %d is nil", kern.name, i)
			}
			runArgs = append(runArgs, a.Scalar)
		case device.ArgLocal:
		}
	}
	for _, c := range global {
		runArgs = append(runArgs, int32(c))
	}
	ev, err := s.issue(false, func() error {
		return kern.k.RunWithArgs(runArgs...)
	})
	if err != nil {
		return ev, err
	}
	if ev.(*event).err != nil {
		return nil, device.NewError(device.KindDispatch, op, kern.name, ev.(*event).err)
	}
	return ev, nil
}

func (s *Session) Finish() error {
	s.sync()
	return nil
}

func (s *Session) Free() {
	s.mu.Lock()
	if s.freed {
		s.mu.Unlock()
		return
	}
	s.freed = true
	s.mu.Unlock()

	s.sync()
	for _, k := range s.fill {
		k.Free()
	}
	for _, m := range s.memories {
		m.Free()
	}
	s.dev.Free()
}

// Lister probes every OCCA mode
type Lister struct{}

func (Lister) Platforms() ([]device.Platform, error) {
	var platforms []device.Platform
	for i, mode := range Modes {
		props, err := deviceProps(mode, Config{})
		if err != nil {
			return nil, err
		}
		dev, err := gocca.NewDevice(props)
		if err != nil {
			continue
		}
		platforms = append(platforms, device.Platform{
			Index:  i,
			Name:   "OCCA " + dev.Mode(),
			Vendor: "OCCA",
			Devices: []device.Descriptor{{
				Index: 0,
				Name:  dev.Mode() + " device 0",
			}},
		})
		dev.Free()
	}
	if len(platforms) == 0 {
		return nil, device.Errorf(device.KindDevice, "Platforms", "no OCCA mode could create a device")
	}
	return platforms, nil
}
