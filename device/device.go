// Package device defines the contract between the harness and a compute
// device: a session owning one in-order command queue, device memory,
// compiled programs and timestamped events.
package device

import (
	"errors"
	"fmt"
	"strings"
)

// AccessMode is the kernel-side access permission of a device buffer
type AccessMode int

const (
	ReadOnly AccessMode = iota
	WriteOnly
	ReadWrite
)

func (m AccessMode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case WriteOnly:
		return "write-only"
	case ReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("AccessMode(%d)", int(m))
	}
}

// CanRead reports whether kernels may read a buffer with this mode
func (m AccessMode) CanRead() bool { return m == ReadOnly || m == ReadWrite }

// CanWrite reports whether kernels may write a buffer with this mode
func (m AccessMode) CanWrite() bool { return m == WriteOnly || m == ReadWrite }

// Extent is a 1 to 3 dimensional count of work-items
type Extent []int

// Dims returns the dimensionality of the extent
func (e Extent) Dims() int { return len(e) }

// Size returns the total number of work-items
func (e Extent) Size() int {
	if len(e) == 0 {
		return 0
	}
	n := 1
	for _, c := range e {
		n *= c
	}
	return n
}

// At returns component d, 1 for dimensions beyond the extent
func (e Extent) At(d int) int {
	if d < len(e) {
		return e[d]
	}
	return 1
}

func (e Extent) String() string {
	parts := make([]string, len(e))
	for i, c := range e {
		parts[i] = fmt.Sprint(c)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// ValidateExtents checks a global extent and an optional local extent.
// A nil local extent leaves the work-group size to the runtime.
func ValidateExtents(global, local Extent) error {
	if len(global) < 1 || len(global) > 3 {
		return fmt.Errorf("global extent must have 1 to 3 dimensions, got %d", len(global))
	}
	for d, c := range global {
		if c < 0 {
			return fmt.Errorf("global extent component %d is negative (%d)", d, c)
		}
		if c == 0 {
			return fmt.Errorf("global extent %v is empty", global)
		}
	}
	if local == nil {
		return nil
	}
	if len(local) != len(global) {
		return fmt.Errorf("local extent %v has %d dimensions, global extent %v has %d",
			local, len(local), global, len(global))
	}
	for d, c := range local {
		if c <= 0 {
			return fmt.Errorf("local extent component %d must be positive, got %d", d, c)
		}
		if global[d]%c != 0 {
			return fmt.Errorf("local extent %v does not divide global extent %v in dimension %d",
				local, global, d)
		}
	}
	return nil
}

// ArgKind distinguishes the three kinds of kernel argument
type ArgKind int

const (
	ArgBuffer ArgKind = iota
	ArgScalar
	ArgLocal
)

func (k ArgKind) String() string {
	switch k {
	case ArgBuffer:
		return "buffer"
	case ArgScalar:
		return "scalar"
	case ArgLocal:
		return "local"
	default:
		return fmt.Sprintf("ArgKind(%d)", int(k))
	}
}

// Arg is one positional kernel argument
type Arg struct {
	Kind       ArgKind
	Memory     Memory
	Scalar     interface{}
	LocalBytes int64
}

// BufferArg passes device memory by reference
func BufferArg(m Memory) Arg { return Arg{Kind: ArgBuffer, Memory: m} }

// ScalarArg passes a value (int32, uint32, int64, float32 or float64)
func ScalarArg(v interface{}) Arg { return Arg{Kind: ArgScalar, Scalar: v} }

// LocalArg requests bytes of scratch memory private to each work-group
func LocalArg(bytes int64) Arg { return Arg{Kind: ArgLocal, LocalBytes: bytes} }

// Memory is a fixed-capacity device allocation
type Memory interface {
	Size() int64
	Access() AccessMode
	Free()
}

// Timestamps are the four device-reported nanosecond marks of one command
type Timestamps struct {
	Queued    uint64
	Submitted uint64
	Started   uint64
	Ended     uint64
}

// ErrProfilingUnavailable is returned by Event.Profile when the device
// cannot report command timestamps.
var ErrProfilingUnavailable = errors.New("profiling unavailable")

// Event tracks completion of one enqueued command
type Event interface {
	// Wait blocks until the command completes and returns its error
	Wait() error
	// Done reports completion without blocking
	Done() bool
	// Profile waits for completion and returns the command timestamps
	Profile() (Timestamps, error)
}

// Kernel is a compiled entry point
type Kernel interface {
	Name() string
}

// Program is the result of compiling one kernel source text
type Program interface {
	Kernel(name string) (Kernel, error)
	Names() []string
	Free()
}

// BuildOptions are passed to the compiler with the source text
type BuildOptions struct {
	Preamble string
	Flags    string
}

// Info describes the device a session is bound to
type Info struct {
	Backend          string
	Platform         string
	Device           string
	PlatformIndex    int
	DeviceIndex      int
	MaxWorkGroupSize int
	Profiling        bool
}

// Session owns a device context and its single in-order command queue.
// Commands execute in the order they are enqueued.
type Session interface {
	ID() string
	Info() Info

	Malloc(size int64, access AccessMode) (Memory, error)
	EnqueueWrite(mem Memory, offset int64, src []byte, blocking bool) (Event, error)
	EnqueueRead(mem Memory, offset int64, dst []byte, blocking bool) (Event, error)
	EnqueueFill(mem Memory, pattern []byte, blocking bool) (Event, error)

	Build(source string, opts BuildOptions) (Program, error)
	EnqueueKernel(k Kernel, args []Arg, global, local Extent) (Event, error)

	// Finish blocks until every enqueued command has completed
	Finish() error
	Free()
}

// Platform lists the devices reachable through one platform
type Platform struct {
	Index   int
	Name    string
	Vendor  string
	Devices []Descriptor
}

// Descriptor names one device of a platform
type Descriptor struct {
	Index       int
	Name        string
	Description string
}

// Lister enumerates platforms and devices
type Lister interface {
	Platforms() ([]Platform, error)
}

// FormatPlatforms renders a platform listing for display
func FormatPlatforms(platforms []Platform) string {
	var sb strings.Builder
	for _, p := range platforms {
		sb.WriteString(fmt.Sprintf("Platform %d, %s", p.Index, p.Name))
		if p.Vendor != "" {
			sb.WriteString(fmt.Sprintf(", %s", p.Vendor))
		}
		sb.WriteString("\n")
		for _, d := range p.Devices {
			sb.WriteString(fmt.Sprintf("\tDevice %d, %s", d.Index, d.Name))
			if d.Description != "" {
				sb.WriteString(fmt.Sprintf(", %s", d.Description))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
