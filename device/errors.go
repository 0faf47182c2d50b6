package device

import (
	"errors"
	"fmt"
)

// ErrorKind classifies harness failures. None of them are retried.
type ErrorKind int

const (
	// No matching platform or device
	KindDevice ErrorKind = iota + 1
	// Kernel source failed to compile
	KindBuild
	// Invalid work-group size, unbound or mismatched kernel argument, capacity exceeded
	KindConfiguration
	// Device-side failure during upload, fill or download
	KindTransfer
	// Device-side failure during a kernel dispatch
	KindDispatch
	// Output/display layer failure
	KindDisplay
)

func (k ErrorKind) String() string {
	switch k {
	case KindDevice:
		return "device"
	case KindBuild:
		return "build"
	case KindConfiguration:
		return "configuration"
	case KindTransfer:
		return "transfer"
	case KindDispatch:
		return "dispatch"
	case KindDisplay:
		return "display"
	default:
		return "unknown"
	}
}

// Error is a classified failure carrying the operation that raised it
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error in %s: %s: %v", e.Kind, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error in %s: %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error
func NewError(kind ErrorKind, op, message string, err error) error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Errorf creates a classified error with a formatted message
func Errorf(kind ErrorKind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// BuildDiagnostic reports a failed compilation verbatim
type BuildDiagnostic struct {
	Status  string
	Options string
	Log     string
	Err     error
}

func (d *BuildDiagnostic) Error() string {
	return fmt.Sprintf("build failed (status %s)", d.Status)
}

func (d *BuildDiagnostic) Unwrap() error {
	return d.Err
}

// Report renders status, options and the full log the way a build failure is shown to the user
func (d *BuildDiagnostic) Report() string {
	return fmt.Sprintf("Build Status: %s\nBuild Options:\t%s\nBuild Log:\t %s\n", d.Status, d.Options, d.Log)
}

// KindOf returns the kind of the first classified error in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var bd *BuildDiagnostic
	var de *Error
	switch {
	case err == nil:
		return 0, false
	case errors.As(err, &de):
		return de.Kind, true
	case errors.As(err, &bd):
		return KindBuild, true
	}
	return 0, false
}

// IsKind reports whether err is classified as kind
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
