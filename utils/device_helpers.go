package utils

import (
	"errors"
	"fmt"

	"github.com/notargets/gpuprims/device"
	"github.com/notargets/gpuprims/device/software"
)

const (
	BackendAuto     = "auto"
	BackendSoftware = software.BackendName
	BackendOCCA     = "occa"
)

// SessionOptions selects a backend and a platform/device pair on it
type SessionOptions struct {
	Backend          string
	OCCAMode         string // overrides PlatformIndex on the OCCA backend
	PlatformIndex    int
	PlatformSet      bool // PlatformIndex was chosen by the user
	DeviceIndex      int
	Workers          int
	DisableProfiling bool
}

// OpenSession opens a device session. Without an explicit platform the auto
// backend tries the parallel OCCA modes first and falls back to the software
// device; with one it opens the platform numbered as in the auto listing.
func OpenSession(opts SessionOptions) (device.Session, error) {
	switch opts.Backend {
	case BackendSoftware:
		return openSoftware(opts)
	case BackendOCCA:
		return openOCCA(opts)
	case BackendAuto, "":
		if opts.PlatformSet || opts.OCCAMode != "" {
			return openAutoPlatform(opts)
		}
		var errs []error
		for _, mode := range []string{"OpenMP", "CUDA"} {
			s, err := openOCCAMode(mode, opts.DeviceIndex)
			if err == nil {
				return s, nil
			}
			errs = append(errs, err)
		}
		s, err := openSoftware(opts)
		if err != nil {
			return nil, errors.Join(append(errs, err)...)
		}
		return s, nil
	}
	return nil, device.Errorf(device.KindConfiguration, "OpenSession",
		"unknown backend %q (want %s, %s or %s)", opts.Backend, BackendAuto, BackendSoftware, BackendOCCA)
}

// openAutoPlatform maps an auto listing index to a backend: the OCCA modes
// come first, the software device follows them.
func openAutoPlatform(opts SessionOptions) (device.Session, error) {
	n := occaPlatforms()
	if opts.OCCAMode != "" || opts.PlatformIndex < n {
		return openOCCA(opts)
	}
	opts.PlatformIndex -= n
	return openSoftware(opts)
}

func openSoftware(opts SessionOptions) (device.Session, error) {
	return software.Open(software.Config{
		PlatformIndex:    opts.PlatformIndex,
		DeviceIndex:      opts.DeviceIndex,
		Workers:          opts.Workers,
		DisableProfiling: opts.DisableProfiling,
	})
}

// Listers returns the platform listers of a backend
func Listers(backend string) ([]device.Lister, error) {
	switch backend {
	case BackendSoftware:
		return []device.Lister{software.Lister{}}, nil
	case BackendOCCA:
		return []device.Lister{occaLister()}, nil
	case BackendAuto, "":
		return []device.Lister{occaLister(), shiftedLister{software.Lister{}, occaPlatforms()}}, nil
	}
	return nil, device.Errorf(device.KindConfiguration, "Listers", "unknown backend %q", backend)
}

// shiftedLister numbers the platforms of a lister from offset
type shiftedLister struct {
	device.Lister
	offset int
}

func (l shiftedLister) Platforms() ([]device.Platform, error) {
	platforms, err := l.Lister.Platforms()
	for i := range platforms {
		platforms[i].Index += l.offset
	}
	return platforms, err
}

// ListPlatforms renders every platform the listers can reach. Listers that
// fail are skipped unless all of them fail.
func ListPlatforms(listers ...device.Lister) (string, error) {
	var (
		out  string
		errs []error
	)
	for _, l := range listers {
		platforms, err := l.Platforms()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out += device.FormatPlatforms(platforms)
	}
	if out == "" && len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return out, nil
}

// CreateTestSession creates the software device for testing
func CreateTestSession() device.Session {
	s, err := software.Open(software.Config{})
	if err != nil {
		panic(fmt.Sprintf("Failed to create test session: %v", err))
	}
	return s
}
