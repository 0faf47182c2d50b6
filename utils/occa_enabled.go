//go:build occa

package utils

import (
	"github.com/notargets/gpuprims/device"
	"github.com/notargets/gpuprims/device/occa"
)

func openOCCA(opts SessionOptions) (device.Session, error) {
	return occa.Open(occa.Config{
		Mode:          opts.OCCAMode,
		PlatformIndex: opts.PlatformIndex,
		DeviceIndex:   opts.DeviceIndex,
	})
}

func openOCCAMode(mode string, deviceIndex int) (device.Session, error) {
	return occa.Open(occa.Config{Mode: mode, DeviceIndex: deviceIndex})
}

// occaPlatforms is the number of platform indices taken by the OCCA modes
func occaPlatforms() int {
	return len(occa.Modes)
}

func occaLister() device.Lister {
	return occa.Lister{}
}
