//go:build !occa

package utils

import (
	"github.com/notargets/gpuprims/device"
)

func openOCCA(SessionOptions) (device.Session, error) {
	return nil, device.Errorf(device.KindDevice, "OpenSession", "OCCA backend not compiled in (build with -tags occa)")
}

func openOCCAMode(mode string, _ int) (device.Session, error) {
	return nil, device.Errorf(device.KindDevice, "OpenSession", "OCCA %s mode not compiled in", mode)
}

func occaPlatforms() int {
	return 0
}

type noOCCA struct{}

func (noOCCA) Platforms() ([]device.Platform, error) {
	return nil, device.Errorf(device.KindDevice, "Platforms", "OCCA backend not compiled in (build with -tags occa)")
}

func occaLister() device.Lister {
	return noOCCA{}
}
