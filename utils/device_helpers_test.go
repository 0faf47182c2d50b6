package utils

import (
	"fmt"
	"strings"
	"testing"

	"github.com/notargets/gpuprims/device"
	"github.com/notargets/gpuprims/device/software"
)

func TestOpenSession(t *testing.T) {
	t.Run("Software", func(t *testing.T) {
		s, err := OpenSession(SessionOptions{Backend: BackendSoftware})
		if err != nil {
			t.Fatalf("OpenSession: %v", err)
		}
		defer s.Free()
		if s.Info().Backend != software.BackendName {
			t.Errorf("expected software backend, got %s", s.Info().Backend)
		}
	})

	t.Run("Auto", func(t *testing.T) {
		s, err := OpenSession(SessionOptions{Backend: BackendAuto})
		if err != nil {
			t.Fatalf("auto backend should always fall back to software: %v", err)
		}
		s.Free()
	})

	t.Run("AutoExplicitPlatform", func(t *testing.T) {
		listers, err := Listers(BackendAuto)
		if err != nil {
			t.Fatal(err)
		}
		listing, err := ListPlatforms(listers...)
		if err != nil {
			t.Fatal(err)
		}
		want := fmt.Sprintf("Platform %d, %s", occaPlatforms(), software.PlatformName)
		if !strings.Contains(listing, want) {
			t.Fatalf("listing should show %q:\n%s", want, listing)
		}

		s, err := OpenSession(SessionOptions{Backend: BackendAuto, PlatformIndex: occaPlatforms(), PlatformSet: true})
		if err != nil {
			t.Fatalf("the listed software index should open: %v", err)
		}
		if s.Info().Backend != software.BackendName {
			t.Errorf("expected the software backend, got %s", s.Info().Backend)
		}
		s.Free()

		_, err = OpenSession(SessionOptions{Backend: BackendAuto, PlatformIndex: occaPlatforms() + 1, PlatformSet: true})
		if !device.IsKind(err, device.KindDevice) {
			t.Errorf("an unlisted platform must not fall back, got %v", err)
		}
	})

	t.Run("BadDevice", func(t *testing.T) {
		_, err := OpenSession(SessionOptions{Backend: BackendSoftware, DeviceIndex: 5})
		if !device.IsKind(err, device.KindDevice) {
			t.Errorf("expected a device error, got %v", err)
		}
	})

	t.Run("UnknownBackend", func(t *testing.T) {
		_, err := OpenSession(SessionOptions{Backend: "vulkan"})
		if !device.IsKind(err, device.KindConfiguration) {
			t.Errorf("expected a configuration error, got %v", err)
		}
	})
}

func TestListPlatforms(t *testing.T) {
	listers, err := Listers(BackendAuto)
	if err != nil {
		t.Fatal(err)
	}
	out, err := ListPlatforms(listers...)
	if err != nil {
		t.Fatalf("ListPlatforms: %v", err)
	}
	if !strings.Contains(out, software.PlatformName) {
		t.Errorf("listing should include the software platform:\n%s", out)
	}
	if _, err = Listers("vulkan"); err == nil {
		t.Error("expected an error for an unknown backend")
	}
}

func TestShiftedLister(t *testing.T) {
	platforms, err := shiftedLister{software.Lister{}, 3}.Platforms()
	if err != nil {
		t.Fatal(err)
	}
	if len(platforms) != 1 || platforms[0].Index != 3 {
		t.Errorf("expected the software platform at index 3, got %+v", platforms)
	}
	// the wrapped lister keeps its own numbering
	base, err := software.Lister{}.Platforms()
	if err != nil {
		t.Fatal(err)
	}
	if base[0].Index != 0 {
		t.Errorf("expected index 0, got %d", base[0].Index)
	}
}

func TestCreateTestSession(t *testing.T) {
	s := CreateTestSession()
	defer s.Free()
	if s.ID() == "" {
		t.Error("session should have an ID")
	}
}
