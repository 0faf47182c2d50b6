// Package config reads the harness configuration file
// (~/.config/gpuprims/config.yaml) and resolves it against the built-in
// defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/notargets/gpuprims/device"
	"github.com/notargets/gpuprims/logger"
	"github.com/notargets/gpuprims/primitives"
	"github.com/notargets/gpuprims/profiler"
)

// Histogram is the histogram section of the file
type Histogram struct {
	Bins    *int   `yaml:"nr_bins"`
	Min     *int32 `yaml:"min"`
	Max     *int32 `yaml:"max"`
	Neutral *int32 `yaml:"neutral"`
}

// Config represents the configuration file. All fields are pointers or
// strings so "not set" can be told apart from zero values.
type Config struct {
	// Device selection
	Backend  string `yaml:"backend"`
	OCCAMode string `yaml:"occa_mode"`
	Platform *int   `yaml:"platform"`
	Device   *int   `yaml:"device"`
	Workers  *int   `yaml:"workers"`

	// Kernel geometry
	WorkGroupSize *int   `yaml:"work_group_size"`
	MaxBins       *int   `yaml:"max_bins"`
	Kernels       string `yaml:"kernels"`
	BuildFlags    string `yaml:"build_flags"`

	// Run
	Algorithm string    `yaml:"algorithm"`
	Input     string    `yaml:"input"`
	Width     *int      `yaml:"width"`
	Histogram Histogram `yaml:"histogram"`

	// Output
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
	Resolution string `yaml:"resolution"`
}

// Settings are the resolved values of one run
type Settings struct {
	Backend  string
	OCCAMode string
	Platform int
	// PlatformSet reports a platform chosen by the file or a flag
	PlatformSet bool
	Device      int
	Workers     int

	WorkGroupSize int
	MaxBins       int
	Kernels       string
	BuildFlags    string

	Algorithm string
	Input     string
	Width     int
	Histogram primitives.HistogramOptions

	LogLevel   string
	LogFormat  string
	Resolution string
}

// Defaults of the tutorial run: ten elements in one work-group of ten, a
// histogram of ten bins over [-1, 10]. Without an explicit neutral the
// histogram pads with min-1, which is -2 for the default range.
const (
	DefaultWorkGroupSize = 10
	DefaultMaxBins       = 256
	DefaultBins          = 10
	DefaultMin           = -1
	DefaultMax           = 10
)

// Default returns the settings used when neither the file nor a flag sets a value
func Default() Settings {
	return Settings{
		Backend:       "auto",
		WorkGroupSize: DefaultWorkGroupSize,
		MaxBins:       DefaultMaxBins,
		Algorithm:     primitives.AlgScan,
		Histogram: primitives.HistogramOptions{
			Bins: DefaultBins,
			Min:  DefaultMin,
			Max:  DefaultMax,
		},
		LogLevel:   "info",
		LogFormat:  "pretty",
		Resolution: "us",
	}
}

// Path returns the default location of the configuration file
func Path() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "gpuprims", "config.yaml")
}

// Load reads the configuration file. A missing file yields a zero Config;
// a file that does not parse is an error.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, device.NewError(device.KindConfiguration, "config.Load", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, device.NewError(device.KindConfiguration, "config.Load", path, err)
	}
	return cfg, nil
}

// Resolve overlays the values set in the file on top of Default
func (c Config) Resolve() Settings {
	s := Default()
	setString(&s.Backend, c.Backend)
	setString(&s.OCCAMode, c.OCCAMode)
	setInt(&s.Platform, c.Platform)
	s.PlatformSet = c.Platform != nil
	setInt(&s.Device, c.Device)
	setInt(&s.Workers, c.Workers)

	setInt(&s.WorkGroupSize, c.WorkGroupSize)
	setInt(&s.MaxBins, c.MaxBins)
	setString(&s.Kernels, c.Kernels)
	setString(&s.BuildFlags, c.BuildFlags)

	setString(&s.Algorithm, c.Algorithm)
	setString(&s.Input, c.Input)
	setInt(&s.Width, c.Width)
	setInt(&s.Histogram.Bins, c.Histogram.Bins)
	if c.Histogram.Min != nil {
		s.Histogram.Min = *c.Histogram.Min
	}
	if c.Histogram.Max != nil {
		s.Histogram.Max = *c.Histogram.Max
	}
	if c.Histogram.Neutral != nil {
		neutral := *c.Histogram.Neutral
		s.Histogram.Sentinel = &neutral
	}

	setString(&s.LogLevel, c.LogLevel)
	setString(&s.LogFormat, c.LogFormat)
	setString(&s.Resolution, c.Resolution)
	return s
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// Validate checks the settings before any device is opened
func (s Settings) Validate() error {
	var errs []error
	if s.WorkGroupSize <= 0 {
		errs = append(errs, fmt.Errorf("work_group_size must be positive, got %d", s.WorkGroupSize))
	}
	if s.MaxBins <= 0 {
		errs = append(errs, fmt.Errorf("max_bins must be positive, got %d", s.MaxBins))
	}
	if s.Platform < 0 || s.Device < 0 {
		errs = append(errs, fmt.Errorf("platform and device indices must not be negative, got %d/%d", s.Platform, s.Device))
	}
	if s.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", s.Workers))
	}
	if s.Width < 0 {
		errs = append(errs, fmt.Errorf("width must not be negative, got %d", s.Width))
	}
	if !known(s.Algorithm) {
		errs = append(errs, fmt.Errorf("unknown algorithm %q", s.Algorithm))
	}
	h := s.Histogram
	if h.Bins <= 0 {
		errs = append(errs, fmt.Errorf("histogram nr_bins must be positive, got %d", h.Bins))
	}
	if h.Min > h.Max {
		errs = append(errs, fmt.Errorf("histogram range [%d, %d] is empty", h.Min, h.Max))
	}
	if h.Sentinel != nil && *h.Sentinel >= h.Min && *h.Sentinel <= h.Max {
		errs = append(errs, fmt.Errorf("histogram neutral %d lies inside [%d, %d]", *h.Sentinel, h.Min, h.Max))
	}
	if _, err := logger.ParseLevel(s.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := profiler.ParseResolution(s.Resolution); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return device.NewError(device.KindConfiguration, "config.Validate", "invalid settings", err)
	}
	return nil
}

func known(algorithm string) bool {
	for _, name := range primitives.Algorithms() {
		if name == algorithm {
			return true
		}
	}
	return false
}
