package main

import (
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/notargets/gpuprims/config"
	"github.com/notargets/gpuprims/primitives"
)

// options are the flag destinations of one invocation
type options struct {
	platform   int64
	device     int64
	list       bool
	backend    string
	occaMode   string
	workers    int64
	configPath string
	kernels    string
	buildFlags string
	algorithm  string
	localSize  int64
	maxBins    int64
	input      string
	width      int64
	bins       int64
	histMin    int64
	histMax    int64
	neutral    int64
	logLevel   string
	logFormat  string
	json       bool
	resolution string
}

func (o *options) deviceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "platform",
			Aliases:     []string{"p"},
			Usage:       "select platform",
			Destination: &o.platform,
		},
		&cli.Int64Flag{
			Name:        "device",
			Aliases:     []string{"d"},
			Usage:       "select device",
			Destination: &o.device,
		},
		&cli.BoolFlag{
			Name:        "list",
			Aliases:     []string{"l"},
			Usage:       "list all platforms and devices",
			Destination: &o.list,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "device backend (auto, software, occa)",
			Destination: &o.backend,
		},
		&cli.StringFlag{
			Name:        "occa-mode",
			Usage:       "OCCA mode (Serial, OpenMP, CUDA, HIP, OpenCL, Metal); overrides -p on the occa backend",
			Destination: &o.occaMode,
		},
		&cli.Int64Flag{
			Name:        "workers",
			Usage:       "software device worker goroutines (default: number of CPUs)",
			Destination: &o.workers,
		},
	}
}

func (o *options) runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default: " + config.Path() + ")",
			Destination: &o.configPath,
		},
		&cli.StringFlag{
			Name:        "kernels",
			Usage:       "kernel source file (default: embedded primitives.okl)",
			Destination: &o.kernels,
		},
		&cli.StringFlag{
			Name:        "build-flags",
			Usage:       "kernel compiler flags",
			Destination: &o.buildFlags,
		},
		&cli.StringFlag{
			Name:        "algorithm",
			Aliases:     []string{"a"},
			Usage:       "algorithm to run (" + strings.Join(primitives.Algorithms(), ", ") + ")",
			Destination: &o.algorithm,
		},
		&cli.Int64Flag{
			Name:        "local-size",
			Usage:       "work-group size",
			Destination: &o.localSize,
		},
		&cli.Int64Flag{
			Name:        "max-bins",
			Usage:       "local histogram capacity of histogram-complex",
			Destination: &o.maxBins,
		},
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "YAML input file with the operands, e.g. 'a: [0, 1, 2]' and 'b: [3, 4, 5]'; '-' reads stdin",
			Destination: &o.input,
		},
		&cli.Int64Flag{
			Name:        "width",
			Usage:       "row width of add2d",
			Destination: &o.width,
		},
	}
}

func (o *options) histogramFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "bins",
			Usage:       "number of histogram bins",
			Destination: &o.bins,
		},
		&cli.Int64Flag{
			Name:        "min",
			Usage:       "lowest value counted",
			Destination: &o.histMin,
		},
		&cli.Int64Flag{
			Name:        "max",
			Usage:       "highest value counted",
			Destination: &o.histMax,
		},
		&cli.Int64Flag{
			Name:        "neutral",
			Usage:       "pad value of the histogram input, outside [min, max]",
			Destination: &o.neutral,
		},
	}
}

func (o *options) outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Destination: &o.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, text, json)",
			Destination: &o.logFormat,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "print the report as JSON",
			Destination: &o.json,
		},
		&cli.StringFlag{
			Name:        "resolution",
			Usage:       "profiling resolution (ns, us, ms, s)",
			Destination: &o.resolution,
		},
	}
}

func (o *options) flags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, o.deviceFlags()...)
	flags = append(flags, o.runFlags()...)
	flags = append(flags, o.histogramFlags()...)
	return append(flags, o.outputFlags()...)
}

// apply overrides the resolved file settings with every flag set on the
// command line
func (o *options) apply(c *cli.Command, s config.Settings) config.Settings {
	if c.IsSet("platform") {
		s.Platform = int(o.platform)
		s.PlatformSet = true
	}
	if c.IsSet("device") {
		s.Device = int(o.device)
	}
	if c.IsSet("backend") {
		s.Backend = o.backend
	}
	if c.IsSet("occa-mode") {
		s.OCCAMode = o.occaMode
	}
	if c.IsSet("workers") {
		s.Workers = int(o.workers)
	}
	if c.IsSet("kernels") {
		s.Kernels = o.kernels
	}
	if c.IsSet("build-flags") {
		s.BuildFlags = o.buildFlags
	}
	if c.IsSet("algorithm") {
		s.Algorithm = o.algorithm
	}
	if c.IsSet("local-size") {
		s.WorkGroupSize = int(o.localSize)
	}
	if c.IsSet("max-bins") {
		s.MaxBins = int(o.maxBins)
	}
	if c.IsSet("input") {
		s.Input = o.input
	}
	if c.IsSet("width") {
		s.Width = int(o.width)
	}
	if c.IsSet("bins") {
		s.Histogram.Bins = int(o.bins)
	}
	if c.IsSet("min") {
		s.Histogram.Min = int32(o.histMin)
	}
	if c.IsSet("max") {
		s.Histogram.Max = int32(o.histMax)
	}
	if c.IsSet("neutral") {
		neutral := int32(o.neutral)
		s.Histogram.Sentinel = &neutral
	}
	if c.IsSet("log-level") {
		s.LogLevel = o.logLevel
	}
	if c.IsSet("log-format") {
		s.LogFormat = o.logFormat
	}
	if c.IsSet("resolution") {
		s.Resolution = o.resolution
	}
	return s
}

// filterArgs drops what the parser would reject: unknown flags, positional
// arguments and a trailing flag whose value is missing. Every flag that
// takes a value consumes the next argument, as -p -5 does.
func filterArgs(args []string, flags []cli.Flag) []string {
	if len(args) == 0 {
		return args
	}
	takesValue := map[string]bool{"h": false, "help": false}
	for _, f := range flags {
		_, isBool := f.(*cli.BoolFlag)
		for _, name := range f.Names() {
			takesValue[name] = !isBool
		}
	}

	out := []string{args[0]}
	for i := 1; i < len(args); i++ {
		arg := args[i]
		if arg == "-" || !strings.HasPrefix(arg, "-") {
			continue
		}
		name, _, inline := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		value, known := takesValue[name]
		if !known {
			continue
		}
		if !value || inline {
			out = append(out, arg)
			continue
		}
		if i+1 == len(args) {
			continue
		}
		out = append(out, arg, args[i+1])
		i++
	}
	return out
}
