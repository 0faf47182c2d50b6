package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/notargets/gpuprims/config"
	"github.com/notargets/gpuprims/device"
	"github.com/notargets/gpuprims/kernels"
	"github.com/notargets/gpuprims/logger"
	"github.com/notargets/gpuprims/primitives"
	"github.com/notargets/gpuprims/profiler"
	"github.com/notargets/gpuprims/runner"
	"github.com/notargets/gpuprims/runner/builder"
	"github.com/notargets/gpuprims/utils"
)

// settings loads the configuration file and applies the flags set on the
// command line on top of it
func settings(cmd *cli.Command, o *options) (config.Settings, error) {
	path := config.Path()
	if cmd.IsSet("config") {
		path = o.configPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Settings{}, err
	}
	s := o.apply(cmd, cfg.Resolve())
	return s, s.Validate()
}

func run(ctx context.Context, cmd *cli.Command, o *options, stdout io.Writer) error {
	s, err := settings(cmd, o)
	if err != nil {
		return err
	}
	level, _ := logger.ParseLevel(s.LogLevel)
	log, err := logger.ForFormat(s.LogFormat, os.Stderr, level)
	if err != nil {
		return device.NewError(device.KindConfiguration, "log-format", s.LogFormat, err)
	}
	ctx = logger.WithContext(ctx, log)
	res, _ := profiler.ParseResolution(s.Resolution)
	out := &display{w: stdout}

	if o.list {
		if err := listPlatforms(out, s.Backend); err != nil {
			return err
		}
	}

	a, b, err := loadInput(s.Input, s.Algorithm, os.Stdin)
	if err != nil {
		return err
	}
	report, record, err := execute(ctx, out, s, a, b)
	if err != nil {
		return err
	}
	if err := check(report, a, b); err != nil {
		log.Error("validation failed", "algorithm", report.Algorithm, "error", err)
		return err
	}
	log.Debug("validated", "algorithm", report.Algorithm, "elements", report.Elements)

	if o.json {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return device.NewError(device.KindDisplay, "report", "encode JSON", err)
		}
		return nil
	}
	printReport(out, report, a, b, record, res)
	return out.err
}

func listPlatforms(out *display, backend string) error {
	listers, err := utils.Listers(backend)
	if err != nil {
		return err
	}
	text, err := utils.ListPlatforms(listers...)
	if err != nil {
		return err
	}
	out.printf("%s\n", text)
	return out.err
}

// execute opens the device, builds the kernel source and runs the algorithm
func execute(ctx context.Context, out *display, s config.Settings, a, b []int32) (*primitives.Report, profiler.Record, error) {
	log := logger.FromContext(ctx)
	session, err := utils.OpenSession(utils.SessionOptions{
		Backend:       s.Backend,
		OCCAMode:      s.OCCAMode,
		PlatformIndex: s.Platform,
		PlatformSet:   s.PlatformSet,
		DeviceIndex:   s.Device,
		Workers:       s.Workers,
	})
	if err != nil {
		return nil, profiler.Record{}, err
	}
	defer session.Free()

	info := session.Info()
	out.printf("Running on %s, %s\n", info.Platform, info.Device)
	if !info.Profiling {
		log.Warn("device does not report profiling timestamps", "backend", info.Backend)
	}

	kr := runner.NewRunner(session, builder.Config{
		WorkGroupSize: s.WorkGroupSize,
		MaxBins:       s.MaxBins,
		IntType:       builder.INT32,
		FloatType:     builder.Float32,
	}, runner.WithLogger(log))
	defer kr.Free()

	source, err := kernelSource(s.Kernels)
	if err != nil {
		return nil, profiler.Record{}, err
	}
	if err := kr.BuildProgram(source, s.BuildFlags); err != nil {
		var diag *device.BuildDiagnostic
		if errors.As(err, &diag) {
			out.printf("%s\n", diag.Report())
		}
		return nil, profiler.Record{}, err
	}

	report, err := primitives.New(kr, log).Run(s.Algorithm, a, b, primitives.Options{
		Histogram: s.Histogram,
		Width:     s.Width,
	})
	if err != nil {
		return nil, profiler.Record{}, err
	}
	if err := kr.Finish(); err != nil {
		return nil, profiler.Record{}, err
	}
	return report, kr.Profile, out.err
}

func kernelSource(path string) (string, error) {
	if path == "" {
		return kernels.Source(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", device.NewError(device.KindConfiguration, "kernels", path, err)
	}
	return string(data), nil
}

// display keeps the first write error of the output layer
type display struct {
	w   io.Writer
	err error
}

func (d *display) printf(format string, args ...interface{}) {
	if d.err != nil {
		return
	}
	if _, err := fmt.Fprintf(d.w, format, args...); err != nil {
		d.err = device.NewError(device.KindDisplay, "output", "write failed", err)
	}
}

func printReport(out *display, r *primitives.Report, a, b []int32, record profiler.Record, res profiler.Resolution) {
	out.printf("A = %v\n", a)
	if primitives.Binary(r.Algorithm) {
		out.printf("B = %v\n", b)
	}
	switch {
	case r.Scalar != nil:
		out.printf("%s = %d\n", r.Algorithm, *r.Scalar)
	case r.Floats != nil:
		out.printf("C = %v\n", r.Floats)
	case r.Histogram != nil:
		h := r.Histogram
		out.printf("Histogram of %d bins over [%d, %d]\n", h.Bins, h.Min, h.Max)
		for i, n := range r.Vector {
			out.printf("Bin %d: %d\n", i, n)
		}
	default:
		out.printf("C = %v\n", r.Vector)
	}
	out.printf("Kernel Execution Time [%s]: %g\n", res, res.Convert(r.ElapsedNs))
	out.printf("%s", record.Format(res))
}
