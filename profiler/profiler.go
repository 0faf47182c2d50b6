// Package profiler turns device event timestamps into profiling samples
package profiler

import (
	"fmt"
	"strings"

	"github.com/notargets/gpuprims/device"
)

// Sample holds the four nanosecond marks of one command. Available is false
// when the device could not report them.
type Sample struct {
	Queued    uint64
	Submitted uint64
	Started   uint64
	Ended     uint64
	Available bool
}

// Unavailable is the sample of a command whose timing could not be read
var Unavailable = Sample{}

// FromTimestamps converts device timestamps into a sample
func FromTimestamps(ts device.Timestamps) Sample {
	return Sample{
		Queued:    ts.Queued,
		Submitted: ts.Submitted,
		Started:   ts.Started,
		Ended:     ts.Ended,
		Available: true,
	}
}

// Elapsed returns the execution time, Ended - Started
func (s Sample) Elapsed() uint64 {
	if !s.Available || s.Ended < s.Started {
		return 0
	}
	return s.Ended - s.Started
}

// Total returns the time from queueing to completion
func (s Sample) Total() uint64 {
	if !s.Available || s.Ended < s.Queued {
		return 0
	}
	return s.Ended - s.Queued
}

// Monotonic reports whether queued <= submitted <= started <= ended
func (s Sample) Monotonic() bool {
	return s.Queued <= s.Submitted && s.Submitted <= s.Started && s.Started <= s.Ended
}

// Resolution is a display unit for durations
type Resolution int

const (
	Nanoseconds Resolution = iota
	Microseconds
	Milliseconds
	Seconds
)

var resolutionNames = map[Resolution]string{
	Nanoseconds:  "ns",
	Microseconds: "us",
	Milliseconds: "ms",
	Seconds:      "s",
}

func (r Resolution) String() string {
	if name, ok := resolutionNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Resolution(%d)", int(r))
}

// Divisor returns the number of nanoseconds in one unit
func (r Resolution) Divisor() float64 {
	switch r {
	case Microseconds:
		return 1e3
	case Milliseconds:
		return 1e6
	case Seconds:
		return 1e9
	default:
		return 1
	}
}

// ParseResolution accepts ns, us, ms and s
func ParseResolution(s string) (Resolution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ns", "":
		return Nanoseconds, nil
	case "us", "µs":
		return Microseconds, nil
	case "ms":
		return Milliseconds, nil
	case "s":
		return Seconds, nil
	}
	return Nanoseconds, fmt.Errorf("unknown resolution %q (want ns, us, ms or s)", s)
}

// Convert expresses ns in the resolution's unit
func (r Resolution) Convert(ns uint64) float64 {
	return float64(ns) / r.Divisor()
}

// Format renders the elapsed time
func (s Sample) Format(r Resolution) string {
	if !s.Available {
		return "timing unavailable"
	}
	return fmt.Sprintf("%g%s", r.Convert(s.Elapsed()), r)
}

// FullInfo renders queueing, submission, execution and total times
func (s Sample) FullInfo(r Resolution) string {
	if !s.Available {
		return "timing unavailable"
	}
	return fmt.Sprintf("Queued %g%s, Submitted %g%s, Executed %g%s, Total %g%s",
		r.Convert(s.Submitted-s.Queued), r,
		r.Convert(s.Started-s.Submitted), r,
		r.Convert(s.Elapsed()), r,
		r.Convert(s.Total()), r)
}

// Around runs a dispatch and attaches the timestamps of its event. The
// dispatch itself is not delayed; the sample is read once the command has
// completed. A device without profiling support yields Unavailable, never an
// error. Errors from fn or from the command itself are returned.
func Around(fn func() (device.Event, error)) (Sample, error) {
	ev, err := fn()
	if err != nil {
		return Unavailable, err
	}
	if ev == nil {
		return Unavailable, nil
	}
	return Collect(ev)
}

// Collect waits for ev and reads its timestamps
func Collect(ev device.Event) (Sample, error) {
	if err := ev.Wait(); err != nil {
		return Unavailable, err
	}
	ts, err := ev.Profile()
	if err != nil {
		// ErrProfilingUnavailable or a backend failure reading the counters
		return Unavailable, nil
	}
	sample := FromTimestamps(ts)
	if !sample.Monotonic() {
		return Unavailable, nil
	}
	return sample, nil
}

// Record accumulates named samples in dispatch order
type Record struct {
	Names   []string
	Samples []Sample
}

// Add appends one sample
func (r *Record) Add(name string, s Sample) {
	r.Names = append(r.Names, name)
	r.Samples = append(r.Samples, s)
}

// Elapsed sums the execution time of every available sample
func (r *Record) Elapsed() uint64 {
	var total uint64
	for _, s := range r.Samples {
		total += s.Elapsed()
	}
	return total
}

// String lists every sample at resolution ns
func (r *Record) String() string {
	return r.Format(Nanoseconds)
}

// Format lists every sample at resolution res
func (r *Record) Format(res Resolution) string {
	var sb strings.Builder
	for i, name := range r.Names {
		sb.WriteString(fmt.Sprintf("%-20s %s\n", name, r.Samples[i].FullInfo(res)))
	}
	return sb.String()
}
