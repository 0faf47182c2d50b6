package profiler

import (
	"errors"
	"testing"

	"github.com/notargets/gpuprims/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvent struct {
	ts      device.Timestamps
	err     error
	profErr error
}

func (e *fakeEvent) Wait() error { return e.err }
func (e *fakeEvent) Done() bool  { return true }
func (e *fakeEvent) Profile() (device.Timestamps, error) {
	return e.ts, e.profErr
}

func TestAround(t *testing.T) {
	t.Run("timestamps", func(t *testing.T) {
		ev := &fakeEvent{ts: device.Timestamps{Queued: 100, Submitted: 150, Started: 200, Ended: 1200}}
		s, err := Around(func() (device.Event, error) { return ev, nil })
		require.NoError(t, err)
		assert.True(t, s.Available)
		assert.Equal(t, uint64(1000), s.Elapsed())
		assert.Equal(t, uint64(1100), s.Total())
	})

	t.Run("profiling unsupported degrades", func(t *testing.T) {
		ev := &fakeEvent{profErr: device.ErrProfilingUnavailable}
		s, err := Around(func() (device.Event, error) { return ev, nil })
		require.NoError(t, err)
		assert.False(t, s.Available)
		assert.Equal(t, "timing unavailable", s.Format(Microseconds))
		assert.Zero(t, s.Elapsed())
	})

	t.Run("non monotonic counters degrade", func(t *testing.T) {
		ev := &fakeEvent{ts: device.Timestamps{Queued: 10, Submitted: 5, Started: 20, Ended: 30}}
		s, err := Around(func() (device.Event, error) { return ev, nil })
		require.NoError(t, err)
		assert.False(t, s.Available)
	})

	t.Run("dispatch error propagates", func(t *testing.T) {
		want := errors.New("enqueue failed")
		_, err := Around(func() (device.Event, error) { return nil, want })
		assert.ErrorIs(t, err, want)
	})

	t.Run("command error propagates", func(t *testing.T) {
		want := errors.New("kernel faulted")
		_, err := Around(func() (device.Event, error) { return &fakeEvent{err: want}, nil })
		assert.ErrorIs(t, err, want)
	})
}

func TestFormat(t *testing.T) {
	s := Sample{Queued: 0, Submitted: 1000, Started: 3000, Ended: 8000, Available: true}
	assert.Equal(t, "5000ns", s.Format(Nanoseconds))
	assert.Equal(t, "5us", s.Format(Microseconds))
	assert.Equal(t, "0.005ms", s.Format(Milliseconds))
	assert.Equal(t, "Queued 1us, Submitted 2us, Executed 5us, Total 8us", s.FullInfo(Microseconds))
}

func TestParseResolution(t *testing.T) {
	for in, want := range map[string]Resolution{"ns": Nanoseconds, "US": Microseconds, "ms": Milliseconds, "s": Seconds, "": Nanoseconds} {
		got, err := ParseResolution(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseResolution("minutes")
	assert.Error(t, err)
}

func TestRecord(t *testing.T) {
	var r Record
	r.Add("reduce_add", Sample{Started: 10, Ended: 30, Available: true})
	r.Add("reduce_add", Unavailable)
	r.Add("scan_add", Sample{Started: 40, Ended: 45, Available: true})
	assert.Equal(t, uint64(25), r.Elapsed())
	assert.Contains(t, r.String(), "timing unavailable")
	assert.Len(t, r.Samples, 3)
}
