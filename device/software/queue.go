package software

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/notargets/gpuprims/device"
)

// event tracks one command on the software queue
type event struct {
	ts        device.Timestamps
	done      chan struct{}
	err       error
	profiling bool
}

func (e *event) Wait() error {
	<-e.done
	return e.err
}

func (e *event) Done() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

func (e *event) Profile() (device.Timestamps, error) {
	<-e.done
	if !e.profiling {
		return device.Timestamps{}, device.ErrProfilingUnavailable
	}
	return e.ts, nil
}

type command struct {
	run func() error
	ev  *event
}

// queue is an in-order command queue served by a single goroutine
type queue struct {
	mu       sync.Mutex
	commands chan *command
	stopped  chan struct{}
	closed   bool
	clock    func() uint64
}

func newQueue(depth int, clock func() uint64) *queue {
	q := &queue{
		commands: make(chan *command, depth),
		stopped:  make(chan struct{}),
		clock:    clock,
	}
	go q.worker()
	return q
}

// worker executes commands strictly in enqueue order
func (q *queue) worker() {
	defer close(q.stopped)
	for cmd := range q.commands {
		cmd.ev.ts.Submitted = q.clock()
		cmd.ev.ts.Started = q.clock()
		cmd.ev.err = protect(cmd.run)
		cmd.ev.ts.Ended = q.clock()
		close(cmd.ev.done)
	}
}

func (q *queue) enqueue(run func() error, profiling bool) (*event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, fmt.Errorf("command queue is closed")
	}
	ev := &event{
		done:      make(chan struct{}),
		profiling: profiling,
	}
	ev.ts.Queued = q.clock()
	q.commands <- &command{run: run, ev: ev}
	return ev, nil
}

// close drains the queue and stops the worker
func (q *queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.commands)
	q.mu.Unlock()
	<-q.stopped
}

// protect turns a panic inside a command into the command's error
func protect(run func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command faulted: %v\n%s", r, debug.Stack())
		}
	}()
	return run()
}
