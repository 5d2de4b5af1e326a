// Package executor runs submitted work items one at a time, in submission
// order, on a single worker goroutine.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"droneswarm/internal/logging"
)

// DefaultBackoff is how long an idle worker waits before polling again when
// no submit notification arrives.
const DefaultBackoff = 100 * time.Millisecond

// ErrQueueClosed is returned by Submit once finish was requested or the
// worker has stopped.
var ErrQueueClosed = errors.New("executor: queue closed")

// Task is one unit of work.
type Task func(ctx context.Context) error

// State is the lifecycle state of the executor.
type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

type item struct {
	name   string
	task   Task
	finish bool
}

// Executor is an unbounded FIFO drained by Run.
type Executor struct {
	backoff time.Duration

	mu       sync.Mutex
	queue    []item
	state    State
	finished bool
	notify   chan struct{}
	done     chan struct{}
}

// Option configures an Executor.
type Option func(*Executor)

// WithBackoff sets the idle poll interval.
func WithBackoff(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.backoff = d
		}
	}
}

// New creates an idle executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		backoff: DefaultBackoff,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Submit enqueues task. It never blocks.
func (e *Executor) Submit(name string, task Task) error {
	if task == nil {
		return fmt.Errorf("submit %q: nil task", name)
	}
	return e.enqueue(item{name: name, task: task})
}

// SubmitFinish enqueues the terminal sentinel. Items queued behind it never
// run. Calling it again is a no-op.
func (e *Executor) SubmitFinish() {
	_ = e.enqueue(item{name: "finish", finish: true})
}

func (e *Executor) enqueue(it item) error {
	e.mu.Lock()
	if e.finished || e.state == Stopped {
		e.mu.Unlock()
		if it.finish {
			return nil
		}
		return fmt.Errorf("submit %q: %w", it.name, ErrQueueClosed)
	}
	e.queue = append(e.queue, it)
	if it.finish {
		e.finished = true
	}
	e.mu.Unlock()
	select {
	case e.notify <- struct{}{}:
	default:
	}
	return nil
}

func (e *Executor) dequeue() (item, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return item{}, false
	}
	it := e.queue[0]
	e.queue[0] = item{}
	e.queue = e.queue[1:]
	return it, true
}

// State reports the lifecycle state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Pending returns the number of queued items, the sentinel included.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Done is closed when the worker stops.
func (e *Executor) Done() <-chan struct{} { return e.done }

// Run drains the queue until the finish sentinel is reached or ctx is
// cancelled. Each task completes before the next is dequeued. Run returns
// nil in both cases; calling it a second time is an error.
func (e *Executor) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.state != Idle {
		e.mu.Unlock()
		return errors.New("executor: already started")
	}
	e.state = Running
	e.mu.Unlock()

	log := logging.FromContext(ctx)
	defer func() {
		e.mu.Lock()
		e.state = Stopped
		dropped := len(e.queue)
		e.queue = nil
		e.mu.Unlock()
		if dropped > 0 {
			log.Debug("executor stopped with pending items", "dropped", dropped)
		}
		close(e.done)
	}()

	timer := time.NewTimer(e.backoff)
	defer timer.Stop()
	for {
		it, ok := e.dequeue()
		if !ok {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(e.backoff)
			select {
			case <-ctx.Done():
				log.Debug("executor cancelled")
				return nil
			case <-e.notify:
			case <-timer.C:
			}
			continue
		}
		if it.finish {
			log.Debug("executor finished")
			return nil
		}
		if ctx.Err() != nil {
			log.Debug("executor cancelled")
			return nil
		}
		e.execute(ctx, it)
	}
}

func (e *Executor) execute(ctx context.Context, it item) {
	log := logging.FromContext(ctx).With("op", it.name)
	defer func() {
		if r := recover(); r != nil {
			log.Error("work item panicked", "panic", r)
		}
	}()
	start := time.Now()
	if err := it.task(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Debug("work item cancelled")
			return
		}
		log.Error("work item failed", "err", err)
		return
	}
	log.Debug("work item done", "took", time.Since(start))
}
