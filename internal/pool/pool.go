// Package pool implements a fixed size worker pool with a one-shot lifecycle.
//
// A pool starts Open and accepts tasks. Workers are started by the first
// Submit, so an unused pool holds no goroutines. CloseSubmissions moves it to
// Closed: queued tasks keep running but nothing new is accepted. Once every
// submitted task has finished the pool is Terminated and stays so.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/profile-matcher/internal/metrics"
)

// DefaultSize is the number of workers used when Options.Size is not positive.
const DefaultSize = 4

// ErrClosed is returned when submitting to or closing an already closed pool.
var ErrClosed = errors.New("pool is closed to new submissions")

// State is the pool lifecycle state.
type State int

const (
	StateOpen State = iota
	StateClosed
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Task is a unit of work. A returned error or a panic is recorded as a Fault.
type Task func() error

// Fault describes a task that failed.
type Fault struct {
	TaskID string
	Err    error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("task %s: %v", f.TaskID, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// Options configures a Pool. Zero values fall back to DefaultSize, a no-op
// logger and a private metrics registry.
type Options struct {
	Size    int
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

type queuedTask struct {
	id string
	fn Task
}

// Pool runs submitted tasks on a fixed number of goroutines.
type Pool struct {
	size    int
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	cond    *sync.Cond
	state   State
	queue   []queuedTask
	pending int
	faults  []*Fault

	started bool
	workers errgroup.Group
	done    chan struct{}
}

// New creates an open pool. Workers start on first use.
func New(opts Options) *Pool {
	size := opts.Size
	if size <= 0 {
		size = DefaultSize
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.New("")
	}

	p := &Pool{
		size:    size,
		logger:  logger,
		metrics: m,
		state:   StateOpen,
		done:    make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	return p
}

// start launches the workers once. It must be called with p.mu held.
func (p *Pool) start() {
	if p.started {
		return
	}
	p.started = true
	for i := 0; i < p.size; i++ {
		p.workers.Go(p.work)
	}
}

// Submit queues the task. It never blocks and fails with ErrClosed once
// CloseSubmissions has been called.
func (p *Pool) Submit(id string, task Task) error {
	if task == nil {
		return fmt.Errorf("task %s is nil", id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateOpen {
		return fmt.Errorf("submit task %s: %w", id, ErrClosed)
	}

	p.start()
	p.queue = append(p.queue, queuedTask{id: id, fn: task})
	p.pending++
	p.metrics.TasksSubmitted.Inc()
	p.cond.Signal()

	return nil
}

// CloseSubmissions stops accepting new tasks. It can be called only once.
func (p *Pool) CloseSubmissions() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateOpen {
		return ErrClosed
	}

	p.state = StateClosed
	p.logger.Debug("pool closed to new submissions", zap.Int("pending", p.pending))
	if p.pending == 0 {
		p.terminate()
	}
	// idle workers have to notice the state change and exit
	p.cond.Broadcast()

	return nil
}

// IsTerminated reports whether the pool is closed and every submitted task has finished.
func (p *Pool) IsTerminated() bool {
	return p.State() == StateTerminated
}

// State returns the current lifecycle state.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Pending returns the number of queued and running tasks.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Wait blocks until the pool terminates or ctx is done.
// A context error does not stop the pool.
func (p *Pool) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.workers.Wait()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Faults returns the recorded task faults.
func (p *Pool) Faults() []*Fault {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Fault(nil), p.faults...)
}

// Err combines all recorded faults, nil if there are none.
func (p *Pool) Err() error {
	var result *multierror.Error
	for _, f := range p.Faults() {
		result = multierror.Append(result, f)
	}
	return result.ErrorOrNil()
}

// terminate must be called with p.mu held.
func (p *Pool) terminate() {
	p.state = StateTerminated
	close(p.done)
	p.logger.Debug("pool terminated", zap.Int("faults", len(p.faults)))
}

func (p *Pool) work() error {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && p.state == StateOpen {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return nil
		}
		task := p.queue[0]
		p.queue[0] = queuedTask{}
		p.queue = p.queue[1:]
		p.mu.Unlock()

		err := p.run(task)

		p.mu.Lock()
		if err != nil {
			p.faults = append(p.faults, &Fault{TaskID: task.id, Err: err})
		}
		p.pending--
		if p.pending == 0 && p.state == StateClosed {
			p.terminate()
		}
		p.mu.Unlock()
	}
}

func (p *Pool) run(task queuedTask) (err error) {
	p.metrics.ActiveWorkers.Inc()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}

		p.metrics.ActiveWorkers.Dec()
		p.metrics.TaskLatency.Observe(time.Since(start).Seconds())

		if err != nil {
			p.metrics.TasksFinished.WithLabelValues(metrics.StatusFailed).Inc()
			p.logger.Error("task failed", zap.String("task_id", task.id), zap.Error(err))
			return
		}
		p.metrics.TasksFinished.WithLabelValues(metrics.StatusSuccess).Inc()
	}()

	return task.fn()
}
