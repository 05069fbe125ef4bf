// Package dispatch runs fire-and-forget tasks on a bounded worker pool.
// Submit never blocks: when the queue is full the new task is dropped.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrPoolNotStarted     = errors.New("dispatch: pool not started")
	ErrPoolAlreadyStarted = errors.New("dispatch: pool already started")
	ErrPoolStopped        = errors.New("dispatch: pool stopped")
	ErrQueueFull          = errors.New("dispatch: queue full")
	ErrStopTimeout        = errors.New("dispatch: timed out waiting for tasks")
)

const (
	defaultWorkers   = 8
	defaultQueueSize = 1024
)

// Task is a unit of background work.
type Task func(ctx context.Context)

// DropFunc is called for every task rejected by a full queue.
type DropFunc func()

// Pool executes submitted tasks on a fixed number of goroutines.
type Pool struct {
	workers int
	tasks   chan Task
	onDrop  DropFunc
	log     zerolog.Logger

	wg          sync.WaitGroup
	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted atomic.Int64
	completed atomic.Int64
	dropped   atomic.Int64
	panicked  atomic.Int64
}

// NewPool returns a stopped pool. Non-positive sizes fall back to defaults.
func NewPool(workers, queueSize int, onDrop DropFunc, logger zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Pool{
		workers: workers,
		tasks:   make(chan Task, queueSize),
		onDrop:  onDrop,
		log:     logger.With().Str("component", "dispatch").Logger(),
	}
}

// Start launches the workers; tasks receive ctx.
func (p *Pool) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	if p.started {
		return ErrPoolAlreadyStarted
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.log.Debug().Msgf("Started %d workers", p.workers)
	return nil
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(ctx, task)
	}
}

func (p *Pool) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.log.Error().Msgf("Task panicked: %v", r)
		}
		p.completed.Add(1)
	}()
	task(ctx)
}

// Submit enqueues task without blocking. A full queue returns
// ErrQueueFull and calls the drop hook; a pool that is not running returns
// ErrPoolNotStarted or ErrPoolStopped.
func (p *Pool) Submit(task Task) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	switch {
	case !p.started:
		p.dropped.Add(1)
		return ErrPoolNotStarted
	case p.stopped:
		p.dropped.Add(1)
		return ErrPoolStopped
	}
	select {
	case p.tasks <- task:
		p.submitted.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		if p.onDrop != nil {
			p.onDrop()
		}
		return ErrQueueFull
	}
}

// Stop rejects new tasks and waits up to timeout for queued ones.
func (p *Pool) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if !p.started {
		p.lifecycleMu.Unlock()
		return ErrPoolNotStarted
	}
	if p.stopped {
		p.lifecycleMu.Unlock()
		return ErrPoolStopped
	}
	p.stopped = true
	close(p.tasks)
	p.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%w after %s (%d queued)", ErrStopTimeout, timeout, len(p.tasks))
	}
}

// Stats of the pool.
type Stats struct {
	Submitted int64
	Completed int64
	Dropped   int64
	Panicked  int64
}

func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Dropped:   p.dropped.Load(),
		Panicked:  p.panicked.Load(),
	}
}
