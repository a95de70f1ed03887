// Package present provides the single-consumer task loop that stands in for a
// platform's presentation thread. Display mutation and delegate notification
// are marshaled through it so they always run one at a time, in order.
package present

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Executor runs submitted tasks sequentially on a single background goroutine.
// Do never blocks the caller; tasks run in submission order.
type Executor struct {
	logger zerolog.Logger

	mu      sync.Mutex
	queue   *list.List
	started bool
	stopped bool

	wake chan struct{}
	quit chan struct{}
	wg   sync.WaitGroup
}

// NewExecutor creates an Executor. Start must be called before tasks run;
// tasks submitted earlier are queued.
func NewExecutor(logger zerolog.Logger) *Executor {
	return &Executor{
		logger: logger.With().Str("component", "PresentExecutor").Logger(),
		queue:  list.New(),
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
}

// Start begins the consuming loop. It may be called once.
func (e *Executor) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("presentation executor already started")
	}
	e.started = true
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run(ctx)

	e.logger.Info().Msg("Presentation executor started.")
	return nil
}

// Stop shuts the loop down after draining already-queued tasks, respecting the
// context's deadline while waiting.
func (e *Executor) Stop(ctx context.Context) error {
	e.logger.Info().Msg("Stopping presentation executor...")

	e.mu.Lock()
	if !e.stopped {
		e.stopped = true
		close(e.quit)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info().Msg("Presentation executor stopped.")
		return nil
	case <-ctx.Done():
		e.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for presentation executor to stop.")
		return ctx.Err()
	}
}

// Do queues a task for execution on the presentation context. It returns
// immediately. Tasks submitted after Stop are dropped.
func (e *Executor) Do(task func()) {
	if task == nil {
		return
	}
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		e.logger.Debug().Msg("Dropping task submitted after stop.")
		return
	}
	e.queue.PushBack(task)
	e.mu.Unlock()

	// Non-blocking wake; a pending signal already covers this task.
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// run is the consuming loop. Pending tasks are always drained before the loop
// reacts to shutdown, so Stop never abandons queued work.
func (e *Executor) run(ctx context.Context) {
	defer e.wg.Done()
	for {
		if task := e.next(); task != nil {
			task()
			continue
		}
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Presentation executor shutting down due to context cancellation.")
			return
		case <-e.quit:
			// A task may have been queued between the last drain and the
			// quit signal; drain once more before exiting.
			for task := e.next(); task != nil; task = e.next() {
				task()
			}
			return
		case <-e.wake:
		}
	}
}

// next pops the oldest queued task, or nil when the queue is empty.
func (e *Executor) next() func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	front := e.queue.Front()
	if front == nil {
		return nil
	}
	e.queue.Remove(front)
	return front.Value.(func())
}
