package engine

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrSchedulerClosed is returned by Go after Shutdown.
var ErrSchedulerClosed = errors.New("scheduler is shut down")

// Task is a dispatched run. It carries its own cancellation and a channel
// closed on completion.
type Task struct {
	ID     string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel asks the run to stop. It does not wait.
func (t *Task) Cancel() { t.cancel() }

// Err returns the run's error once Done is closed.
func (t *Task) Err() error {
	<-t.done
	return t.err
}

// Scheduler dispatches runs in the background and bounds the stage work of
// all runs with a shared weighted semaphore.
type Scheduler struct {
	sem *semaphore.Weighted

	mu     sync.Mutex
	tasks  map[string]*Task
	closed bool
	wg     sync.WaitGroup
}

func NewScheduler(poolSize int64) *Scheduler {
	if poolSize < 1 {
		poolSize = 1
	}
	return &Scheduler{
		sem:   semaphore.NewWeighted(poolSize),
		tasks: make(map[string]*Task),
	}
}

// Go starts fn in its own goroutine under a cancellable child of ctx and
// returns immediately.
func (s *Scheduler) Go(ctx context.Context, id string, fn func(ctx context.Context) error) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSchedulerClosed
	}

	runCtx, cancel := context.WithCancel(ctx)
	t := &Task{ID: id, cancel: cancel, done: make(chan struct{})}
	s.tasks[id] = t
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer cancel()
		t.err = fn(runCtx)

		s.mu.Lock()
		delete(s.tasks, id)
		s.mu.Unlock()
		close(t.done)
	}()
	return t, nil
}

// Task returns the in-flight task with id.
func (s *Scheduler) Task(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Do runs fn on the shared pool. It returns ctx.Err() as soon as ctx ends,
// even if fn has not returned; the pool slot is held until fn does.
func (s *Scheduler) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		defer s.sem.Release(1)
		errc <- fn(ctx)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		select {
		case err := <-errc:
			return err
		default:
			return ctx.Err()
		}
	}
}

// Shutdown stops accepting runs and waits for in-flight ones. When ctx ends
// first, the remaining runs are cancelled and Shutdown still waits for them
// to record their outcome.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for _, t := range s.tasks {
			t.cancel()
		}
		s.mu.Unlock()
		<-done
		return ctx.Err()
	}
}
