package syncutil

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Spawner limits the number of simultaneously running goroutines to a
// fixed capacity. Permits are granted in FIFO order by
// semaphore.Weighted.
type Spawner struct {
	sem *semaphore.Weighted
}

// NewSpawner creates a Spawner with the given concurrency capacity.
func NewSpawner(capacity int64) *Spawner {
	return &Spawner{sem: semaphore.NewWeighted(capacity)}
}

// Task is a handle to a spawned goroutine's eventual result.
type Task[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Wait blocks until the task completes or ctx is done, whichever comes
// first. Waiting does not consume or leak the task's semaphore permit;
// that permit is released by the goroutine itself regardless of
// whether anyone ever calls Wait.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Spawn blocks until a permit is available, then starts fn in a new
// goroutine and returns a handle to its result. If ctx is cancelled
// before a permit becomes available, Spawn returns the context error
// and leaks no permit.
func Spawn[T any](ctx context.Context, s *Spawner, fn func(ctx context.Context) (T, error)) (*Task[T], error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	t := &Task[T]{done: make(chan struct{})}
	go func() {
		defer s.sem.Release(1)
		defer close(t.done)
		defer func() {
			if r := recover(); r != nil {
				t.err = fmt.Errorf("panic in spawned task: %v", r)
			}
		}()
		t.val, t.err = fn(ctx)
	}()
	return t, nil
}
