package detector

import (
	"context"
	"fmt"
)

// Result is the outcome of one detection call.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the detection succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Task is an in-flight detection. It completes exactly once.
type Task[T any] struct {
	done chan struct{}
	res  Result[T]
}

// Go runs fn on its own goroutine. A panic in fn completes the task with an
// error so callers waiting on it are never stranded.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer func() {
			if r := recover(); r != nil {
				t.res = Result[T]{Err: fmt.Errorf("detector panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		t.res = Result[T]{Value: v, Err: err}
	}()
	return t
}

// Done is closed when the task completes.
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// Wait blocks until the task completes and returns its result.
func (t *Task[T]) Wait() Result[T] {
	<-t.done
	return t.res
}
