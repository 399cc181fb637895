package session

import (
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// FatalError is what a worker reports when it stops abnormally: either the
// error its loop returned, or a recovered panic with the stack it unwound.
type FatalError struct {
	Err   error
	Panic any
	Stack []byte
}

func (e *FatalError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("worker panicked: %v", e.Panic)
	}
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Worker runs one function on its own goroutine. The errgroup holds the
// result, so Wait can be called any number of times from any goroutine.
type Worker struct {
	g    errgroup.Group
	done chan struct{}
}

// StartWorker runs fn in the background. A non-nil error or a panic from fn
// is reported by Wait as a *FatalError.
func StartWorker(fn func() error) *Worker {
	w := &Worker{done: make(chan struct{})}

	w.g.Go(func() (err error) {
		defer close(w.done)
		defer func() {
			if r := recover(); r != nil {
				err = &FatalError{
					Err:   fmt.Errorf("worker panicked: %v", r),
					Panic: r,
					Stack: debug.Stack(),
				}
			}
		}()
		if err := fn(); err != nil {
			return &FatalError{Err: err}
		}
		return nil
	})

	return w
}

// Done is closed once the worker has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the worker returns and reports its error.
func (w *Worker) Wait() error {
	return w.g.Wait()
}
