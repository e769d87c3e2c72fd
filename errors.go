package async

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

// NoValue is the result of a task that was stopped before producing a value.
// [Task.Wait] and [Task.Result] return it, with a nil error, for stopped
// tasks so that callers can tell "stopped" apart from "completed with nil".
type NoValue struct{}

func (NoValue) String() string { return "<no value>" }

// ErrDeadlock is returned by [Reactor.Run] when no task is runnable, no timer
// is pending, and no event source can produce further wakeups. The task tree
// is stopped before the reactor returns it.
var ErrDeadlock = errors.New("async: deadlock: no runnable tasks, timers, or event sources")

// stopSignal is the cooperative cancellation token. It is delivered as a
// panic at a task's suspension point so that the task's call stack unwinds
// through its deferred cleanup, and is recovered by the task trampoline.
type stopSignal struct{}

// timeoutSignal is the scoped variant of the stop signal, delivered when a
// [Task.WithTimeout] deadline fires. It unwinds only as far as the matching
// WithTimeout frame, which converts it into a *TimeoutError.
type timeoutSignal struct {
	scope *timeoutScope
}

// IsStop reports whether a recovered panic value is a cancellation or
// timeout signal. Task code that uses recover for its own purposes must
// re-panic such values, or cancellation would be silently defeated:
//
//	defer func() {
//	    if v := recover(); v != nil {
//	        if async.IsStop(v) {
//	            panic(v)
//	        }
//	        // handle own panic
//	    }
//	}()
func IsStop(v any) bool {
	switch v.(type) {
	case stopSignal, *timeoutSignal:
		return true
	}
	return false
}

// TimeoutError is returned by [Task.WithTimeout] when the deadline fires
// before the block completes. It is distinguishable from a full task stop:
// the enclosing task keeps running unless the caller propagates the error.
type TimeoutError struct {
	// After is the deadline that was exceeded.
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("async: timed out after %s", e.After)
}

// Timeout reports true. It makes *TimeoutError satisfy interfaces in the
// style of net.Error.
func (e *TimeoutError) Timeout() bool { return true }

// IsTimeout reports whether err (or any error in its chain) is a [*TimeoutError].
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// TaskError wraps an error together with the name of the task that produced
// it. [Barrier.WaitAll] wraps every task failure in a TaskError so callers
// can attribute errors to specific tasks.
type TaskError struct {
	Name string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %q failed: %v", e.Name, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// IsTaskError reports whether err (or any error in its chain) is a [*TaskError].
func IsTaskError(err error) bool {
	if err == nil {
		return false
	}
	var te *TaskError
	return errors.As(err, &te)
}

// AllTaskErrors recursively collects every [*TaskError] from err's chain,
// including errors wrapped via [errors.Join]. Returns nil if none are found.
func AllTaskErrors(err error) []*TaskError {
	if err == nil {
		return nil
	}

	var out []*TaskError
	collectTaskErrors(err, &out)
	return out
}

func collectTaskErrors(err error, out *[]*TaskError) {
	switch e := err.(type) {
	case *TaskError:
		*out = append(*out, e)

	case interface{ Unwrap() []error }:
		for _, sub := range e.Unwrap() {
			collectTaskErrors(sub, out)
		}

	case interface{ Unwrap() error }:
		collectTaskErrors(e.Unwrap(), out)
	}
}

// PanicError wraps a panic that escaped task code, together with the
// goroutine stack trace captured at the point of the panic.
//
// A panic in a task is treated as non-recoverable: it is never captured as
// the task's result. The reactor aborts and re-panics the *PanicError out of
// [Reactor.Run], so catastrophic failures are never hidden behind a task
// boundary.
type PanicError struct {
	// Value is the original value passed to panic().
	Value any

	// Stack is the goroutine stack trace at the point of panic.
	Stack string
}

// Error returns a human-readable representation of the panic,
// including the value and the full stack trace.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", e.Value, e.Stack)
}

// Unwrap returns nil. PanicError does not wrap another error.
func (e *PanicError) Unwrap() error { return nil }

func newPanicError(v any) *PanicError {
	// 8 KiB is enough for most stack traces. runtime.Stack truncates
	// gracefully if the buffer is too small.
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &PanicError{
		Value: v,
		Stack: string(buf[:n]),
	}
}
