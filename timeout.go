package async

import "time"

// timeoutScope tracks one WithTimeout frame on a task's stack. Scopes nest;
// signal delivery checks the innermost scope first. A scope fires at most
// once.
type timeoutScope struct {
	d       time.Duration
	expired bool
	fired   bool
	tm      *timer
}

// WithTimeout runs fn in the current task under a deadline of d. If the
// deadline fires first, a scoped cancellation is delivered at fn's current
// or next suspension point, unwinding fn (deferred cleanup runs) and
// surfacing here as a [*TimeoutError] — the enclosing task keeps running
// unless the caller propagates the error. If fn returns first, the timer is
// cancelled and has no further effect.
//
// Nested calls each track their own deadline; the innermost firing deadline
// wins. The deadline is only observable at suspension points: a block that
// never suspends cannot be interrupted.
func (t *Task) WithTimeout(d time.Duration, fn func() error) (err error) {
	t.mustBeCurrent("WithTimeout")
	if fn == nil {
		panic("async: WithTimeout requires a function")
	}

	r := t.r
	sc := &timeoutScope{d: d}
	sc.tm = r.timers.after(r.clock.Now(), d, func() {
		sc.expired = true
		t.interrupt()
	})
	t.timeouts = append(t.timeouts, sc)

	defer func() {
		t.timeouts = t.timeouts[:len(t.timeouts)-1]
		r.timers.cancel(sc.tm)

		if rec := recover(); rec != nil {
			ts, ok := rec.(*timeoutSignal)
			if !ok || ts.scope != sc {
				// Not ours: a stop signal or an outer scope's deadline.
				panic(rec)
			}
			err = &TimeoutError{After: d}
		}
	}()

	return fn()
}
