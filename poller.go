package async

import "time"

// Poller is the external readiness source the reactor blocks on when it has
// no runnable tasks and is waiting for the outside world. Interest is
// registered by tasks via [Task.AwaitEvent]; Poll reports which interests
// fired.
//
// The reactor calls Poll from its own thread. A timeout of -1 means block
// until an event arrives; Poll returning no tokens after an indefinite wait
// is treated as [ErrDeadlock].
type Poller interface {
	Poll(timeout time.Duration) ([]uint64, error)
}

// AwaitEvent suspends the task until the readiness source reports the given
// token. Multiple tasks may await the same token; they are woken in the
// order they registered.
//
// AwaitEvent panics if the reactor was built without [WithPoller].
func (t *Task) AwaitEvent(token uint64) {
	t.mustBeCurrent("AwaitEvent")
	r := t.r
	if r.poller == nil {
		panic("async: AwaitEvent requires a poller (see WithPoller)")
	}

	c := t.co
	r.interests[token] = append(r.interests[token], c)
	c.park(func() { r.dropInterest(token, c) })
}

func (r *Reactor) dropInterest(token uint64, c *coroutine) {
	waiting := r.interests[token]
	for i, w := range waiting {
		if w == c {
			waiting = append(waiting[:i], waiting[i+1:]...)
			break
		}
	}
	if len(waiting) == 0 {
		delete(r.interests, token)
	} else {
		r.interests[token] = waiting
	}
}

// Notifier is a Poller fed by ordinary goroutines. It is the bridge between
// the single-threaded task tree and the rest of the program: a task parks on
// [Task.AwaitEvent] and any goroutine wakes it with [Notifier.Notify].
//
// Notify is the one operation in this package that is safe to call from any
// thread.
type Notifier struct {
	events chan uint64
}

// NewNotifier creates a Notifier. Pass it to the reactor via [WithPoller].
func NewNotifier() *Notifier {
	return &Notifier{events: make(chan uint64, 128)}
}

// Notify reports the event token as ready, waking any task awaiting it.
// Notify blocks if the reactor is too far behind consuming events.
func (n *Notifier) Notify(token uint64) {
	n.events <- token
}

// Poll implements [Poller]. It blocks for the first event (up to timeout,
// indefinitely if timeout < 0), then drains whatever else arrived.
func (n *Notifier) Poll(timeout time.Duration) ([]uint64, error) {
	var out []uint64

	if timeout < 0 {
		out = append(out, <-n.events)
	} else {
		tm := time.NewTimer(timeout)
		select {
		case token := <-n.events:
			tm.Stop()
			out = append(out, token)
		case <-tm.C:
			return nil, nil
		}
	}

	for {
		select {
		case token := <-n.events:
			out = append(out, token)
		default:
			return out, nil
		}
	}
}
