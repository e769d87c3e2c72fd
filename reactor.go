package async

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/gammazero/deque"
)

// Reactor is the single-threaded scheduler that owns a task tree and drives
// it to completion. Each iteration it runs every ready task to its next
// suspension point in FIFO order, fires expired timers, and, when idle,
// blocks on the readiness source (or sleeps until the next deadline). The
// loop exits when the root task is finished.
//
// A Reactor runs one tree, once. Everything it owns is confined to the
// thread that calls [Reactor.Run].
type Reactor struct {
	clock  Clock
	poller Poller
	log    *slog.Logger

	ready     deque.Deque[*coroutine]
	timers    *timerQueue
	interests map[uint64][]*coroutine

	root    *Task
	current *Task
	fatal   *PanicError

	spawned int
	active  int
	started bool
}

// New creates a reactor. Most callers use the package-level [Run] instead;
// New exists for configuring the reactor and inspecting it afterwards.
func New(opts ...Option) *Reactor {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Reactor{
		clock:     cfg.clock,
		poller:    cfg.poller,
		log:       cfg.log,
		timers:    newTimerQueue(),
		interests: make(map[uint64][]*coroutine),
	}
}

// Run creates a reactor, runs fn as the root task until the whole tree is
// finished, and returns the root's result: its value on completion, its
// error on failure, and ([NoValue], nil) if it was stopped.
//
// A panic in any task is non-recoverable: Run re-panics it as a
// [*PanicError] rather than capturing it in a task result.
func Run(fn TaskFunc, opts ...Option) (any, error) {
	return New(opts...).Run(fn)
}

// Run runs fn as the root task and drives the scheduler until the root is
// finished. See the package-level [Run].
func (r *Reactor) Run(fn TaskFunc) (any, error) {
	if fn == nil {
		panic("async: Run requires a task function")
	}
	if r.started {
		panic("async: Reactor.Run called twice")
	}
	r.started = true

	root := &Task{r: r, name: "main", fn: fn}
	root.co = newCoroutine(root)
	r.root = root
	r.spawned++
	r.active++
	r.schedule(root.co)

	for {
		r.timers.advance(r.clock.Now())

		for r.ready.Len() > 0 {
			c := r.ready.PopFront()
			if !c.queued {
				continue
			}
			c.queued = false
			r.dispatch(c)
			r.checkFatal()
		}

		if root.Finished() {
			break
		}
		if err := r.block(); err != nil {
			for _, child := range slices.Clone(root.children) {
				child.Stop()
				r.checkFatal()
			}
			root.Stop()
			r.checkFatal()
			r.sweep(root)
			return nil, err
		}
	}

	r.sweep(root)
	return root.Result()
}

// sweep stops whatever is left attached to a finished (or torn-down) root:
// transient tasks promoted there as their owners terminated. Stopping one may
// promote another, so it loops until the tree is empty or stops shrinking.
func (r *Reactor) sweep(root *Task) {
	for len(root.children) > 0 {
		before := len(root.children)
		for _, child := range slices.Clone(root.children) {
			child.Stop()
			r.checkFatal()
		}
		if len(root.children) >= before {
			break
		}
	}
}

// checkFatal re-panics a non-recoverable task panic. It must run after every
// path that resumes a task: the regular dispatch loop, but also the stops
// performed during deadlock teardown and the final transient sweep, where a
// panic in a task's deferred cleanup would otherwise be swallowed. A task
// that recorded a fatal panic never settles, so it must not be resumed again.
func (r *Reactor) checkFatal() {
	if r.fatal != nil {
		panic(r.fatal)
	}
}

// schedule appends a coroutine to the ready queue. Ready order is FIFO: a
// context resumes in the order its blocking condition resolved. A coroutine
// is queued at most once.
func (r *Reactor) schedule(c *coroutine) {
	if c.queued || c.task.terminal() {
		return
	}
	c.detach = nil
	c.queued = true
	r.ready.PushBack(c)
}

// dispatch gives a coroutine the execution turn and blocks until it suspends
// or terminates. It nests: a task stopping a sibling dispatches the
// sibling's unwind from within its own turn.
func (r *Reactor) dispatch(c *coroutine) {
	t := c.task
	if t.terminal() {
		return
	}

	prev := r.current
	r.current = t
	if t.state == StateInitialized {
		t.state = StateRunning
		go c.main()
	} else {
		c.resume <- struct{}{}
	}
	<-c.yield
	r.current = prev
}

// block waits for something external: the poller if one is configured,
// otherwise the clock until the next timer deadline. With neither available
// the tree can never make progress again.
func (r *Reactor) block() error {
	now := r.clock.Now()
	d, hasTimer := r.timers.next(now)

	switch {
	case r.poller != nil:
		timeout := time.Duration(-1)
		if hasTimer {
			timeout = d
		}
		tokens, err := r.poller.Poll(timeout)
		if err != nil {
			return fmt.Errorf("async: poller: %w", err)
		}
		for _, token := range tokens {
			r.fire(token)
		}
		if len(tokens) == 0 {
			if !hasTimer {
				return ErrDeadlock
			}
			// The poller may not consume the clock (a virtual clock does
			// not move while it blocks); make up the remainder.
			if rem := now.Add(d).Sub(r.clock.Now()); rem > 0 {
				r.clock.Sleep(rem)
			}
		}
		return nil

	case hasTimer:
		r.clock.Sleep(d)
		return nil

	default:
		return ErrDeadlock
	}
}

// fire wakes every task registered for the event token, in registration
// order.
func (r *Reactor) fire(token uint64) {
	waiting, ok := r.interests[token]
	if !ok {
		r.log.Debug("async: readiness event with no registered interest",
			slog.Uint64("token", token))
		return
	}
	delete(r.interests, token)
	for _, c := range waiting {
		r.schedule(c)
	}
}

// Spawned returns the total number of tasks created under this reactor,
// including finished ones.
func (r *Reactor) Spawned() int { return r.spawned }

// Active returns the number of tasks not yet in a terminal state.
func (r *Reactor) Active() int { return r.active }
