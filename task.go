package async

import (
	"log/slog"
	"slices"
	"time"
)

// State is a task's lifecycle state.
type State uint8

const (
	// StateInitialized: created, has not run yet.
	StateInitialized State = iota
	// StateRunning: the task's code has been given its first resumption.
	StateRunning
	// StateComplete: the task's code returned a value.
	StateComplete
	// StateFailed: the task's code returned an error.
	StateFailed
	// StateStopped: the task was cancelled before producing a result.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// TaskFunc is the signature of a task body. It receives the task itself,
// which doubles as the explicit current-task context for every suspending
// operation: spawning children, sleeping, waiting on other tasks.
type TaskFunc func(t *Task) (any, error)

// Spawner is anything that can create tasks: a [Task] (children are owned by
// it), or a [Barrier], [Semaphore] or [Waiter] (children are owned by the
// primitive's parent task and tracked by the primitive).
type Spawner interface {
	Spawn(name string, fn TaskFunc, opts ...SpawnOption) *Task
}

// Task is a unit of cooperatively scheduled, cancellable sequential work.
// Tasks form a strict tree: every task except the root has exactly one
// parent for its whole lifetime, apart from the single reparenting hop a
// transient task makes when its parent terminates.
//
// Task methods must only be called on the reactor's thread. Sharing a Task
// across threads is unsupported; the one sanctioned cross-thread surface is
// [Notifier.Notify].
type Task struct {
	r         *Reactor
	parent    *Task
	name      string
	fn        TaskFunc
	transient bool

	state State
	value any
	err   error

	children []*Task
	waiters  []*coroutine
	hooks    []func(*Task)
	timeouts []*timeoutScope

	pendingStop bool

	co *coroutine
}

// coroutine is the resumable execution context backing a task. The task runs
// on its own goroutine, but the runtime enforces strict hand-off: a resumer
// sends on resume and then blocks on yield, so at most one task goroutine is
// ever unparked. Park sites record a detach func so an out-of-band wakeup
// (stop, timeout) can remove the coroutine from whatever it is waiting on.
type coroutine struct {
	task   *Task
	resume chan struct{}
	yield  chan struct{}

	parked bool
	queued bool
	detach func()
}

func newCoroutine(t *Task) *coroutine {
	return &coroutine{
		task:   t,
		resume: make(chan struct{}),
		yield:  make(chan struct{}),
	}
}

// main is the task trampoline. It runs the task body, recovers cancellation
// signals so that settling happens after the stack has unwound through the
// task's deferred cleanup, and records any other panic as a non-recoverable
// reactor failure.
func (c *coroutine) main() {
	t := c.task

	var (
		value any
		err   error
	)
	func() {
		defer func() {
			switch rec := recover().(type) {
			case nil:
			case stopSignal:
				t.settle(StateStopped, nil, nil)
			case *timeoutSignal:
				// A timeout that nothing handled unwound the whole task.
				t.settle(StateFailed, nil, &TimeoutError{After: rec.scope.d})
			default:
				t.r.fatal = newPanicError(rec)
			}
		}()
		value, err = t.fn(t)
	}()

	if !t.terminal() && t.r.fatal == nil {
		if err != nil {
			t.settle(StateFailed, nil, err)
		} else {
			t.settle(StateComplete, value, nil)
		}
	}

	// Hand the execution turn back to whoever resumed us last.
	c.yield <- struct{}{}
}

// park suspends the coroutine until it is resumed. detach, if non-nil,
// removes the coroutine from the structure it is waiting on; it is invoked
// when the wait is abandoned because a stop or timeout is already pending,
// or by an out-of-band wakeup. Pending signals are delivered both before
// parking and after resuming.
func (c *coroutine) park(detach func()) {
	t := c.task
	if t.signalPending() {
		if detach != nil {
			detach()
		}
		c.queued = false
		t.deliverSignal()
	}

	c.parked = true
	c.detach = detach
	c.yield <- struct{}{}
	<-c.resume
	c.parked = false
	c.detach = nil

	t.deliverSignal()
}

func (t *Task) signalPending() bool {
	if t.pendingStop {
		return true
	}
	for _, sc := range t.timeouts {
		if sc.expired && !sc.fired {
			return true
		}
	}
	return false
}

// deliverSignal raises a pending stop or expired timeout scope, innermost
// scope first. It returns normally when nothing is pending.
func (t *Task) deliverSignal() {
	if t.pendingStop {
		panic(stopSignal{})
	}
	for i := len(t.timeouts) - 1; i >= 0; i-- {
		sc := t.timeouts[i]
		if sc.expired && !sc.fired {
			sc.fired = true
			panic(&timeoutSignal{scope: sc})
		}
	}
}

// Name returns the task's name.
func (t *Task) Name() string { return t.name }

// State returns the task's lifecycle state.
func (t *Task) State() State { return t.state }

// Transient reports whether the task was spawned with [Transient].
func (t *Task) Transient() bool { return t.transient }

// Parent returns the task's current parent, nil for the root task.
func (t *Task) Parent() *Task { return t.parent }

// Children returns a snapshot of the task's current children.
func (t *Task) Children() []*Task { return slices.Clone(t.children) }

func (t *Task) terminal() bool {
	return t.state == StateComplete || t.state == StateFailed || t.state == StateStopped
}

// Finished reports whether the task's own code has reached a terminal state
// and every non-transient child is finished. Transient children are ignored:
// they never keep an ancestor alive. The reactor runs until the root task is
// finished.
func (t *Task) Finished() bool {
	if !t.terminal() {
		return false
	}
	for _, child := range t.children {
		if !child.transient && !child.Finished() {
			return false
		}
	}
	return true
}

// Spawn creates a child task running fn, owned by t, and schedules it for
// its first resumption. The child starts after the current task next
// suspends. Spawn panics if fn is nil.
func (t *Task) Spawn(name string, fn TaskFunc, opts ...SpawnOption) *Task {
	child := t.adopt(name, fn, opts...)
	t.r.schedule(child.co)
	return child
}

// adopt creates a child task without scheduling it. The semaphore uses this
// to hold admission of queued requests.
func (t *Task) adopt(name string, fn TaskFunc, opts ...SpawnOption) *Task {
	if fn == nil {
		panic("async: Spawn requires a task function")
	}
	var cfg spawnConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	child := &Task{
		r:         t.r,
		parent:    t,
		name:      name,
		fn:        fn,
		transient: cfg.transient,
	}
	child.co = newCoroutine(child)
	t.children = append(t.children, child)
	t.r.spawned++
	t.r.active++
	return child
}

// Wait blocks the calling task until t is terminal, then returns t's result:
// the value for a completed task, the original error for a failed one, and
// ([NoValue], nil) for a stopped one. Every waiter parked on t is released,
// in FIFO order, on t's single terminal transition.
//
// If t is already terminal, Wait returns immediately and from may be nil.
func (t *Task) Wait(from *Task) (any, error) {
	if t.terminal() {
		return t.Result()
	}
	if from == nil {
		panic("async: Wait on a live task requires the calling task")
	}
	from.mustBeCurrent("Wait")
	if from == t {
		panic("async: task cannot wait on itself")
	}

	c := from.co
	t.waiters = append(t.waiters, c)
	c.park(func() { t.removeWaiter(c) })
	return t.Result()
}

// Result returns the result of a terminal task without blocking. It panics
// if the task is not terminal; use [Task.Wait] to block until it is.
func (t *Task) Result() (any, error) {
	switch t.state {
	case StateComplete:
		return t.value, nil
	case StateFailed:
		return nil, t.err
	case StateStopped:
		return NoValue{}, nil
	}
	panic("async: Result called on a task that is not terminal")
}

func (t *Task) removeWaiter(c *coroutine) {
	for i, w := range t.waiters {
		if w == c {
			t.waiters = append(t.waiters[:i], t.waiters[i+1:]...)
			return
		}
	}
}

// subscribe registers fn to run on t's terminal transition. If t is already
// terminal, fn runs immediately.
func (t *Task) subscribe(fn func(*Task)) {
	if t.terminal() {
		fn(t)
		return
	}
	t.hooks = append(t.hooks, fn)
}

// Stop cancels the task: every non-transient descendant is stopped,
// depth-first and exhaustively, before the task's own transition. The
// cancellation signal unwinds each task's stack at its current or next
// suspension point, so deferred cleanup runs. Stopping a terminal task is a
// no-op; stop is idempotent.
//
// Stopping the current task, or an ancestor of it, does not return: the
// calling stack unwinds as part of the stop.
func (t *Task) Stop() {
	if t.terminal() {
		return
	}

	cur := t.r.current
	if cur != nil && cur.within(t) {
		t.stopFromWithin(cur)
		return
	}

	for _, child := range slices.Clone(t.children) {
		if !child.transient {
			child.Stop()
		}
	}
	if t.terminal() {
		return
	}
	t.deliverStop()
}

// stopFromWithin handles stopping a task whose subtree contains the running
// task. cur's own subtree and the subtrees off the chain between t and cur
// are stopped synchronously; the chain tasks themselves are marked and woken
// so they unwind child-first once cur has unwound; finally cur's own stack
// unwinds via the signal.
func (t *Task) stopFromWithin(cur *Task) {
	chain := []*Task{cur}
	for n := cur; n != t; n = n.parent {
		chain = append(chain, n.parent)
	}

	for _, child := range slices.Clone(cur.children) {
		if !child.transient {
			child.Stop()
		}
	}
	for i := 1; i < len(chain); i++ {
		ancestor, inChain := chain[i], chain[i-1]
		for _, child := range slices.Clone(ancestor.children) {
			if child != inChain && !child.transient {
				child.Stop()
			}
		}
	}
	for i := 1; i < len(chain); i++ {
		chain[i].pendingStop = true
		chain[i].interrupt()
	}

	cur.pendingStop = true
	panic(stopSignal{})
}

// deliverStop delivers the cancellation signal to t itself. A task that
// never ran settles directly; a parked task is detached from its park site
// and resumed immediately, the caller regaining control once the unwind has
// run to t's next suspension point or terminal state. A task that is neither
// (it is mid-resumption further up the call chain) keeps the pending flag
// and unwinds at its next suspension point.
func (t *Task) deliverStop() {
	t.pendingStop = true
	c := t.co

	switch {
	case t.state == StateInitialized:
		t.settle(StateStopped, nil, nil)
	case c.parked || c.queued:
		if c.detach != nil {
			c.detach()
			c.detach = nil
		}
		c.queued = false
		t.r.dispatch(c)
	}
}

// interrupt wakes a parked task so a pending signal can be delivered. Unlike
// deliverStop it does not transfer control immediately: the task is queued
// and unwinds when dispatched.
func (t *Task) interrupt() {
	if t.terminal() {
		return
	}
	c := t.co
	if c.parked && !c.queued {
		if c.detach != nil {
			c.detach()
			c.detach = nil
		}
		t.r.schedule(c)
	}
}

func (t *Task) within(root *Task) bool {
	for n := t; n != nil; n = n.parent {
		if n == root {
			return true
		}
	}
	return false
}

// settle performs the task's single terminal transition: it writes the
// result slot, releases every waiter, runs completion hooks, promotes live
// transient children to the nearest live ancestor, and prunes finished
// subtrees from the tree. It runs while the settling side holds the execution turn, so the
// whole transition is atomic with respect to all other tasks.
func (t *Task) settle(state State, value any, err error) {
	if t.terminal() {
		return
	}
	t.state = state
	t.value = value
	t.err = err

	r := t.r
	r.active--

	if state == StateFailed && len(t.waiters) == 0 {
		r.log.Warn("async: task failed with no waiter",
			slog.String("task", t.name), slog.Any("error", err))
	}

	for _, w := range t.waiters {
		r.schedule(w)
	}
	t.waiters = nil

	hooks := t.hooks
	t.hooks = nil
	for _, hook := range hooks {
		hook(t)
	}

	if t.parent != nil {
		// The parent may itself be terminal already (it settled while this
		// task was still running); promoting there would strand the child
		// once the parent is pruned. Hop to the nearest live ancestor.
		dest := t.parent
		for dest.parent != nil && dest.terminal() {
			dest = dest.parent
		}
		kept := t.children[:0]
		for _, child := range t.children {
			if child.transient && !child.terminal() {
				child.parent = dest
				dest.children = append(dest.children, child)
			} else {
				kept = append(kept, child)
			}
		}
		t.children = kept
	}

	t.pruneUp()
}

// pruneUp removes finished tasks from their parents' child sets, cascading
// upward: a terminal parent may become finished when its last non-transient
// child does.
func (t *Task) pruneUp() {
	for p := t; p.parent != nil && p.Finished(); {
		parent := p.parent
		parent.discard(p)
		p = parent
	}
}

func (t *Task) discard(child *Task) {
	for i, c := range t.children {
		if c == child {
			t.children = append(t.children[:i], t.children[i+1:]...)
			return
		}
	}
}

func (t *Task) mustBeCurrent(op string) {
	if t.r.current != t {
		panic("async: " + op + " called outside the running task")
	}
}

// Sleep suspends the task for d. A stop delivered while sleeping cancels the
// timer and unwinds immediately rather than waiting out the duration.
func (t *Task) Sleep(d time.Duration) {
	t.mustBeCurrent("Sleep")
	c := t.co
	r := t.r
	tm := r.timers.after(r.clock.Now(), d, func() { r.schedule(c) })
	c.park(func() { r.timers.cancel(tm) })
}

// Yield reschedules the task at the back of the ready queue and suspends,
// letting every other ready task run first.
func (t *Task) Yield() {
	t.mustBeCurrent("Yield")
	t.r.schedule(t.co)
	t.co.park(nil)
}
