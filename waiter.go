package async

// Waiter joins the first N completions out of a dynamically growing set of
// tasks, leaving the rest running. Tasks are spawned through the waiter's
// parent — often a [Barrier], so that stragglers can be bulk-stopped after
// the interesting completions have been collected.
type Waiter struct {
	parent   Spawner
	finished []*Task
	blocked  []*coroutine
}

// NewWaiter creates a waiter spawning through parent.
// It panics if parent is nil.
func NewWaiter(parent Spawner) *Waiter {
	if parent == nil {
		panic("async: NewWaiter requires a parent spawner")
	}
	return &Waiter{parent: parent}
}

// Spawn creates a task running fn through the waiter's parent and adds it
// to the tracking set.
func (w *Waiter) Spawn(name string, fn TaskFunc, opts ...SpawnOption) *Task {
	task := w.parent.Spawn(name, fn, opts...)
	task.subscribe(func(done *Task) {
		w.finished = append(w.finished, done)
		blocked := w.blocked
		w.blocked = nil
		for _, c := range blocked {
			c.task.r.schedule(c)
		}
	})
	return task
}

// Wait suspends the calling task until at least n tracked tasks have reached
// a terminal state since the last Wait call, then returns them in completion
// order. The returned tasks are consumed: repeated calls never include a
// task twice. Tasks not yet terminal are left running, untouched.
func (w *Waiter) Wait(from *Task, n int) []*Task {
	from.mustBeCurrent("Wait")
	if n < 0 {
		panic("async: Waiter.Wait requires n >= 0")
	}

	for len(w.finished) < n {
		c := from.co
		w.blocked = append(w.blocked, c)
		c.park(func() { w.unblock(c) })
	}

	out := w.finished
	w.finished = nil
	return out
}

func (w *Waiter) unblock(c *coroutine) {
	for i, b := range w.blocked {
		if b == c {
			w.blocked = append(w.blocked[:i], w.blocked[i+1:]...)
			return
		}
	}
}
