package async

import "github.com/gammazero/deque"

// semRequest is one admission request. started distinguishes tasks that
// consumed a slot from requests stopped while still queued, which never
// start and never release anything.
type semRequest struct {
	task    *Task
	started bool
}

// Semaphore bounds how many of its tasks run concurrently. Up to limit
// tasks are started immediately; further Spawn calls queue, and each
// terminal transition of a started task admits the oldest queued request
// (FIFO fairness). It is built on an internal [Barrier] over the full set —
// running, queued and finished — to which Wait and Stop delegate.
//
// A queued request that is stopped before a slot frees is removed from the
// queue and never starts.
type Semaphore struct {
	parent  *Task
	limit   int
	barrier *Barrier
	pending deque.Deque[*semRequest]
	running int
}

// NewSemaphore creates a semaphore admitting at most limit concurrently
// running tasks, owned by parent. It panics if limit <= 0 or parent is nil.
func NewSemaphore(limit int, parent *Task) *Semaphore {
	if limit <= 0 {
		panic("async: NewSemaphore requires limit > 0")
	}
	return &Semaphore{
		parent:  parent,
		limit:   limit,
		barrier: NewBarrier(parent),
	}
}

// Spawn creates a task running fn, owned by the semaphore's parent, and
// either starts it immediately or queues it until a slot frees. The
// returned task can be waited on and stopped like any other; its state is
// still initialized while queued.
func (s *Semaphore) Spawn(name string, fn TaskFunc, opts ...SpawnOption) *Task {
	task := s.parent.adopt(name, fn, opts...)
	s.barrier.track(task)

	req := &semRequest{task: task}
	task.subscribe(func(*Task) { s.settled(req) })

	if s.running < s.limit {
		s.admit(req)
	} else {
		s.pending.PushBack(req)
	}
	return task
}

func (s *Semaphore) admit(req *semRequest) {
	req.started = true
	s.running++
	s.parent.r.schedule(req.task.co)
}

// settled releases the slot held by a started request and admits queued
// requests while slots are free, skipping requests stopped in the queue.
func (s *Semaphore) settled(req *semRequest) {
	if !req.started {
		return
	}
	s.running--
	for s.running < s.limit && s.pending.Len() > 0 {
		next := s.pending.PopFront()
		if next.task.terminal() {
			continue
		}
		s.admit(next)
	}
}

// Wait suspends the calling task until every task ever spawned through the
// semaphore — running, queued and finished — is terminal, returning the
// first failure. See [Barrier.Wait].
func (s *Semaphore) Wait(from *Task) error {
	return s.barrier.Wait(from)
}

// Stop stops every task spawned through the semaphore. Queued requests are
// dropped without ever starting.
func (s *Semaphore) Stop() {
	s.barrier.Stop()
}

// Running returns the number of tasks currently holding a slot.
func (s *Semaphore) Running() int { return s.running }

// Limit returns the semaphore's concurrency limit.
func (s *Semaphore) Limit() int { return s.limit }
