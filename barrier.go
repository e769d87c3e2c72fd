package async

import "errors"

// Barrier tracks a group of tasks so they can be joined or stopped together.
// Tasks spawned through the barrier are owned by the barrier's parent task;
// the barrier only tracks membership. Create one via [NewBarrier].
type Barrier struct {
	parent *Task
	tasks  []*Task
}

// NewBarrier creates a barrier whose tasks will be owned by parent.
// It panics if parent is nil.
func NewBarrier(parent *Task) *Barrier {
	if parent == nil {
		panic("async: NewBarrier requires a parent task")
	}
	return &Barrier{parent: parent}
}

// Spawn creates a task running fn, owned by the barrier's parent, and adds
// it to the barrier's set.
func (b *Barrier) Spawn(name string, fn TaskFunc, opts ...SpawnOption) *Task {
	task := b.parent.Spawn(name, fn, opts...)
	b.tasks = append(b.tasks, task)
	return task
}

// track adds an externally created task to the set.
func (b *Barrier) track(task *Task) {
	b.tasks = append(b.tasks, task)
}

// Wait suspends the calling task until every task in the set is terminal.
// The set is observed repeatedly, not snapshotted: tasks added while Wait is
// blocked are waited on too. Wait returns the first failed task's error, if
// any, leaving later tasks running; pair it with [Barrier.Stop] to also tear
// those down, or use [Barrier.WaitAll] to join everything regardless.
func (b *Barrier) Wait(from *Task) error {
	for i := 0; i < len(b.tasks); i++ {
		if _, err := b.tasks[i].Wait(from); err != nil {
			return err
		}
	}
	return nil
}

// WaitAll joins every task in the set and aggregates all failures, each
// wrapped in a [*TaskError] for attribution, via errors.Join. It returns nil
// when no task failed.
func (b *Barrier) WaitAll(from *Task) error {
	var errs []error
	for i := 0; i < len(b.tasks); i++ {
		task := b.tasks[i]
		if _, err := task.Wait(from); err != nil {
			errs = append(errs, &TaskError{Name: task.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}

// Stop stops every task currently in the set. Terminal tasks are unaffected;
// the set keeps its members.
func (b *Barrier) Stop() {
	for _, task := range b.tasks {
		task.Stop()
	}
}

// Len returns the number of tasks the barrier has tracked, including
// terminal ones.
func (b *Barrier) Len() int { return len(b.tasks) }
