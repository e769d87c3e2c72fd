package async

// Future wraps a task whose result has a known type. Create one via [Go].
type Future[T any] struct {
	task *Task
}

// Go spawns a task that returns a typed value through parent — a [Task],
// [Barrier], [Semaphore] or [Waiter] — and wraps it in a [Future]:
//
//	f := async.Go(t, "price", func(t *async.Task) (float64, error) {
//	    return fetchPrice(t)
//	})
//	price, err := f.Wait(t)
func Go[T any](parent Spawner, name string, fn func(t *Task) (T, error)) *Future[T] {
	task := parent.Spawn(name, func(t *Task) (any, error) {
		v, err := fn(t)
		if err != nil {
			return nil, err
		}
		return v, nil
	})
	return &Future[T]{task: task}
}

// Task returns the underlying task, for stopping or tree inspection.
func (f *Future[T]) Task() *Task { return f.task }

// Wait blocks the calling task until the future's task is terminal and
// returns its typed value. A failed task yields the original error; a
// stopped task yields the zero value and a nil error.
func (f *Future[T]) Wait(from *Task) (T, error) {
	var zero T
	v, err := f.task.Wait(from)
	if err != nil {
		return zero, err
	}
	if val, ok := v.(T); ok {
		return val, nil
	}
	return zero, nil
}
