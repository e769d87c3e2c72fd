package async

import "fmt"

// Each runs fn for every item, at most limit concurrently, and waits for
// all of them. On the first failure the remaining tasks are stopped and the
// error returned.
//
//	err := async.Each(t, 10, urls, func(t *async.Task, u string) error {
//	    return fetch(t, u)
//	})
func Each[T any](t *Task, limit int, items []T, fn func(t *Task, item T) error) error {
	sem := NewSemaphore(limit, t)
	for i, item := range items {
		item := item
		sem.Spawn(fmt.Sprintf("each[%d]", i), func(ct *Task) (any, error) {
			return nil, fn(ct, item)
		})
	}
	if err := sem.Wait(t); err != nil {
		sem.Stop()
		return err
	}
	return nil
}

// Map runs fn for every item, at most limit concurrently, and collects the
// results in input order. On the first failure the remaining tasks are
// stopped and Map returns nil and the error.
func Map[T, R any](t *Task, limit int, items []T, fn func(t *Task, item T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	sem := NewSemaphore(limit, t)
	for i, item := range items {
		i, item := i, item
		sem.Spawn(fmt.Sprintf("map[%d]", i), func(ct *Task) (any, error) {
			r, err := fn(ct, item)
			if err != nil {
				return nil, err
			}
			results[i] = r
			return nil, nil
		})
	}
	if err := sem.Wait(t); err != nil {
		sem.Stop()
		return nil, err
	}
	return results, nil
}

// Race runs all fns concurrently and returns the result of the first to
// succeed, stopping the rest. If every task fails, Race returns the zero
// value and the last error observed. If fns is empty, Race returns
// (zero, nil).
//
// Race panics if any element of fns is nil.
func Race[T any](t *Task, fns ...func(t *Task) (T, error)) (T, error) {
	var zero T
	if len(fns) == 0 {
		return zero, nil
	}
	for i, fn := range fns {
		if fn == nil {
			panic(fmt.Sprintf("async: Race task[%d] must not be nil", i))
		}
	}

	barrier := NewBarrier(t)
	waiter := NewWaiter(barrier)
	futures := make(map[*Task]*Future[T], len(fns))
	for i, fn := range fns {
		f := Go(waiter, fmt.Sprintf("race[%d]", i), fn)
		futures[f.Task()] = f
	}

	remaining := len(fns)
	var lastErr error
	for remaining > 0 {
		done := waiter.Wait(t, 1)
		remaining -= len(done)
		for _, dt := range done {
			if dt.State() != StateComplete {
				if _, err := dt.Result(); err != nil {
					lastErr = err
				}
				continue
			}
			val, _ := futures[dt].Wait(t)
			barrier.Stop()
			return val, nil
		}
	}
	return zero, lastErr
}
