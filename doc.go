// Package async is a single-threaded, cooperative structured-concurrency
// runtime: a scheduler that interleaves many logical units of sequential
// work on one execution thread, organizes them into a strict parent/child
// tree, and guarantees that cancelling or completing a parent
// deterministically affects its descendants.
//
// Concurrency here is interleaving, not parallelism. Exactly one task runs
// at any instant, and control only switches at explicit suspension points:
// sleeping, waiting on another task or group, awaiting an external event, or
// an explicit yield. Code between suspension points runs atomically with
// respect to every other task, so no locks are needed for state touched
// within a single step.
//
// # Running Tasks
//
// The entry point is [Run], which creates the reactor and a root task, runs
// the scheduler until the whole tree is finished, and returns the root's
// result:
//
//	value, err := async.Run(func(t *async.Task) (any, error) {
//	    child := t.Spawn("fetch", func(t *async.Task) (any, error) {
//	        t.Sleep(time.Second)
//	        return "done", nil
//	    })
//	    return child.Wait(t)
//	})
//
// Every task function receives its own [Task], which is the explicit
// current-task context: all suspending operations hang off it. [Task.Spawn]
// creates children; [Task.Wait] joins another task, returning its value,
// re-raising its error, or yielding [NoValue] if it was stopped.
//
// # Cancellation
//
// [Task.Stop] cancels a subtree: every non-transient descendant is stopped
// before the task itself. The signal is cooperative — it is delivered at the
// target's current or next suspension point and unwinds its stack like a
// panic, so deferred cleanup always runs. Code that recovers panics for its
// own purposes must re-panic values for which [IsStop] reports true.
//
// Tasks spawned with the [Transient] option are supervisory: they never keep
// an ancestor alive, and when their parent terminates they are promoted to
// the nearest live ancestor instead of being stopped. The reactor stops any remaining
// transient tasks once the root task is finished.
//
// # Groups
//
// Three primitives compose tasks into groups:
//
//   - [Barrier]: join-all and stop-all over a tracked set.
//   - [Semaphore]: a barrier variant bounding concurrently running tasks to
//     a fixed limit, with FIFO admission of queued work.
//   - [Waiter]: join-first-N out of a growing set, leaving the rest running.
//
// # Timeouts
//
// [Task.WithTimeout] attaches a deadline to a block of code. If the deadline
// fires first, the block unwinds at its next suspension point and the call
// returns a [*TimeoutError]; the enclosing task keeps running. Nested scopes
// each track their own deadline, innermost first.
//
// # Errors
//
// Each task is an isolation boundary: an error returned by task code is
// captured as the task's result and re-raised only to whoever waits on it
// (failures nobody waits on are logged, never dropped silently). A panic, by
// contrast, is treated as non-recoverable: it aborts the reactor and
// re-panics out of [Run] as a [*PanicError] — catastrophic failures are
// never hidden behind a task boundary.
//
// # The Outside World
//
// The reactor blocks on a [Poller] when it runs out of work. [Notifier] is
// the built-in bridge: tasks park in [Task.AwaitEvent] and any goroutine
// wakes them with [Notifier.Notify] — the only cross-thread operation this
// package supports. Time is injected through [Clock]; [NewVirtualClock]
// makes time-dependent behavior exactly testable.
//
// Task-tree objects are confined to the reactor's thread. A program needing
// per-thread trees runs one reactor per thread.
package async
