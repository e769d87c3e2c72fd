package async

import (
	"cmp"
	"time"

	rbt "github.com/emirpasic/gods/v2/trees/redblacktree"
)

// timerKey orders timers by absolute deadline; seq breaks ties so that
// timers registered earlier fire first and every key is unique.
type timerKey struct {
	when time.Time
	seq  uint64
}

func compareTimerKeys(a, b timerKey) int {
	if c := a.when.Compare(b.when); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

type timer struct {
	key timerKey
	fn  func()
}

// timerQueue is the reactor's deadline queue, a red-black tree keyed by
// (deadline, sequence). The reactor advances it once per iteration, firing
// every expired timer's callback.
type timerQueue struct {
	tree *rbt.Tree[timerKey, *timer]
	seq  uint64
}

func newTimerQueue() *timerQueue {
	return &timerQueue{tree: rbt.NewWith[timerKey, *timer](compareTimerKeys)}
}

// after registers fn to run once d has elapsed from now.
func (q *timerQueue) after(now time.Time, d time.Duration, fn func()) *timer {
	q.seq++
	tm := &timer{key: timerKey{when: now.Add(d), seq: q.seq}, fn: fn}
	q.tree.Put(tm.key, tm)
	return tm
}

// cancel removes a pending timer. Cancelling an already-fired or
// already-cancelled timer is a no-op.
func (q *timerQueue) cancel(tm *timer) {
	if tm != nil {
		q.tree.Remove(tm.key)
	}
}

// advance fires every timer whose deadline is at or before now.
func (q *timerQueue) advance(now time.Time) {
	for {
		node := q.tree.Left()
		if node == nil || node.Key.when.After(now) {
			return
		}
		q.tree.Remove(node.Key)
		node.Value.fn()
	}
}

// next returns the duration until the earliest pending deadline.
func (q *timerQueue) next(now time.Time) (time.Duration, bool) {
	node := q.tree.Left()
	if node == nil {
		return 0, false
	}
	d := node.Key.when.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}
