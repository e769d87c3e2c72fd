package async

import "time"

// Clock is the reactor's source of time. It abstracts the monotonic clock
// used for timer deadlines (Now) and the blocking performed when the reactor
// is idle until the next deadline (Sleep).
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// systemClock is the production clock.
type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// VirtualClock is a Clock whose time only moves when the reactor sleeps.
// An idle reactor waiting for its next timer advances virtual time to the
// deadline instantly, which makes time-based behavior exactly testable:
// five one-second jobs through a limit-two semaphore take precisely three
// virtual seconds, and the test itself takes none.
//
// Like every other reactor-owned object, a VirtualClock must not be shared
// across threads.
type VirtualClock struct {
	now time.Time
}

// NewVirtualClock creates a VirtualClock starting at the Unix epoch.
func NewVirtualClock() *VirtualClock {
	return &VirtualClock{now: time.Unix(0, 0)}
}

// Now returns the current virtual time.
func (c *VirtualClock) Now() time.Time { return c.now }

// Sleep advances virtual time by d without blocking.
func (c *VirtualClock) Sleep(d time.Duration) {
	if d > 0 {
		c.now = c.now.Add(d)
	}
}

// Advance moves virtual time forward by d. It is equivalent to Sleep and
// exists for readability in tests.
func (c *VirtualClock) Advance(d time.Duration) { c.Sleep(d) }
