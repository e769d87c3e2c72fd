package async

import "log/slog"

type config struct {
	clock  Clock
	poller Poller
	log    *slog.Logger
}

// Option configures a [Reactor].
type Option func(*config)

func defaultConfig() config {
	return config{
		clock: systemClock{},
		log:   slog.Default(),
	}
}

// WithClock sets the monotonic clock the reactor uses for timer deadlines
// and for sleeping while idle. The default is the system clock; tests use
// [NewVirtualClock] for deterministic time.
//
// WithClock panics if c is nil.
func WithClock(c Clock) Option {
	return func(cfg *config) {
		if c == nil {
			panic("async: WithClock requires a non-nil clock")
		}
		cfg.clock = c
	}
}

// WithPoller sets the external readiness source the reactor blocks on when
// it has no runnable tasks. Without a poller, [Task.AwaitEvent] is
// unavailable and an idle reactor with no pending timers fails with
// [ErrDeadlock].
func WithPoller(p Poller) Option {
	return func(cfg *config) {
		cfg.poller = p
	}
}

// WithLogger sets the logger used for reactor diagnostics, such as tasks
// that fail with no waiter to observe the error. Defaults to [slog.Default].
//
// WithLogger panics if l is nil.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) {
		if l == nil {
			panic("async: WithLogger requires a non-nil logger")
		}
		cfg.log = l
	}
}

type spawnConfig struct {
	transient bool
}

// SpawnOption configures a task created via [Task.Spawn].
type SpawnOption func(*spawnConfig)

// Transient marks the spawned task as transient: it never keeps an ancestor
// alive ([Task.Finished] ignores it), and when its parent reaches a terminal
// state the task is promoted to the nearest live ancestor, normally the
// grandparent, instead of being stopped.
// Remaining transient tasks are stopped when the root task finishes.
func Transient() SpawnOption {
	return func(cfg *spawnConfig) {
		cfg.transient = true
	}
}
