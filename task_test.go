package async_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Invoca/async"
)

func TestWaitReturnsValue(t *testing.T) {
	v, err := async.Run(func(rt *async.Task) (any, error) {
		child := rt.Spawn("answer", func(*async.Task) (any, error) {
			return 42, nil
		})
		return child.Wait(rt)
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestWaitReraisesError(t *testing.T) {
	boom := errors.New("boom")
	var state async.State

	v, err := async.Run(func(rt *async.Task) (any, error) {
		child := rt.Spawn("doomed", func(*async.Task) (any, error) {
			return nil, boom
		})
		_, werr := child.Wait(rt)
		state = child.State()
		return nil, werr
	})
	require.Nil(t, v)
	require.Same(t, boom, err)
	require.Equal(t, async.StateFailed, state)
}

func TestWaitStoppedReturnsNoValue(t *testing.T) {
	clock := async.NewVirtualClock()
	var childState async.State

	v, err := async.Run(func(rt *async.Task) (any, error) {
		child := rt.Spawn("sleeper", func(ct *async.Task) (any, error) {
			ct.Sleep(time.Hour)
			return "never", nil
		})
		rt.Yield() // let the child reach its sleep
		child.Stop()
		childState = child.State()
		return child.Wait(rt)
	}, async.WithClock(clock))
	require.NoError(t, err)
	require.Equal(t, async.NoValue{}, v)
	require.Equal(t, async.StateStopped, childState)
	require.Equal(t, "<no value>", async.NoValue{}.String())
}

func TestWaitTerminalTaskNilFrom(t *testing.T) {
	var done *async.Task
	_, err := async.Run(func(rt *async.Task) (any, error) {
		done = rt.Spawn("quick", func(*async.Task) (any, error) {
			return "v", nil
		})
		_, werr := done.Wait(rt)
		return nil, werr
	})
	require.NoError(t, err)

	// Terminal tasks can be joined without a calling-task context.
	v, err := done.Wait(nil)
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

func TestStopBeforeFirstRun(t *testing.T) {
	ran := false
	_, err := async.Run(func(rt *async.Task) (any, error) {
		child := rt.Spawn("unstarted", func(*async.Task) (any, error) {
			ran = true
			return nil, nil
		})
		child.Stop()
		return child.Wait(rt)
	})
	require.NoError(t, err)
	require.False(t, ran)
}

func TestStopIsIdempotent(t *testing.T) {
	clock := async.NewVirtualClock()
	var first, second async.State

	_, err := async.Run(func(rt *async.Task) (any, error) {
		child := rt.Spawn("sleeper", func(ct *async.Task) (any, error) {
			ct.Sleep(time.Hour)
			return nil, nil
		})
		rt.Yield()
		child.Stop()
		first = child.State()
		child.Stop()
		second = child.State()
		return nil, nil
	}, async.WithClock(clock))
	require.NoError(t, err)
	require.Equal(t, async.StateStopped, first)
	require.Equal(t, async.StateStopped, second)
}

func TestStopRunsDeferredCleanup(t *testing.T) {
	clock := async.NewVirtualClock()
	cleaned := false

	_, err := async.Run(func(rt *async.Task) (any, error) {
		child := rt.Spawn("worker", func(ct *async.Task) (any, error) {
			defer func() { cleaned = true }()
			ct.Sleep(time.Hour)
			return nil, nil
		})
		rt.Yield()
		child.Stop()
		return nil, nil
	}, async.WithClock(clock))
	require.NoError(t, err)
	require.True(t, cleaned)
}

func TestStopSelfUnwinds(t *testing.T) {
	afterStop := false
	v, err := async.Run(func(rt *async.Task) (any, error) {
		child := rt.Spawn("quitter", func(ct *async.Task) (any, error) {
			ct.Stop()
			afterStop = true
			return "never", nil
		})
		return child.Wait(rt)
	})
	require.NoError(t, err)
	require.Equal(t, async.NoValue{}, v)
	require.False(t, afterStop)
}

func TestStopAncestorFromDescendant(t *testing.T) {
	var order []string
	v, err := async.Run(func(rt *async.Task) (any, error) {
		parent := rt.Spawn("parent", func(pt *async.Task) (any, error) {
			defer func() { order = append(order, "parent") }()
			child := pt.Spawn("child", func(ct *async.Task) (any, error) {
				defer func() { order = append(order, "child") }()
				pt.Stop()
				return "never", nil
			})
			return child.Wait(pt)
		})
		return parent.Wait(rt)
	})
	require.NoError(t, err)
	require.Equal(t, async.NoValue{}, v)
	// Descendants unwind before their ancestors settle.
	require.Equal(t, []string{"child", "parent"}, order)
}

func TestStopDescendantsBeforeParent(t *testing.T) {
	clock := async.NewVirtualClock()
	var order []string

	_, err := async.Run(func(rt *async.Task) (any, error) {
		parent := rt.Spawn("parent", func(pt *async.Task) (any, error) {
			defer func() { order = append(order, "parent") }()
			for _, name := range []string{"a", "b"} {
				name := name
				pt.Spawn(name, func(ct *async.Task) (any, error) {
					defer func() { order = append(order, name) }()
					ct.Sleep(time.Hour)
					return nil, nil
				})
			}
			pt.Sleep(time.Hour)
			return nil, nil
		})
		rt.Yield() // parent spawns and parks
		rt.Yield() // children park
		parent.Stop()
		return nil, nil
	}, async.WithClock(clock))
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "parent"}, order)
}

func TestStopSelfStopsOwnChildren(t *testing.T) {
	clock := async.NewVirtualClock()
	start := clock.Now()
	var order []string
	var child *async.Task

	_, err := async.Run(func(rt *async.Task) (any, error) {
		parent := rt.Spawn("parent", func(pt *async.Task) (any, error) {
			defer func() { order = append(order, "parent") }()
			child = pt.Spawn("child", func(ct *async.Task) (any, error) {
				defer func() { order = append(order, "child") }()
				ct.Sleep(time.Hour)
				return nil, nil
			})
			pt.Yield() // let the child park
			pt.Stop()
			return "never", nil
		})
		res, werr := parent.Wait(rt)
		require.Equal(t, async.NoValue{}, res)
		return nil, werr
	}, async.WithClock(clock))
	require.NoError(t, err)
	require.Equal(t, []string{"child", "parent"}, order)
	require.Equal(t, async.StateStopped, child.State())
	// The child's sleep was cancelled, not waited out.
	require.Equal(t, time.Duration(0), clock.Now().Sub(start))
}

func TestStopAncestorStopsCallerSubtree(t *testing.T) {
	clock := async.NewVirtualClock()
	var order []string

	_, err := async.Run(func(rt *async.Task) (any, error) {
		worker := rt.Spawn("worker", func(wt *async.Task) (any, error) {
			defer func() { order = append(order, "worker") }()
			stopper := wt.Spawn("stopper", func(st *async.Task) (any, error) {
				defer func() { order = append(order, "stopper") }()
				st.Spawn("inner", func(it *async.Task) (any, error) {
					defer func() { order = append(order, "inner") }()
					it.Sleep(time.Hour)
					return nil, nil
				})
				st.Yield() // inner parks
				wt.Stop()
				return "never", nil
			})
			return stopper.Wait(wt)
		})
		res, werr := worker.Wait(rt)
		require.Equal(t, async.NoValue{}, res)
		return nil, werr
	}, async.WithClock(clock))
	require.NoError(t, err)
	// The whole subtree below the caller unwinds first, then the caller,
	// then its ancestors up to the stopped task.
	require.Equal(t, []string{"inner", "stopper", "worker"}, order)
}

func TestSwallowedStopIsRedelivered(t *testing.T) {
	var swallowed, resumed, cleaned, unreachable bool

	_, err := async.Run(func(rt *async.Task) (any, error) {
		child := rt.Spawn("stubborn", func(ct *async.Task) (any, error) {
			defer func() { cleaned = true }()
			func() {
				defer func() {
					if recover() != nil {
						swallowed = true
					}
				}()
				ct.Sleep(time.Hour)
			}()
			resumed = true
			ct.Sleep(time.Hour)
			unreachable = true
			return nil, nil
		})
		rt.Yield()
		child.Stop()
		return child.Wait(rt)
	})
	require.NoError(t, err)
	require.True(t, swallowed)
	require.True(t, resumed)
	require.True(t, cleaned)
	require.False(t, unreachable)
}

func TestIsStopReraisePattern(t *testing.T) {
	handledOwn := false
	var finalState async.State

	_, err := async.Run(func(rt *async.Task) (any, error) {
		child := rt.Spawn("careful", func(ct *async.Task) (any, error) {
			defer func() {
				if v := recover(); v != nil {
					if async.IsStop(v) {
						panic(v)
					}
					handledOwn = true
				}
			}()
			ct.Sleep(time.Hour)
			return nil, nil
		})
		rt.Yield()
		child.Stop()
		finalState = child.State()
		return nil, nil
	})
	require.NoError(t, err)
	require.False(t, handledOwn)
	require.Equal(t, async.StateStopped, finalState)
}

func TestMultipleWaitersAllReleased(t *testing.T) {
	clock := async.NewVirtualClock()
	var order []string
	values := map[string]any{}

	_, err := async.Run(func(rt *async.Task) (any, error) {
		producer := rt.Spawn("producer", func(ct *async.Task) (any, error) {
			ct.Sleep(time.Second)
			return 7, nil
		})
		b := async.NewBarrier(rt)
		for _, name := range []string{"w0", "w1", "w2"} {
			name := name
			b.Spawn(name, func(ct *async.Task) (any, error) {
				v, werr := producer.Wait(ct)
				order = append(order, name)
				values[name] = v
				return nil, werr
			})
		}
		return nil, b.Wait(rt)
	}, async.WithClock(clock))
	require.NoError(t, err)
	// Waiters resume in the order they parked.
	require.Equal(t, []string{"w0", "w1", "w2"}, order)
	for _, name := range []string{"w0", "w1", "w2"} {
		require.Equal(t, 7, values[name])
	}
}

func TestFailedTaskWithoutWaiterIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	_, err := async.Run(func(rt *async.Task) (any, error) {
		rt.Spawn("doomed", func(*async.Task) (any, error) {
			return nil, errors.New("nobody is listening")
		})
		return nil, nil
	}, async.WithLogger(logger))
	require.NoError(t, err)
	require.Contains(t, buf.String(), "task failed with no waiter")
	require.Contains(t, buf.String(), "doomed")
	require.Contains(t, buf.String(), "nobody is listening")
}

func TestTaskStates(t *testing.T) {
	clock := async.NewVirtualClock()
	var initial, running, terminal async.State

	_, err := async.Run(func(rt *async.Task) (any, error) {
		child := rt.Spawn("child", func(ct *async.Task) (any, error) {
			ct.Sleep(time.Second)
			return nil, nil
		})
		initial = child.State()
		rt.Yield()
		running = child.State()
		_, werr := child.Wait(rt)
		terminal = child.State()
		return nil, werr
	}, async.WithClock(clock))
	require.NoError(t, err)
	require.Equal(t, async.StateInitialized, initial)
	require.Equal(t, async.StateRunning, running)
	require.Equal(t, async.StateComplete, terminal)

	require.Equal(t, "initialized", async.StateInitialized.String())
	require.Equal(t, "running", async.StateRunning.String())
	require.Equal(t, "complete", async.StateComplete.String())
	require.Equal(t, "failed", async.StateFailed.String())
	require.Equal(t, "stopped", async.StateStopped.String())
}

func TestTaskTreeAccessors(t *testing.T) {
	clock := async.NewVirtualClock()
	_, err := async.Run(func(rt *async.Task) (any, error) {
		require.Equal(t, "main", rt.Name())
		require.Nil(t, rt.Parent())

		child := rt.Spawn("child", func(ct *async.Task) (any, error) {
			ct.Sleep(time.Second)
			return nil, nil
		})
		require.Equal(t, "child", child.Name())
		require.Same(t, rt, child.Parent())
		require.Equal(t, []*async.Task{child}, rt.Children())
		require.False(t, child.Transient())
		require.False(t, child.Finished())

		_, werr := child.Wait(rt)
		require.True(t, child.Finished())
		return nil, werr
	}, async.WithClock(clock))
	require.NoError(t, err)
}

func TestMisuseOutsideRunningTaskPanics(t *testing.T) {
	defer func() {
		rec := recover()
		pe, ok := rec.(*async.PanicError)
		require.True(t, ok)
		require.Contains(t, pe.Value, "outside the running task")
	}()

	_, _ = async.Run(func(rt *async.Task) (any, error) {
		child := rt.Spawn("other", func(ct *async.Task) (any, error) {
			ct.Sleep(time.Hour)
			return nil, nil
		})
		rt.Yield()
		child.Sleep(time.Second) // not the running task
		return nil, nil
	})
	t.Fatal("expected a panic")
}

func TestWaitOnSelfPanics(t *testing.T) {
	defer func() {
		rec := recover()
		pe, ok := rec.(*async.PanicError)
		require.True(t, ok)
		require.Contains(t, pe.Value, "cannot wait on itself")
	}()

	_, _ = async.Run(func(rt *async.Task) (any, error) {
		return rt.Wait(rt)
	})
	t.Fatal("expected a panic")
}

func TestSpawnNilFuncPanics(t *testing.T) {
	defer func() {
		rec := recover()
		pe, ok := rec.(*async.PanicError)
		require.True(t, ok)
		require.Contains(t, pe.Value, "Spawn requires a task function")
	}()

	_, _ = async.Run(func(rt *async.Task) (any, error) {
		rt.Spawn("nil", nil)
		return nil, nil
	})
	t.Fatal("expected a panic")
}
