package async_test

import (
	"fmt"
	"time"

	"github.com/Invoca/async"
)

func ExampleRun() {
	value, _ := async.Run(func(t *async.Task) (any, error) {
		greet := t.Spawn("greet", func(t *async.Task) (any, error) {
			return "hello from a task", nil
		})
		return greet.Wait(t)
	})
	fmt.Println(value)
	// Output: hello from a task
}

func ExampleTask_WithTimeout() {
	clock := async.NewVirtualClock()
	_, _ = async.Run(func(t *async.Task) (any, error) {
		err := t.WithTimeout(time.Second, func() error {
			t.Sleep(time.Hour)
			return nil
		})
		fmt.Println(err)
		return nil, nil
	}, async.WithClock(clock))
	// Output: async: timed out after 1s
}

func ExampleNewSemaphore() {
	clock := async.NewVirtualClock()
	_, _ = async.Run(func(t *async.Task) (any, error) {
		sem := async.NewSemaphore(1, t)
		for i := 0; i < 3; i++ {
			i := i
			sem.Spawn(fmt.Sprintf("job-%d", i), func(ct *async.Task) (any, error) {
				fmt.Printf("job %d running\n", i)
				ct.Sleep(time.Second)
				return nil, nil
			})
		}
		return nil, sem.Wait(t)
	}, async.WithClock(clock))
	// Output:
	// job 0 running
	// job 1 running
	// job 2 running
}

func ExampleNewWaiter() {
	clock := async.NewVirtualClock()
	_, _ = async.Run(func(t *async.Task) (any, error) {
		barrier := async.NewBarrier(t)
		waiter := async.NewWaiter(barrier)

		waiter.Spawn("tortoise", func(ct *async.Task) (any, error) {
			ct.Sleep(2 * time.Second)
			return nil, nil
		})
		waiter.Spawn("hare", func(ct *async.Task) (any, error) {
			ct.Sleep(time.Second)
			return nil, nil
		})

		first := waiter.Wait(t, 1)
		fmt.Println("winner:", first[0].Name())
		barrier.Stop()
		return nil, nil
	}, async.WithClock(clock))
	// Output: winner: hare
}
