package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Invoca/async"
)

// A worked demo of the runtime: a bounded crawl over fake URLs through a
// semaphore, a per-request deadline, a first-responder race, and an external
// wakeup through a Notifier.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	notifier := async.NewNotifier()

	const shutdownToken = 1

	value, err := async.Run(func(t *async.Task) (any, error) {
		// Supervisory task: reacts to an external shutdown event without
		// keeping the tree alive.
		t.Spawn("shutdown-watch", func(t *async.Task) (any, error) {
			t.AwaitEvent(shutdownToken)
			logger.Info("shutdown requested")
			return nil, nil
		}, async.Transient())

		urls := []string{
			"https://example.com/a",
			"https://example.com/b",
			"https://example.com/c",
			"https://example.com/d",
			"https://example.com/e",
		}

		fetched, err := async.Map(t, 2, urls, func(t *async.Task, url string) (string, error) {
			err := t.WithTimeout(200*time.Millisecond, func() error {
				t.Sleep(50 * time.Millisecond) // pretend network latency
				return nil
			})
			if err != nil {
				return "", err
			}
			logger.Info("fetched", slog.String("url", url))
			return "body of " + url, nil
		})
		if err != nil {
			return nil, err
		}

		mirror, err := async.Race(t,
			func(t *async.Task) (string, error) {
				t.Sleep(80 * time.Millisecond)
				return "mirror-eu", nil
			},
			func(t *async.Task) (string, error) {
				t.Sleep(30 * time.Millisecond)
				return "mirror-us", nil
			},
		)
		if err != nil {
			return nil, err
		}
		logger.Info("fastest mirror", slog.String("mirror", mirror))

		return fmt.Sprintf("%d pages via %s", len(fetched), mirror), nil
	}, async.WithPoller(notifier), async.WithLogger(logger))
	if err != nil {
		logger.Error("run failed", slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Println(value)
}
