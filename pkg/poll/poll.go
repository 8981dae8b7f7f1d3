// Package poll provides the bounded, fixed-interval wait primitive used to
// observe asynchronous server-side completion, e.g. a pipeline finishing.
package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for poll operations.
var (
	pollChecksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gitlab_poll_checks_total",
		Help: "Total status checks performed across all waits",
	})

	pollTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gitlab_poll_timeouts_total",
		Help: "Total waits that ended in a local timeout",
	})

	pollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gitlab_poll_duration_seconds",
		Help:    "Total wait duration in seconds",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	})
)

// CheckFunc reports the current status of the awaited operation and whether
// that status is terminal. An error from the check aborts the wait
// immediately; it is never treated as "keep polling".
type CheckFunc[T any] func(ctx context.Context) (status T, terminal bool, err error)

// Outcome is the result of one wait. When TimedOut is set, Status carries
// the last observed non-terminal value; the timeout sentinel is produced
// locally, never by the server.
type Outcome[T any] struct {
	Status   T
	TimedOut bool
	Checks   int
	Elapsed  time.Duration
}

// Wait drives check at a fixed interval until it reports a terminal status,
// the timeout elapses, or the context is cancelled. The first check fires
// immediately. Between checks the calling goroutine sleeps; there is no
// busy-waiting and no backoff, so wait durations are bounded by the timeout
// rather than a retry budget.
func Wait[T any](ctx context.Context, check CheckFunc[T], interval, timeout time.Duration) (Outcome[T], error) {
	if interval <= 0 {
		return Outcome[T]{}, fmt.Errorf("poll interval must be positive, got %v", interval)
	}
	if timeout <= 0 {
		return Outcome[T]{}, fmt.Errorf("poll timeout must be positive, got %v", timeout)
	}

	start := time.Now()
	defer func() {
		pollDuration.Observe(time.Since(start).Seconds())
	}()

	outcome := Outcome[T]{}

	for {
		status, terminal, err := check(ctx)
		outcome.Checks++
		pollChecksTotal.Inc()
		if err != nil {
			outcome.Elapsed = time.Since(start)
			return outcome, err
		}

		outcome.Status = status
		if terminal {
			outcome.Elapsed = time.Since(start)
			log.Debug().
				Int("checks", outcome.Checks).
				Dur("elapsed", outcome.Elapsed).
				Msg("Wait reached terminal status")
			return outcome, nil
		}

		if time.Since(start) >= timeout {
			outcome.TimedOut = true
			outcome.Elapsed = time.Since(start)
			pollTimeoutsTotal.Inc()
			log.Warn().
				Int("checks", outcome.Checks).
				Dur("elapsed", outcome.Elapsed).
				Msg("Wait deadline elapsed before terminal status")
			return outcome, nil
		}

		select {
		case <-ctx.Done():
			outcome.Elapsed = time.Since(start)
			return outcome, ctx.Err()
		case <-time.After(interval):
		}
	}
}
