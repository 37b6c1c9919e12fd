package worker

import (
	"context"
	"math/rand"
	"time"

	"github.com/mvcruz/lockstep/pkg/clock"
)

// Run executes runs protected operations (forever when runs <= 0),
// sleeping a random interval within [minInterval, maxInterval] before
// each one. This is the cadence of the original access loop.
func (w *Worker) Run(ctx context.Context, runs int, minInterval, maxInterval time.Duration) error {
	uptime := clock.NewClock()

	for i := 0; runs <= 0 || i < runs; i++ {
		if d := pause(minInterval, maxInterval); d > 0 {
			w.log.Debug("sleeping before next run",
				"interval", d, "elapsed", uptime.Elapsed())
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := w.RunOnce(ctx); err != nil {
			return err
		}
	}
	return nil
}

func pause(minInterval, maxInterval time.Duration) time.Duration {
	if maxInterval <= minInterval {
		return minInterval
	}
	return minInterval + time.Duration(rand.Int63n(int64(maxInterval-minInterval)))
}
