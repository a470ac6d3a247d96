package scheduler

import (
	"context"
	"math/rand"
	"time"
)

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 30 * time.Second
)

// sleepBackoff waits before retry number n (1-based), doubling the delay
// each time with ±25% jitter. Returns early if the context is cancelled.
func sleepBackoff(ctx context.Context, n int) error {
	delay := backoffBase << (n - 1)
	if delay > backoffCap || delay <= 0 {
		delay = backoffCap
	}

	jitter := time.Duration(rand.Int63n(int64(delay)/2+1)) - delay/4
	delay += jitter

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
