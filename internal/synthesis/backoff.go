package synthesis

import (
	"context"
	"time"
)

// Exponential backoff between generation attempts: start at 200ms, double
// each retry, cap at 5s.
const (
	backoffStart = 200 * time.Millisecond
	backoffCap   = 5 * time.Second
)

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
