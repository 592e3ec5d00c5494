// Package backoff holds the wait helpers shared by retry loops.
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Jitter spreads base by +/-20%.
func Jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := float64(base) * 0.2
	return time.Duration(float64(base) - delta + rand.Float64()*2*delta)
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
