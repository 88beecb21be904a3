package utils

import (
	"context"
	"time"
)

// ContextSleep sleeps for the given duration, returning early with nil if the
// context is cancelled first.
func ContextSleep(ctx context.Context, d time.Duration) *time.Time {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil
	case t := <-timer.C:
		return &t
	}
}
