package signalctl

import (
	"context"
	"time"
)

// Clock is the time source of the control loop. Sleep must return ctx.Err()
// when ctx is done before d elapses.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock uses the wall clock
type RealClock struct{}

// Now implements Clock
func (RealClock) Now() time.Time {
	return time.Now()
}

// Sleep implements Clock
func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
