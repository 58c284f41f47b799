package ctxutil

import (
	"context"
	"time"
)

// WithDelayedTimeout returns a context that outlives parent by delay. In-flight relays use it to
// finish their cleanup after a shutdown signal.
func WithDelayedTimeout(parent context.Context, delay time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-parent.Done():
			time.AfterFunc(delay, cancel)
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Sleep pauses for d, returning ctx.Err() early if ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
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
