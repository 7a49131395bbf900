package session

import (
	"context"
	"time"

	"firestige.xyz/busctl/internal/core"
)

// CancelFunc is told why an operation was abandoned.
type CancelFunc func(cause error)

// RunWithTimeout runs op in its own goroutine and waits for whichever comes
// first: op returning, d elapsing, or ctx ending.
//
// On expiry cancel is called once with core.ErrTimeout, op's context is
// cancelled and core.ErrTimeout is returned. When ctx ends first, cancel
// is called with ctx.Err() and that error is returned. A d of zero or less
// disables the timer. cancel may be nil.
func RunWithTimeout[T any](ctx context.Context, d time.Duration, op func(ctx context.Context) (T, error), cancel CancelFunc) (T, error) {
	opCtx, stop := context.WithCancel(ctx)
	defer stop()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(opCtx)
		done <- result{val: v, err: err}
	}()

	var expired <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		expired = timer.C
	}

	var zero T
	select {
	case r := <-done:
		return r.val, r.err
	case <-expired:
		stop()
		if cancel != nil {
			cancel(core.ErrTimeout)
		}
		return zero, core.ErrTimeout
	case <-ctx.Done():
		err := ctx.Err()
		if cancel != nil {
			cancel(err)
		}
		return zero, err
	}
}
