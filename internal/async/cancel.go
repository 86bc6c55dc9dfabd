package async

import (
	"context"
	"time"
)

var alreadyCancelled = func() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}()

// Never returns a shared context that is never cancelled.
func Never() context.Context {
	return context.Background()
}

// AlreadyCancelled returns a shared context that is cancelled from the start.
// Registering on it never leaks a listener because it never fires again.
func AlreadyCancelled() context.Context {
	return alreadyCancelled
}

// Delay blocks for d or until ctx ends, whichever comes first.
// A non-positive d only reports the context state.
func Delay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
