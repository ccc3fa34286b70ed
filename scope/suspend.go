package scope

import (
	"context"
	"runtime"
	"time"
)

// Suspend runs fn as a suspension point: the caller's dispatcher slot is
// released while fn blocks and re-acquired, in FIFO order, afterwards.
// It must be called from the goroutine running the body of ctx's job.
func Suspend(ctx context.Context, fn func()) {
	if j := JobFrom(ctx); j != nil && j.worker != nil {
		w := j.worker
		w.Park()
		defer w.Unpark()
	}
	fn()
}

// EnsureActive returns the cancellation signal if ctx's job is no longer
// active. Inside NonCancellable it always returns nil.
func EnsureActive(ctx context.Context) error {
	if nonCancellable(ctx) {
		return nil
	}
	if ctx.Err() != nil {
		return cancellationOf(ctx)
	}
	if j := JobFrom(ctx); j != nil && !j.IsActive() {
		if err := j.Err(); err != nil {
			return asCancellation(err)
		}
		return &CancellationError{}
	}
	return nil
}

// IsActive is the cooperative cancellation check for loops that never suspend.
func IsActive(ctx context.Context) bool { return EnsureActive(ctx) == nil }

// Delay suspends the caller for d or until its job is cancelled.
func Delay(ctx context.Context, d time.Duration) error {
	if err := EnsureActive(ctx); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	var err error
	Suspend(ctx, func() {
		select {
		case <-t.C:
		case <-ctx.Done():
			err = cancellationOf(ctx)
		}
	})
	return err
}

// Yield gives other tasks queued on the same dispatcher a chance to run.
func Yield(ctx context.Context) error {
	if err := EnsureActive(ctx); err != nil {
		return err
	}
	Suspend(ctx, runtime.Gosched)
	return EnsureActive(ctx)
}

// NonCancellable runs fn so that checkpoints inside it ignore the
// cancellation of the surrounding job. It is meant for teardown that has to
// suspend; do not start unrelated work from it.
func NonCancellable(ctx context.Context, fn func(ctx context.Context) error) error {
	if nonCancellable(ctx) {
		return fn(ctx)
	}
	nctx := context.WithValue(context.WithoutCancel(ctx), nonCancellableKey{}, true)
	return fn(nctx)
}
