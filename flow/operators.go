package flow

import (
	"context"
	"errors"

	"github.com/NetPo4ki/go-flowscope/scope"
)

// Map applies fn to every element. Go lacks generic methods, so Map and the
// other type-changing operators are functions.
func Map[T, R any](f Flow[T], fn func(ctx context.Context, v T) (R, error)) Flow[R] {
	return New(func(ctx context.Context, emit Collector[R]) error {
		return f.Collect(ctx, func(ctx context.Context, v T) error {
			r, err := fn(ctx, v)
			if err != nil {
				return err
			}
			return emit(ctx, r)
		})
	})
}

// Transform calls fn for every element; fn may emit any number of values.
func Transform[T, R any](f Flow[T], fn func(ctx context.Context, v T, emit Collector[R]) error) Flow[R] {
	return New(func(ctx context.Context, emit Collector[R]) error {
		return f.Collect(ctx, func(ctx context.Context, v T) error {
			return fn(ctx, v, emit)
		})
	})
}

// Filter keeps the elements pred accepts.
func (f Flow[T]) Filter(pred func(v T) bool) Flow[T] {
	return New(func(ctx context.Context, emit Collector[T]) error {
		return f.Collect(ctx, func(ctx context.Context, v T) error {
			if !pred(v) {
				return nil
			}
			return emit(ctx, v)
		})
	})
}

// OnEach calls fn before passing each element on.
func (f Flow[T]) OnEach(fn func(ctx context.Context, v T) error) Flow[T] {
	return New(func(ctx context.Context, emit Collector[T]) error {
		return f.Collect(ctx, func(ctx context.Context, v T) error {
			if err := fn(ctx, v); err != nil {
				return err
			}
			return emit(ctx, v)
		})
	})
}

// Take emits the first n elements and then stops the producer. The producer
// observes the stop as an error from emit, so its deferred cleanup runs once.
// Take(0) stops the producer at its first emission. Take panics if n < 0.
func (f Flow[T]) Take(n int) Flow[T] {
	if n < 0 {
		panic("flow: Take requires n >= 0")
	}
	return New(func(ctx context.Context, emit Collector[T]) error {
		stop := newAbort()
		seen := 0
		err := f.Collect(ctx, func(ctx context.Context, v T) error {
			if seen >= n {
				return stop
			}
			seen++
			if err := emit(ctx, v); err != nil {
				return err
			}
			if seen == n {
				return stop
			}
			return nil
		})
		if errors.Is(err, stop) {
			return nil
		}
		return err
	})
}

// OnStart runs fn before the upstream producer starts. fn may emit.
func (f Flow[T]) OnStart(fn func(ctx context.Context, emit Collector[T]) error) Flow[T] {
	return New(func(ctx context.Context, emit Collector[T]) error {
		if err := fn(ctx, emit); err != nil {
			return err
		}
		return f.Collect(ctx, emit)
	})
}

// OnCompletion runs fn after the flow finished, with the error it finished
// with, including downstream failures and cancellation. An error from fn is
// only reported when the flow itself succeeded.
func (f Flow[T]) OnCompletion(fn func(ctx context.Context, err error) error) Flow[T] {
	return New(func(ctx context.Context, emit Collector[T]) error {
		err := f.Collect(ctx, emit)
		if cerr := fn(ctx, err); cerr != nil && err == nil {
			return cerr
		}
		return err
	})
}

// Catch handles failures of the upstream flow. Failures of downstream
// collectors and cancellation pass through untouched. The handler may emit
// replacement values and may return an error of its own.
func (f Flow[T]) Catch(handler func(ctx context.Context, err error, emit Collector[T]) error) Flow[T] {
	return New(func(ctx context.Context, emit Collector[T]) error {
		downstream, err := collectUpstream(ctx, f, emit)
		if err == nil || downstream || scope.IsCancellation(err) {
			return err
		}
		return handler(ctx, err, emit)
	})
}

// Retry re-collects the upstream flow after a failure, at most retries
// times. A nil pred retries every upstream failure.
func (f Flow[T]) Retry(retries int, pred func(err error) bool) Flow[T] {
	return New(func(ctx context.Context, emit Collector[T]) error {
		for attempt := 0; ; attempt++ {
			downstream, err := collectUpstream(ctx, f, emit)
			if err == nil || downstream || scope.IsCancellation(err) || attempt >= retries {
				return err
			}
			if pred != nil && !pred(err) {
				return err
			}
		}
	})
}

// Zip pairs the elements of a and b and stops when either of them ends.
// b is collected concurrently.
func Zip[A, B, R any](a Flow[A], b Flow[B], fn func(ctx context.Context, av A, bv B) (R, error)) Flow[R] {
	return New(func(ctx context.Context, emit Collector[R]) error {
		return scope.Scoped(ctx, func(sctx context.Context) error {
			q := newQueue[B](1, false)
			other := scope.Launch(sctx, func(ctx context.Context) error {
				q.close(b.Collect(ctx, q.send))
				return nil
			})
			defer other.Cancel(nil)
			stop := newAbort()
			err := a.Collect(sctx, func(ctx context.Context, av A) error {
				bv, ok, err := q.receive(sctx)
				if err != nil {
					return err
				}
				if !ok {
					return stop
				}
				r, err := fn(ctx, av, bv)
				if err != nil {
					return err
				}
				return emit(ctx, r)
			})
			if errors.Is(err, stop) {
				return nil
			}
			return err
		})
	})
}
