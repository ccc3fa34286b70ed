package flow

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/NetPo4ki/go-flowscope/scope"
)

// DefaultConcurrency is the FlatMapMerge bound used when concurrency <= 0.
const DefaultConcurrency = 16

// FlatMapConcat collects the flow fn returns for each element, one after
// another.
func FlatMapConcat[T, R any](f Flow[T], fn func(v T) Flow[R]) Flow[R] {
	return New(func(ctx context.Context, emit Collector[R]) error {
		return f.Collect(ctx, func(ctx context.Context, v T) error {
			return fn(v).Collect(ctx, emit)
		})
	})
}

// FlatMapMerge collects up to concurrency inner flows at the same time and
// emits their elements as they arrive.
func FlatMapMerge[T, R any](f Flow[T], concurrency int, fn func(v T) Flow[R]) Flow[R] {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return ChannelFlow(func(pctx context.Context, send Collector[R]) error {
		sem := semaphore.NewWeighted(int64(concurrency))
		return f.Collect(pctx, func(_ context.Context, v T) error {
			var err error
			scope.Suspend(pctx, func() { err = sem.Acquire(pctx, 1) })
			if err != nil {
				return scope.EnsureActive(pctx)
			}
			inner := fn(v)
			scope.Launch(pctx, func(ctx context.Context) error {
				defer sem.Release(1)
				return inner.Collect(ctx, send)
			})
			return nil
		})
	})
}

// FlatMapLatest collects the flow fn returns for the newest element only;
// a new element cancels the collection of the previous inner flow.
func FlatMapLatest[T, R any](f Flow[T], fn func(v T) Flow[R]) Flow[R] {
	return transformLatest(f, func(ctx context.Context, v T, send Collector[R]) error {
		return fn(v).Collect(ctx, send)
	})
}

// MapLatest is Map where a new element cancels a still running fn for the
// previous one.
func MapLatest[T, R any](f Flow[T], fn func(ctx context.Context, v T) (R, error)) Flow[R] {
	return transformLatest(f, func(ctx context.Context, v T, send Collector[R]) error {
		r, err := fn(ctx, v)
		if err != nil {
			return err
		}
		return send(ctx, r)
	})
}

func transformLatest[T, R any](f Flow[T], fn func(ctx context.Context, v T, send Collector[R]) error) Flow[R] {
	return ChannelFlow(func(pctx context.Context, send Collector[R]) error {
		var prev *scope.Job
		return f.Collect(pctx, func(_ context.Context, v T) error {
			if prev != nil {
				if err := prev.CancelAndJoin(pctx, nil); err != nil {
					return err
				}
			}
			prev = scope.Launch(pctx, func(ctx context.Context) error {
				return fn(ctx, v, send)
			})
			return nil
		})
	})
}
