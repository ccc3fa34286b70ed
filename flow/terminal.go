package flow

import (
	"context"
	"errors"

	"github.com/NetPo4ki/go-flowscope/scope"
)

// CollectLatest is Collect where a new element cancels the handling of the
// previous one. The previous invocation is cancelled and joined before fn
// starts for the next element, so at most one runs at a time.
func (f Flow[T]) CollectLatest(ctx context.Context, fn func(ctx context.Context, v T) error) error {
	return scope.Scoped(ctx, func(sctx context.Context) error {
		var prev *scope.Job
		return f.Collect(sctx, func(_ context.Context, v T) error {
			if prev != nil {
				if err := prev.CancelAndJoin(sctx, nil); err != nil {
					return err
				}
			}
			prev = scope.Launch(sctx, func(ctx context.Context) error {
				return fn(ctx, v)
			})
			return nil
		})
	})
}

// LaunchIn collects the flow in a new child job of ctx's job, ignoring the
// elements.
func (f Flow[T]) LaunchIn(ctx context.Context, opts ...scope.Option) *scope.Job {
	return scope.Launch(ctx, func(ctx context.Context) error {
		return f.Collect(ctx, func(context.Context, T) error { return nil })
	}, opts...)
}

// ToList collects every element into a slice.
func (f Flow[T]) ToList(ctx context.Context) ([]T, error) {
	var out []T
	err := f.Collect(ctx, func(_ context.Context, v T) error {
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ToSet collects the distinct elements of f.
func ToSet[T comparable](ctx context.Context, f Flow[T]) (map[T]struct{}, error) {
	out := make(map[T]struct{})
	err := f.Collect(ctx, func(_ context.Context, v T) error {
		out[v] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// First returns the first element and stops the producer.
func (f Flow[T]) First(ctx context.Context) (T, error) {
	var (
		first T
		found bool
	)
	stop := newAbort()
	err := f.Collect(ctx, func(_ context.Context, v T) error {
		first, found = v, true
		return stop
	})
	if err != nil && !errors.Is(err, stop) {
		var zero T
		return zero, err
	}
	if !found {
		return first, ErrNoElements
	}
	return first, nil
}

// Single returns the only element of f.
func (f Flow[T]) Single(ctx context.Context) (T, error) {
	var (
		single T
		found  bool
	)
	err := f.Collect(ctx, func(_ context.Context, v T) error {
		if found {
			return ErrTooManyElements
		}
		single, found = v, true
		return nil
	})
	var zero T
	switch {
	case err != nil:
		return zero, err
	case !found:
		return zero, ErrNoElements
	}
	return single, nil
}

// Reduce folds the elements with fn, starting from the first one.
func (f Flow[T]) Reduce(ctx context.Context, fn func(acc, v T) T) (T, error) {
	var (
		acc   T
		found bool
	)
	err := f.Collect(ctx, func(_ context.Context, v T) error {
		if !found {
			acc, found = v, true
			return nil
		}
		acc = fn(acc, v)
		return nil
	})
	var zero T
	switch {
	case err != nil:
		return zero, err
	case !found:
		return zero, ErrNoElements
	}
	return acc, nil
}

// Fold folds the elements into initial with fn.
func Fold[T, R any](ctx context.Context, f Flow[T], initial R, fn func(acc R, v T) R) (R, error) {
	acc := initial
	err := f.Collect(ctx, func(_ context.Context, v T) error {
		acc = fn(acc, v)
		return nil
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return acc, nil
}

// Count returns the number of elements.
func (f Flow[T]) Count(ctx context.Context) (int, error) {
	n := 0
	err := f.Collect(ctx, func(context.Context, T) error {
		n++
		return nil
	})
	return n, err
}
