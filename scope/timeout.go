package scope

import (
	"context"
	"time"
)

// WithTimeout runs fn as an inline child. If fn and its children are not done
// after d, they are cancelled and a *TimeoutError is returned.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	v, te, err := runTimeout(ctx, d, fn, opts)
	if te != nil {
		return v, te
	}
	return v, err
}

// WithTimeoutOrNull is like WithTimeout but reports its own timeout as
// ok == false with a nil error. Timeouts of nested scopes are still errors.
func WithTimeoutOrNull[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error), opts ...Option) (v T, ok bool, err error) {
	v, te, err := runTimeout(ctx, d, fn, opts)
	if te != nil {
		return v, false, nil
	}
	return v, err == nil, err
}

// runTimeout reports te only when this call's own deadline cancelled the job.
func runTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error), opts []Option) (T, *TimeoutError, error) {
	var zero T
	te := &TimeoutError{Timeout: d}
	if d <= 0 {
		return zero, te, nil
	}
	var job *Job
	hook := func(j *Job) func() {
		job = j
		t := time.AfterFunc(d, func() { j.cancel(te) })
		return func() { t.Stop() }
	}
	var v T
	err := runInline(ctx, FailFast, collectOptions(opts), func(ctx context.Context) error {
		var err error
		v, err = fn(ctx)
		return err
	}, hook)
	if job != nil && job.cancelledBy(te) && (err == nil || IsCancellation(err)) {
		return zero, te, nil
	}
	if err != nil {
		return zero, nil, err
	}
	return v, nil, nil
}
