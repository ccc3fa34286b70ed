package scope

import (
	"context"
	"errors"

	"github.com/NetPo4ki/go-flowscope/dispatch"
)

// Launch starts fn as a child of the job ctx belongs to and returns at once.
// Failures surface through the job tree, not through the returned handle.
//
// Launch panics if ctx carries no job; create a root first with RunBlocking,
// New, Scoped or Detached.
func Launch(ctx context.Context, fn func(ctx context.Context) error, opts ...Option) *Job {
	if fn == nil {
		panic("scope: Launch requires a non-nil body")
	}
	if JobFrom(ctx) == nil {
		panic("scope: Launch requires a job context")
	}
	return start(ctx, fn, collectOptions(opts))
}

func start(ctx context.Context, fn func(ctx context.Context) error, o Options) *Job {
	j := newJob(ctx, launched, FailFast, o, fn)
	if !o.Lazy {
		j.Start()
	}
	return j
}

// Detached starts fn as an unsupervised root. It is not cancelled with ctx and
// does not inherit ctx's dispatcher. Its failure goes to the failure handler.
func Detached(ctx context.Context, fn func(ctx context.Context) error, opts ...Option) *Job {
	if fn == nil {
		panic("scope: Detached requires a non-nil body")
	}
	base := context.WithoutCancel(ctx)
	base = context.WithValue(base, jobKey{}, (*Job)(nil))
	base = context.WithValue(base, dispatcherKey{}, dispatch.Default())
	return start(base, fn, collectOptions(opts))
}

// Deferred is a job with a result.
type Deferred[T any] struct {
	*Job
	value T
}

// Async starts fn like Launch and lets the caller Await its result.
func Async[T any](ctx context.Context, fn func(ctx context.Context) (T, error), opts ...Option) *Deferred[T] {
	if fn == nil {
		panic("scope: Async requires a non-nil body")
	}
	if JobFrom(ctx) == nil {
		panic("scope: Async requires a job context")
	}
	d := &Deferred[T]{}
	o := collectOptions(opts)
	d.Job = newJob(ctx, launched, FailFast, o, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			d.value = v
		}
		return err
	})
	if !o.Lazy {
		d.Start()
	}
	return d
}

// Await waits for the result. It returns the body's own error when the body
// failed and a cancellation signal when the job was cancelled.
func (d *Deferred[T]) Await(ctx context.Context) (T, error) {
	var zero T
	if err := d.Join(ctx); err != nil {
		return zero, err
	}
	if err := d.Err(); err != nil {
		return zero, err
	}
	return d.value, nil
}

// AwaitAll awaits every deferred in order and stops at the first error.
func AwaitAll[T any](ctx context.Context, ds ...*Deferred[T]) ([]T, error) {
	out := make([]T, 0, len(ds))
	for _, d := range ds {
		v, err := d.Await(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// JoinAll joins every job and returns the cancellation of the caller, if any.
func JoinAll(ctx context.Context, jobs ...*Job) error {
	var errs []error
	for _, j := range jobs {
		if err := j.Join(ctx); err != nil {
			errs = append(errs, err)
			if !errors.Is(err, ErrJoinCycle) {
				break
			}
		}
	}
	return errors.Join(errs...)
}
