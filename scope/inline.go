package scope

import (
	"context"

	"github.com/NetPo4ki/go-flowscope/dispatch"
)

// arm is called once an inline job is active and returns a function that is
// called after the job is terminal.
type arm func(j *Job) (disarm func())

// runInline runs fn on the calling goroutine as an inline child of ctx's job
// and waits for every child fn launched. The result is returned to the
// caller instead of being propagated to the parent.
func runInline(ctx context.Context, policy Policy, o Options, fn func(ctx context.Context) error, hook arm) error {
	j := newJob(ctx, inline, policy, o, fn)
	if !j.activate() {
		return j.Err()
	}
	if hook != nil {
		disarm := hook(j)
		defer disarm()
	}

	parent := JobFrom(ctx)
	var outer dispatch.Worker
	if parent != nil {
		outer = parent.worker
	}
	switch {
	case outer != nil && parent.disp == j.disp:
		j.worker = outer
	case outer != nil || o.Dispatcher != nil:
		if outer != nil {
			outer.Park()
		}
		w := j.disp.Acquire()
		j.worker = w
		defer func() {
			w.Release()
			if outer != nil {
				outer.Unpark()
			}
		}()
	}

	var bodyErr error
	if err := EnsureActive(j.ctx); err != nil {
		bodyErr = err
		j.bodyFinished(err)
	} else {
		bodyErr = j.runBody(fn)
	}
	if w := j.worker; w != nil {
		w.Park()
		<-j.done
		w.Unpark()
	} else {
		<-j.done
	}
	return j.result(bodyErr)
}

// Scoped runs fn as an inline child and waits for everything it launches.
// The first failure cancels the rest and is returned.
func Scoped(ctx context.Context, fn func(ctx context.Context) error, opts ...Option) error {
	return runInline(ctx, FailFast, collectOptions(opts), fn, nil)
}

// Supervised is like Scoped but a failing child does not cancel its
// siblings. The first child failure is returned once all of them finished.
func Supervised(ctx context.Context, fn func(ctx context.Context) error, opts ...Option) error {
	return runInline(ctx, Supervisor, collectOptions(opts), fn, nil)
}

// WithContext runs fn with opts laid over ctx, typically to switch dispatcher,
// and returns its result.
func WithContext[T any](ctx context.Context, fn func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var v T
	err := runInline(ctx, FailFast, collectOptions(opts), func(ctx context.Context) error {
		var err error
		v, err = fn(ctx)
		return err
	}, nil)
	if err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// RunBlocking bridges plain code into the job world. It blocks until fn and
// every job in its tree are terminal. Bodies run on a fresh confined
// dispatcher named "main" unless opts choose another one.
func RunBlocking[T any](ctx context.Context, fn func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	if JobFrom(ctx) != nil {
		var zero T
		return zero, ErrNestedRunBlocking
	}
	main := dispatch.NewConfined("main")
	defer main.Close()
	opts = append([]Option{WithDispatcher(main), WithName("main")}, opts...)
	return WithContext(ctx, fn, opts...)
}
