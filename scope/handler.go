package scope

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// FailureHandler receives failures that have no parent left to propagate to.
type FailureHandler func(ctx context.Context, job *Job, err error)

var processHandler atomic.Pointer[FailureHandler]

// SetFailureHandler replaces the process-wide handler and returns a function
// restoring the previous one. A nil handler restores the default.
func SetFailureHandler(h FailureHandler) (restore func()) {
	var prev *FailureHandler
	if h == nil {
		prev = processHandler.Swap(nil)
	} else {
		prev = processHandler.Swap(&h)
	}
	return func() { processHandler.Store(prev) }
}

func handlerFor(ctx context.Context) FailureHandler {
	if h, ok := ctx.Value(handlerKey{}).(FailureHandler); ok && h != nil {
		return h
	}
	if h := processHandler.Load(); h != nil {
		return *h
	}
	return fatalFailure
}

// fatalFailure is the default: an unhandled failure of a root job is fatal.
func fatalFailure(ctx context.Context, job *Job, err error) {
	slog.ErrorContext(ctx, "unhandled job failure", "job", job.String(), "err", err)
	panic(err)
}
