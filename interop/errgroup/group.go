// Package errgroup mirrors the golang.org/x/sync/errgroup API on top of a
// fail-fast scope, so existing errgroup code gets job-tree cancellation,
// observers and dispatcher slots without being rewritten.
package errgroup

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/NetPo4ki/go-flowscope/scope"
)

// Group is an errgroup-like wrapper over scope.Scope (FailFast).
type Group struct {
	s   *scope.Scope
	ctx context.Context
	sem *semaphore.Weighted
}

// WithContext creates a Group bound to ctx. The returned context is
// cancelled when any function passed to Go fails or when Wait returns.
func WithContext(ctx context.Context, opts ...scope.Option) (*Group, context.Context) {
	s := scope.New(ctx, scope.FailFast, opts...)
	g := &Group{s: s, ctx: s.Context()}
	return g, g.ctx
}

// SetLimit bounds the number of functions running at once. Go blocks,
// and TryGo fails, while the limit is reached. A negative n removes the
// limit. It must not be called while functions are running.
func (g *Group) SetLimit(n int) {
	if n < 0 {
		g.sem = nil
		return
	}
	g.sem = semaphore.NewWeighted(int64(n))
}

// Go starts f. It should return a non-nil error to signal failure.
func (g *Group) Go(f func() error) {
	if f == nil {
		return
	}
	if g.sem != nil {
		// Acquire with a background context: errgroup's Go never gives up.
		_ = g.sem.Acquire(context.Background(), 1)
	}
	g.start(f)
}

// TryGo starts f only if the limit allows it right now.
func (g *Group) TryGo(f func() error) bool {
	if f == nil {
		return false
	}
	if g.sem != nil && !g.sem.TryAcquire(1) {
		return false
	}
	g.start(f)
	return true
}

func (g *Group) start(f func() error) {
	sem := g.sem
	g.s.Go(func(context.Context) error {
		if sem != nil {
			defer sem.Release(1)
		}
		return f()
	})
}

// Wait blocks until all functions have returned and returns the first
// failure, or the cancellation that stopped the group.
func (g *Group) Wait() error {
	return g.s.Wait()
}

// Scope exposes the underlying scope, for example to launch jobs with
// per-job options.
func (g *Group) Scope() *scope.Scope { return g.s }
