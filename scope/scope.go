package scope

import (
	"context"
	"slices"
	"time"

	"github.com/NetPo4ki/go-flowscope/dispatch"
)

// Scope is an explicit handle on a job without a body of its own. Work is
// added with Go or Launch and collected with Wait.
type Scope struct {
	job   *Job
	owner context.Context
}

// New creates a scope. If parent belongs to a job the scope becomes its
// child, and that job does not finish until the scope is waited for or
// cancelled. Scopes outside any job run their work on the IO dispatcher
// unless WithDispatcher says otherwise.
func New(parent context.Context, policy Policy, optFns ...Option) *Scope {
	if parent == nil {
		parent = context.Background()
	}
	o := collectOptions(optFns)
	if o.Dispatcher == nil {
		if _, ok := parent.Value(dispatcherKey{}).(*dispatch.Dispatcher); !ok {
			o.Dispatcher = dispatch.IODispatcher()
		}
	}
	j := newJob(parent, scoped, policy, o, nil)
	j.activate()
	return &Scope{job: j, owner: parent}
}

func (s *Scope) Context() context.Context { return s.job.ctx }

func (s *Scope) Job() *Job { return s.job }

// Go runs fn as a child of the scope. A nil fn is ignored.
func (s *Scope) Go(fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	start(s.job.ctx, fn, Options{})
}

// Launch is Go with per-child options and a handle on the child.
func (s *Scope) Launch(fn func(ctx context.Context) error, opts ...Option) *Job {
	return Launch(s.job.ctx, fn, opts...)
}

// Cancel cancels the scope and all of its work. A nil err cancels without a
// cause.
func (s *Scope) Cancel(err error) {
	s.job.Cancel(err)
}

// Wait closes the scope and blocks until every child is terminal. It returns
// the first failure or, for a cancelled scope, the cancellation signal. It is
// safe to call more than once.
//
// A scope created inside a job should be waited for from that job's body.
func (s *Scope) Wait() error {
	var start time.Time
	if s.job.obs != nil {
		start = time.Now()
	}
	s.job.close()
	Suspend(s.owner, func() { <-s.job.done })
	if s.job.obs != nil {
		s.job.obs.JobJoined(s.job.ctx, s.job.Info(), time.Since(start))
	}
	return s.job.result(nil)
}

// Child creates a nested scope whose work is cancelled with s.
func (s *Scope) Child(policy Policy, optFns ...Option) *Scope {
	return New(s.job.ctx, policy, optFns...)
}

// close marks a scoped job and its nested scopes as accepting no more work
// of their own.
func (j *Job) close() {
	j.mu.Lock()
	j.bodyDone = true
	ids := slices.Clone(j.children)
	j.mu.Unlock()
	for _, id := range ids {
		if c := j.arena.get(id); c != nil && c.kind == scoped {
			c.close()
		}
	}
	j.tryFinish()
}
