package scope

import (
	"context"

	"github.com/NetPo4ki/go-flowscope/dispatch"
)

type Policy int

const (
	// FailFast cancels the parent and every sibling when a child fails.
	FailFast Policy = iota
	// Supervisor keeps siblings running; the first child failure is only recorded.
	Supervisor
)

func (p Policy) String() string {
	if p == Supervisor {
		return "supervisor"
	}
	return "failfast"
}

type Option func(*Options)

// Options are the overrides a new job lays over its parent's context.
type Options struct {
	PanicAsError   *bool
	Observer       Observer
	MaxConcurrency int
	Dispatcher     *dispatch.Dispatcher
	Name           string
	Handler        FailureHandler
	Lazy           bool

	values []keyValue
}

type keyValue struct {
	key, val any
}

func collectOptions(optFns []Option) Options {
	var o Options
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

func WithPanicAsError(v bool) Option { return func(o *Options) { o.PanicAsError = &v } }

func WithObserver(obs Observer) Option { return func(o *Options) { o.Observer = obs } }

// WithMaxConcurrency bounds how many direct children run their bodies at once.
func WithMaxConcurrency(n int) Option { return func(o *Options) { o.MaxConcurrency = n } }

func WithDispatcher(d *dispatch.Dispatcher) Option { return func(o *Options) { o.Dispatcher = d } }

// WithName names the job. Children inherit the name unless they set their own.
func WithName(name string) Option { return func(o *Options) { o.Name = name } }

// WithValue propagates an arbitrary value to the job and its descendants.
func WithValue(key, val any) Option {
	return func(o *Options) { o.values = append(o.values, keyValue{key: key, val: val}) }
}

// WithFailureHandler sets the handler that receives failures of unsupervised
// roots in this tree.
func WithFailureHandler(h FailureHandler) Option { return func(o *Options) { o.Handler = h } }

// Lazy creates the job in the Pending state. It starts on Start, Join or Await.
func Lazy() Option { return func(o *Options) { o.Lazy = true } }

type (
	jobKey            struct{}
	dispatcherKey     struct{}
	nameKey           struct{}
	observerKey       struct{}
	handlerKey        struct{}
	panicKey          struct{}
	nonCancellableKey struct{}
)

// overlay builds the child's context from the parent's one plus overrides.
func (o Options) overlay(parent context.Context) context.Context {
	ctx := parent
	if o.Dispatcher != nil {
		ctx = context.WithValue(ctx, dispatcherKey{}, o.Dispatcher)
	}
	if o.Name != "" {
		ctx = context.WithValue(ctx, nameKey{}, o.Name)
	}
	if o.Observer != nil {
		ctx = context.WithValue(ctx, observerKey{}, o.Observer)
	}
	if o.Handler != nil {
		ctx = context.WithValue(ctx, handlerKey{}, o.Handler)
	}
	if o.PanicAsError != nil {
		ctx = context.WithValue(ctx, panicKey{}, *o.PanicAsError)
	}
	for _, kv := range o.values {
		ctx = context.WithValue(ctx, kv.key, kv.val)
	}
	if v, _ := ctx.Value(nonCancellableKey{}).(bool); v {
		ctx = context.WithValue(ctx, nonCancellableKey{}, false)
	}
	return ctx
}

// JobFrom returns the job whose body ctx belongs to, or nil.
func JobFrom(ctx context.Context) *Job {
	j, _ := ctx.Value(jobKey{}).(*Job)
	return j
}

// DispatcherFrom returns the dispatcher ctx resolves to. It defaults to
// dispatch.Default.
func DispatcherFrom(ctx context.Context) *dispatch.Dispatcher {
	if d, ok := ctx.Value(dispatcherKey{}).(*dispatch.Dispatcher); ok && d != nil {
		return d
	}
	return dispatch.Default()
}

// NameFrom returns the job name carried by ctx, or "job".
func NameFrom(ctx context.Context) string {
	if n, ok := ctx.Value(nameKey{}).(string); ok && n != "" {
		return n
	}
	return "job"
}

// Label returns a debugging label such as "worker#12" for the job of ctx.
func Label(ctx context.Context) string {
	if j := JobFrom(ctx); j != nil {
		return j.String()
	}
	return NameFrom(ctx)
}

func observerFrom(ctx context.Context) Observer {
	obs, _ := ctx.Value(observerKey{}).(Observer)
	return obs
}

func panicAsErrorFrom(ctx context.Context) bool {
	if v, ok := ctx.Value(panicKey{}).(bool); ok {
		return v
	}
	return true
}

func nonCancellable(ctx context.Context) bool {
	v, _ := ctx.Value(nonCancellableKey{}).(bool)
	return v
}
