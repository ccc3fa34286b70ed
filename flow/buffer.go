package flow

import (
	"context"
	"sync"

	"github.com/NetPo4ki/go-flowscope/dispatch"
	"github.com/NetPo4ki/go-flowscope/scope"
)

const (
	// Unlimited is a Buffer capacity with no bound.
	Unlimited = -1

	// DefaultBuffer is the capacity used by FlowOn and ChannelFlow.
	DefaultBuffer = 64
)

// queue hands elements from producers to one consumer. Both sides wait at
// suspension points, so neither holds a dispatcher slot while blocked.
type queue[T any] struct {
	mu       sync.Mutex
	items    []T
	limit    int
	conflate bool
	done     bool
	err      error

	readable chan struct{}
	writable chan struct{}
}

func newQueue[T any](limit int, conflate bool) *queue[T] {
	return &queue[T]{
		limit:    limit,
		conflate: conflate,
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func wait(ctx context.Context, ch chan struct{}) error {
	if err := scope.EnsureActive(ctx); err != nil {
		return err
	}
	scope.Suspend(ctx, func() {
		select {
		case <-ch:
		case <-ctx.Done():
		}
	})
	return scope.EnsureActive(ctx)
}

func (q *queue[T]) full() bool {
	return !q.conflate && q.limit >= 0 && len(q.items) >= q.limit
}

// send adds v. A conflating queue overwrites the pending element instead of
// waiting.
func (q *queue[T]) send(ctx context.Context, v T) error {
	for {
		q.mu.Lock()
		switch {
		case q.conflate && len(q.items) > 0:
			q.items[0] = v
		case q.full():
			q.mu.Unlock()
			if err := wait(ctx, q.writable); err != nil {
				return err
			}
			continue
		default:
			q.items = append(q.items, v)
		}
		more := !q.full()
		q.mu.Unlock()
		signal(q.readable)
		if more {
			signal(q.writable)
		}
		return nil
	}
}

// close records the producer's final error. Buffered elements are still
// delivered before it.
func (q *queue[T]) close(err error) {
	q.mu.Lock()
	q.done = true
	q.err = err
	q.mu.Unlock()
	signal(q.readable)
}

// receive returns the next element, or ok == false with the producer's
// error once the queue is drained.
func (q *queue[T]) receive(ctx context.Context) (v T, ok bool, err error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v = q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			signal(q.writable)
			return v, true, nil
		}
		if q.done {
			err = q.err
			q.mu.Unlock()
			return v, false, err
		}
		q.mu.Unlock()
		if err := wait(ctx, q.readable); err != nil {
			return v, false, err
		}
	}
}

// pipe runs produce as a concurrent child job that feeds q, and emits what
// arrives on the calling goroutine.
func pipe[T any](ctx context.Context, q *queue[T], emit Collector[T], produce func(ctx context.Context, send Collector[T]) error, opts ...scope.Option) error {
	return scope.Scoped(ctx, func(sctx context.Context) error {
		scope.Launch(sctx, func(ctx context.Context) error {
			q.close(scope.Scoped(ctx, func(ctx context.Context) error {
				return produce(ctx, q.send)
			}))
			return nil
		}, opts...)
		for {
			v, ok, err := q.receive(sctx)
			if err != nil || !ok {
				return err
			}
			if err := emit(ctx, v); err != nil {
				return err
			}
		}
	})
}

// Buffer runs the upstream producer concurrently with the collector,
// separated by a buffer of capacity elements. capacity must be positive or
// Unlimited.
func (f Flow[T]) Buffer(capacity int) Flow[T] {
	if capacity < 1 && capacity != Unlimited {
		panic("flow: Buffer capacity must be positive or Unlimited")
	}
	return New(func(ctx context.Context, emit Collector[T]) error {
		return pipe(ctx, newQueue[T](capacity, false), emit, f.Collect)
	})
}

// Conflate is a buffer of one that never blocks the producer: a new element
// replaces one the collector has not taken yet. The last element is always
// delivered.
func (f Flow[T]) Conflate() Flow[T] {
	return New(func(ctx context.Context, emit Collector[T]) error {
		return pipe(ctx, newQueue[T](1, true), emit, f.Collect)
	})
}

// FlowOn runs the upstream producer on d. The collector keeps running where
// Collect was called.
func (f Flow[T]) FlowOn(d *dispatch.Dispatcher) Flow[T] {
	return New(func(ctx context.Context, emit Collector[T]) error {
		return pipe(ctx, newQueue[T](DefaultBuffer, false), emit, f.Collect, scope.WithDispatcher(d))
	})
}

// ChannelFlow creates a flow whose producer runs as its own job and may send
// from several goroutines, for example from jobs it launches. The flow ends
// when produce and everything it launched have returned.
func ChannelFlow[T any](produce func(ctx context.Context, send Collector[T]) error) Flow[T] {
	if produce == nil {
		panic("flow: ChannelFlow requires a non-nil producer")
	}
	return New(func(ctx context.Context, emit Collector[T]) error {
		return pipe(ctx, newQueue[T](DefaultBuffer, false), emit, produce)
	})
}
