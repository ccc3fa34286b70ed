package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/NetPo4ki/go-flowscope/scope"
)

var (
	// ErrNoElements is returned by terminals that need at least one element.
	ErrNoElements = errors.New("flow: no elements")

	// ErrTooManyElements is returned by Single when the flow emits twice.
	ErrTooManyElements = errors.New("flow: more than one element")

	// ErrTransparency is returned to a producer that emits again after its
	// collector has failed.
	ErrTransparency = errors.New("flow: emission after a downstream failure")
)

// Collector receives the elements of a flow. A non-nil error stops the
// producer; it is returned to whoever called Collect.
type Collector[T any] func(ctx context.Context, v T) error

// Flow is a cold stream: nothing runs until Collect is called, and every
// Collect runs the producer from the start. The zero Flow emits nothing.
//
// A producer must call emit from one goroutine at a time. Use ChannelFlow
// for concurrent producers.
type Flow[T any] struct {
	produce func(ctx context.Context, emit Collector[T]) error
}

// New creates a flow from a producer function.
func New[T any](produce func(ctx context.Context, emit Collector[T]) error) Flow[T] {
	if produce == nil {
		panic("flow: New requires a non-nil producer")
	}
	return Flow[T]{produce: produce}
}

// Of emits values in order.
func Of[T any](values ...T) Flow[T] {
	return FromSlice(values)
}

// FromSlice emits the elements of s in order.
func FromSlice[T any](s []T) Flow[T] {
	return New(func(ctx context.Context, emit Collector[T]) error {
		for _, v := range s {
			if err := emit(ctx, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// FromChan emits every value received from ch until it is closed. The flow
// is only as cold as the channel: collecting twice shares the values.
func FromChan[T any](ch <-chan T) Flow[T] {
	return New(func(ctx context.Context, emit Collector[T]) error {
		for {
			var (
				v   T
				ok  bool
				err error
			)
			scope.Suspend(ctx, func() {
				select {
				case v, ok = <-ch:
				case <-ctx.Done():
					err = scope.EnsureActive(ctx)
				}
			})
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if err := emit(ctx, v); err != nil {
				return err
			}
		}
	})
}

// Collect runs the producer and hands every element to c. Each emission is a
// cancellation checkpoint. If c fails, that error is returned even when the
// producer swallows it.
func (f Flow[T]) Collect(ctx context.Context, c Collector[T]) error {
	if f.produce == nil {
		return nil
	}
	var downErr error
	err := f.produce(ctx, func(ctx context.Context, v T) error {
		if downErr != nil {
			return fmt.Errorf("%w: %v", ErrTransparency, downErr)
		}
		if err := scope.EnsureActive(ctx); err != nil {
			return err
		}
		if err := c(ctx, v); err != nil {
			downErr = err
			return err
		}
		return nil
	})
	if downErr != nil {
		return downErr
	}
	return err
}

// collectUpstream collects f into emit and reports whether a returned error
// came from emit rather than from f itself.
func collectUpstream[T any](ctx context.Context, f Flow[T], emit Collector[T]) (downstream bool, err error) {
	var downErr error
	err = f.Collect(ctx, func(ctx context.Context, v T) error {
		if err := emit(ctx, v); err != nil {
			downErr = err
			return err
		}
		return nil
	})
	if err != nil && downErr != nil && (err == downErr || errors.Is(err, downErr)) {
		return true, err
	}
	return false, err
}

// abort stops a producer early. Each operator owns its own value so nested
// operators do not swallow each other's aborts.
type abort struct{ _ byte }

func (*abort) Error() string { return "flow: collection aborted" }

func newAbort() *abort { return new(abort) }
