package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NetPo4ki/go-flowscope/dispatch"
	"github.com/NetPo4ki/go-flowscope/flow"
	"github.com/NetPo4ki/go-flowscope/scope"
)

type env struct {
	log     *slog.Logger
	compute *dispatch.Dispatcher
	io      *dispatch.Dispatcher
}

type scenario func(ctx context.Context, e *env) error

var scenarios = map[string]scenario{
	"cancel":     cancelLoop,
	"timeout":    timeoutLoop,
	"async":      asyncSum,
	"supervisor": supervisedFailures,
	"flow":       flowPipeline,
	"buffer":     bufferedFlow,
	"conflate":   conflatedFlow,
	"latest":     latestFlow,
	"context":    switchContext,
}

// cancelLoop cancels a ticking child after a few ticks.
func cancelLoop(ctx context.Context, e *env) error {
	job := scope.Launch(ctx, func(ctx context.Context) error {
		for i := 0; ; i++ {
			e.log.InfoContext(ctx, "tick", "i", i)
			if err := scope.Delay(ctx, 50*time.Millisecond); err != nil {
				return err
			}
		}
	}, scope.WithName("ticker"))
	if err := scope.Delay(ctx, 130*time.Millisecond); err != nil {
		return err
	}
	if err := job.CancelAndJoin(ctx, nil); err != nil {
		return err
	}
	e.log.InfoContext(ctx, "ticker stopped", "state", job.State())
	return nil
}

// timeoutLoop bounds a loop with a timeout, then cleans up without being
// cancelled.
func timeoutLoop(ctx context.Context, e *env) error {
	_, ok, err := scope.WithTimeoutOrNull(ctx, 130*time.Millisecond, func(ctx context.Context) (struct{}, error) {
		defer func() {
			_ = scope.NonCancellable(ctx, func(ctx context.Context) error {
				e.log.InfoContext(ctx, "cleaning up")
				return scope.Delay(ctx, 20*time.Millisecond)
			})
		}()
		for i := 0; ; i++ {
			e.log.InfoContext(ctx, "working", "i", i)
			if err := scope.Delay(ctx, 50*time.Millisecond); err != nil {
				return struct{}{}, err
			}
		}
	})
	if err != nil {
		return err
	}
	e.log.InfoContext(ctx, "loop bounded", "completed", ok)
	return nil
}

// asyncSum computes two values concurrently on the compute dispatcher.
func asyncSum(ctx context.Context, e *env) error {
	value := func(v int, d time.Duration) func(context.Context) (int, error) {
		return func(ctx context.Context) (int, error) {
			if err := scope.Delay(ctx, d); err != nil {
				return 0, err
			}
			return v, nil
		}
	}
	start := time.Now()
	one := scope.Async(ctx, value(13, 100*time.Millisecond), scope.WithDispatcher(e.compute))
	two := scope.Async(ctx, value(29, 80*time.Millisecond), scope.WithDispatcher(e.compute))
	vs, err := scope.AwaitAll(ctx, one, two)
	if err != nil {
		return err
	}
	e.log.InfoContext(ctx, "sum", "value", vs[0]+vs[1], "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// supervisedFailures shows that a failing child does not stop its siblings
// under supervision.
func supervisedFailures(ctx context.Context, e *env) error {
	err := scope.Supervised(ctx, func(ctx context.Context) error {
		for i := 0; i < 3; i++ {
			scope.Launch(ctx, func(ctx context.Context) error {
				if err := scope.Delay(ctx, time.Duration(i+1)*20*time.Millisecond); err != nil {
					return err
				}
				if i == 1 {
					return fmt.Errorf("worker %d failed", i)
				}
				e.log.InfoContext(ctx, "worker done", "i", i)
				return nil
			}, scope.WithName(fmt.Sprintf("worker-%d", i)))
		}
		return nil
	})
	e.log.InfoContext(ctx, "supervised scope finished", "error", err)
	return nil
}

func flowPipeline(ctx context.Context, e *env) error {
	evens := flow.FromSlice([]int{1, 2, 3, 4, 5, 6}).Filter(func(v int) bool { return v%2 == 0 })
	squares, err := flow.Map(evens, func(_ context.Context, v int) (int, error) { return v * v, nil }).
		OnCompletion(func(ctx context.Context, err error) error {
			e.log.InfoContext(ctx, "pipeline completed", "error", err)
			return nil
		}).
		ToList(ctx)
	if err != nil {
		return err
	}
	e.log.InfoContext(ctx, "squares", "values", squares)
	return nil
}

func ticks(n int, every time.Duration) flow.Flow[int] {
	return flow.New(func(ctx context.Context, emit flow.Collector[int]) error {
		for i := 1; i <= n; i++ {
			if err := scope.Delay(ctx, every); err != nil {
				return err
			}
			if err := emit(ctx, i); err != nil {
				return err
			}
		}
		return nil
	})
}

func slowly(e *env, d time.Duration) flow.Collector[int] {
	return func(ctx context.Context, v int) error {
		if err := scope.Delay(ctx, d); err != nil {
			return err
		}
		e.log.InfoContext(ctx, "collected", "value", v)
		return nil
	}
}

func bufferedFlow(ctx context.Context, e *env) error {
	start := time.Now()
	if err := ticks(3, 100*time.Millisecond).Buffer(flow.DefaultBuffer).Collect(ctx, slowly(e, 300*time.Millisecond)); err != nil {
		return err
	}
	e.log.InfoContext(ctx, "buffered", "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func conflatedFlow(ctx context.Context, e *env) error {
	start := time.Now()
	if err := ticks(3, 100*time.Millisecond).Conflate().Collect(ctx, slowly(e, 300*time.Millisecond)); err != nil {
		return err
	}
	e.log.InfoContext(ctx, "conflated", "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func latestFlow(ctx context.Context, e *env) error {
	request := func(i int) flow.Flow[string] {
		return flow.New(func(ctx context.Context, emit flow.Collector[string]) error {
			if err := emit(ctx, fmt.Sprintf("%d: First", i)); err != nil {
				return err
			}
			if err := scope.Delay(ctx, 500*time.Millisecond); err != nil {
				return err
			}
			return emit(ctx, fmt.Sprintf("%d: Second", i))
		})
	}
	return flow.FlatMapLatest(ticks(3, 100*time.Millisecond), request).Collect(ctx, func(ctx context.Context, v string) error {
		e.log.InfoContext(ctx, "latest", "value", v)
		return nil
	})
}

// switchContext hops to the IO dispatcher for a blocking call and back.
func switchContext(ctx context.Context, e *env) error {
	v, err := scope.WithContext(ctx, func(ctx context.Context) (string, error) {
		e.log.InfoContext(ctx, "loading", "dispatcher", scope.DispatcherFrom(ctx).Name())
		if err := scope.Delay(ctx, 30*time.Millisecond); err != nil {
			return "", err
		}
		return "payload", nil
	}, scope.WithDispatcher(e.io), scope.WithName("load"))
	if err != nil {
		return err
	}
	if v == "" {
		return errors.New("empty payload")
	}
	e.log.InfoContext(ctx, "loaded", "value", v, "dispatcher", scope.DispatcherFrom(ctx).Name())
	return nil
}
