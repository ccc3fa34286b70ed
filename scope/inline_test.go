package scope

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NetPo4ki/go-flowscope/dispatch"
)

func TestRunBlockingWaitsForChildren(t *testing.T) {
	t.Parallel()
	var done atomic.Int32
	v, err := RunBlocking(context.Background(), func(ctx context.Context) (string, error) {
		for i := 0; i < 3; i++ {
			Launch(ctx, func(ctx context.Context) error {
				if err := Delay(ctx, 10*time.Millisecond); err != nil {
					return err
				}
				done.Add(1)
				return nil
			})
		}
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("unexpected result %q %v", v, err)
	}
	if got := done.Load(); got != 3 {
		t.Fatalf("RunBlocking returned before its children: %d/3 done", got)
	}
}

func TestRunBlockingNested(t *testing.T) {
	t.Parallel()
	err := run(t, func(ctx context.Context) error {
		_, err := RunBlocking(ctx, func(context.Context) (int, error) { return 1, nil })
		if !errors.Is(err, ErrNestedRunBlocking) {
			t.Errorf("expected ErrNestedRunBlocking, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfinedRunsInSubmissionOrder(t *testing.T) {
	t.Parallel()
	var order []int
	err := run(t, func(ctx context.Context) error {
		if d := DispatcherFrom(ctx); d.Kind() != dispatch.Confined || d.Name() != "main" {
			t.Errorf("expected the main confined dispatcher, got %v", d)
		}
		for i := 0; i < 5; i++ {
			Launch(ctx, func(context.Context) error {
				order = append(order, i)
				return nil
			})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(order, []int{0, 1, 2, 3, 4}) {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestScopedReturnsFirstFailure(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	var slow *Job
	start := time.Now()
	err := run(t, func(ctx context.Context) error {
		err := Scoped(ctx, func(ctx context.Context) error {
			slow = Launch(ctx, func(ctx context.Context) error {
				return Delay(ctx, time.Second)
			})
			Launch(ctx, func(ctx context.Context) error {
				if err := Delay(ctx, 10*time.Millisecond); err != nil {
					return err
				}
				return boom
			})
			return nil
		})
		if !errors.Is(err, boom) {
			t.Errorf("expected boom from Scoped, got %v", err)
		}
		if !IsActive(ctx) {
			t.Error("a failed inline scope must not cancel its caller")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("sibling was not cancelled: %v", elapsed)
	}
	if !slow.IsCancelled() {
		t.Fatalf("expected sibling cancelled, got %v", slow.State())
	}
}

func TestSupervisedKeepsSiblings(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	var finished atomic.Bool
	err := Supervised(context.Background(), func(ctx context.Context) error {
		Launch(ctx, func(context.Context) error { return boom })
		Launch(ctx, func(ctx context.Context) error {
			if err := Delay(ctx, 20*time.Millisecond); err != nil {
				return err
			}
			finished.Store(true)
			return nil
		})
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if !finished.Load() {
		t.Fatal("sibling should finish under Supervised")
	}
}

func TestScopedExternalCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	err := Scoped(ctx, func(ctx context.Context) error {
		Launch(ctx, func(ctx context.Context) error { return Delay(ctx, time.Second) })
		return Delay(ctx, time.Second)
	})
	if !IsCancellation(err) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation caused by context.Canceled, got %v", err)
	}
}

func TestScopedUnderFinishedParentIsCancelled(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), FailFast)
	_ = s.Wait()
	var ran atomic.Bool
	err := Scoped(s.Context(), func(context.Context) error {
		ran.Store(true)
		return nil
	})
	if !errors.Is(err, ErrCancelled) || ran.Load() {
		t.Fatalf("expected an immediate cancellation, got %v ran=%v", err, ran.Load())
	}
}

func TestWithContextSwitchesDispatcher(t *testing.T) {
	t.Parallel()
	pool := dispatch.NewPool("ctx-test", dispatch.IO, 2)
	defer pool.Close()
	name, err := RunBlocking(context.Background(), func(ctx context.Context) (string, error) {
		return WithContext(ctx, func(ctx context.Context) (string, error) {
			if st := pool.Stats(); st.Running != 1 {
				t.Errorf("expected one slot taken on the pool, got %+v", st)
			}
			if st := DispatcherFrom(ctx).Stats(); st.Name != "ctx-test" {
				t.Errorf("unexpected dispatcher %+v", st)
			}
			return NameFrom(ctx), nil
		}, WithDispatcher(pool), WithName("switched"))
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "switched" {
		t.Fatalf("unexpected name %q", name)
	}
	if st := pool.Stats(); st.Running != 0 {
		t.Fatalf("slot leaked: %+v", st)
	}
}

func TestWithContextReleasesCallerSlot(t *testing.T) {
	t.Parallel()
	pool := dispatch.NewPool("other", dispatch.IO, 1)
	defer pool.Close()
	var sawSibling atomic.Bool
	err := run(t, func(ctx context.Context) error {
		Launch(ctx, func(context.Context) error {
			sawSibling.Store(true)
			return nil
		})
		_, err := WithContext(ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, Delay(ctx, 20*time.Millisecond)
		}, WithDispatcher(pool))
		if !sawSibling.Load() {
			t.Error("the main slot should be free while the block runs elsewhere")
		}
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
