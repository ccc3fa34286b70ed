package scope

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestGoWaitSuccess(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), FailFast)
	done := atomic.Int32{}
	s.Go(func(_ context.Context) error {
		done.Add(1)
		return nil
	})
	if err := s.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := done.Load(); got != 1 {
		t.Fatalf("expected task to run once, got %d", got)
	}
	if st := s.Job().State(); st != Completed {
		t.Fatalf("expected Completed, got %v", st)
	}
}

func TestCancelIdempotentMultiWait(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), FailFast)
	s.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	stop := errors.New("stop")
	s.Cancel(stop)
	s.Cancel(nil)
	err1 := s.Wait()
	err2 := s.Wait()
	if err1 == nil || err2 == nil {
		t.Fatalf("expected non-nil error from Wait after cancel, got (%v, %v)", err1, err2)
	}
	if err1.Error() != err2.Error() {
		t.Fatalf("Wait should return same error; got %v vs %v", err1, err2)
	}
	if !errors.Is(err1, ErrCancelled) || !errors.Is(err1, stop) {
		t.Fatalf("expected cancellation caused by stop, got %v", err1)
	}
}

func TestFailFastCancelsSiblings(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), FailFast)
	blocked := make(chan struct{})

	s.Go(func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			t.Error("sibling was not cancelled by fail-fast")
			return nil
		case <-ctx.Done():
			close(blocked)
			return ctx.Err()
		}
	})
	boom := errors.New("boom")
	s.Go(func(ctx context.Context) error {
		if err := Delay(ctx, 30*time.Millisecond); err != nil {
			return err
		}
		return boom
	})
	if err := s.Wait(); !errors.Is(err, boom) {
		t.Fatalf("expected boom from fail-fast scope, got %v", err)
	}
	select {
	case <-blocked:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("sibling did not observe cancellation in time")
	}
}

func TestFailFastKeepsLaterFailuresSuppressed(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), FailFast)
	first := errors.New("first")
	started := make(chan struct{})
	s.Go(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return errors.New("second")
	})
	s.Go(func(_ context.Context) error {
		<-started
		return first
	})
	if err := s.Wait(); !errors.Is(err, first) {
		t.Fatalf("expected first failure, got %v", err)
	}
	if got := len(s.Job().Suppressed()); got != 1 {
		t.Fatalf("expected one suppressed failure, got %d", got)
	}
}

func TestSupervisorDoesNotCancelSiblings(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), Supervisor)
	done := make(chan struct{})
	s.Go(func(ctx context.Context) error {
		if err := Delay(ctx, 40*time.Millisecond); err != nil {
			return err
		}
		close(done)
		return nil
	})
	s.Go(func(ctx context.Context) error {
		_ = Delay(ctx, 10*time.Millisecond)
		return errors.New("err")
	})
	if err := s.Wait(); err == nil {
		t.Fatal("expected non-nil error from supervisor Wait")
	}
	select {
	case <-done:
	case <-time.After(150 * time.Millisecond):
		t.Fatal("sibling should not be cancelled under Supervisor policy")
	}
}

func TestPanicAsErrorConverted(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), FailFast, WithPanicAsError(true))
	s.Go(func(ctx context.Context) error {
		panic("panic-value")
	})
	err := s.Wait()
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected converted panic error, got %v", err)
	}
	if pe.Value != "panic-value" || pe.Stack == "" {
		t.Fatalf("panic error lost its value or stack: %#v", pe)
	}
}

func TestChildCancellation(t *testing.T) {
	t.Parallel()
	parent := New(context.Background(), FailFast)
	child := parent.Child(FailFast)
	cancelObserved := make(chan struct{})
	child.Go(func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelObserved)
		return ctx.Err()
	})
	parent.Cancel(errors.New("stop"))
	_ = parent.Wait()
	select {
	case <-cancelObserved:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("child did not observe parent's cancellation")
	}
	if !child.Job().IsCancelled() {
		t.Fatalf("child scope should be cancelled, got %v", child.Job().State())
	}
}

func TestWaitClosesNestedScopes(t *testing.T) {
	t.Parallel()
	parent := New(context.Background(), FailFast)
	child := parent.Child(FailFast)
	child.Go(func(_ context.Context) error { return nil })
	if err := parent.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st := child.Job().State(); st != Completed {
		t.Fatalf("nested scope should be completed, got %v", st)
	}
}

type countObserver struct {
	created   atomic.Int64
	started   atomic.Int64
	finished  atomic.Int64
	joined    atomic.Int64
	cancelled atomic.Int64
	terminal  atomic.Int64
}

func (o *countObserver) JobCreated(context.Context, JobInfo) { o.created.Add(1) }
func (o *countObserver) JobCancelled(context.Context, JobInfo, error) {
	o.cancelled.Add(1)
}
func (o *countObserver) JobJoined(context.Context, JobInfo, time.Duration) { o.joined.Add(1) }
func (o *countObserver) JobFinished(context.Context, JobInfo, State, error) {
	o.terminal.Add(1)
}
func (o *countObserver) BodyStarted(context.Context, JobInfo) { o.started.Add(1) }
func (o *countObserver) BodyFinished(context.Context, JobInfo, time.Duration, error, bool) {
	o.finished.Add(1)
}

func TestObserverHooks(t *testing.T) {
	t.Parallel()
	obs := &countObserver{}
	s := New(context.Background(), FailFast, WithObserver(obs))
	s.Go(func(_ context.Context) error { return nil })
	s.Go(func(_ context.Context) error { return nil })
	if err := s.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs.started.Load() != 2 || obs.finished.Load() != 2 || obs.joined.Load() != 1 {
		t.Fatalf("unexpected observer counts: started=%d finished=%d joined=%d",
			obs.started.Load(), obs.finished.Load(), obs.joined.Load())
	}
	if obs.created.Load() != 3 || obs.terminal.Load() != 3 {
		t.Fatalf("expected 3 jobs created and finished, got %d/%d", obs.created.Load(), obs.terminal.Load())
	}
}

func TestObserversFanOut(t *testing.T) {
	t.Parallel()
	a, b := &countObserver{}, &countObserver{}
	s := New(context.Background(), FailFast, WithObserver(Observers(a, nil, b)))
	s.Go(func(_ context.Context) error { return nil })
	_ = s.Wait()
	if a.started.Load() != 1 || b.started.Load() != 1 {
		t.Fatalf("both observers should see the body: %d %d", a.started.Load(), b.started.Load())
	}
}
