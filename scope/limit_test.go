package scope

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type peak struct {
	cur, max atomic.Int64
}

func (p *peak) enter() {
	c := p.cur.Add(1)
	for {
		m := p.max.Load()
		if c <= m || p.max.CompareAndSwap(m, c) {
			return
		}
	}
}

func (p *peak) leave() { p.cur.Add(-1) }

func TestMaxConcurrencyBound(t *testing.T) {
	t.Parallel()
	const N = 8
	const M = 50
	s := New(context.Background(), Supervisor, WithMaxConcurrency(N))
	var p peak
	for i := 0; i < M; i++ {
		s.Go(func(ctx context.Context) error {
			p.enter()
			defer p.leave()
			return Delay(ctx, 5*time.Millisecond)
		})
	}
	if err := s.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if observed := int(p.max.Load()); observed > N {
		t.Fatalf("observed concurrency %d exceeds limit %d", observed, N)
	}
}

func TestLimiterAcquireRespectsCancel(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), FailFast, WithMaxConcurrency(1))
	block := make(chan struct{})
	s.Go(func(_ context.Context) error {
		<-block
		return nil
	})
	var ran atomic.Bool
	// queued behind the limiter until the scope is cancelled
	second := s.Launch(func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	time.Sleep(10 * time.Millisecond)
	start := time.Now()
	s.Cancel(context.Canceled)
	if err := second.Join(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Fatalf("expected quick abort on cancel, got %v", elapsed)
	}
	close(block)
	_ = s.Wait()
	if ran.Load() {
		t.Fatal("queued body should not run after cancellation")
	}
	if st := second.State(); st != Cancelled {
		t.Fatalf("expected Cancelled, got %v", st)
	}
}

func TestChildMaxConcurrencyBound(t *testing.T) {
	t.Parallel()
	parent := New(context.Background(), Supervisor)
	child := parent.Child(Supervisor, WithMaxConcurrency(1))
	var p peak
	ch1 := make(chan struct{})
	ch2 := make(chan struct{})
	for _, ch := range []chan struct{}{ch1, ch2} {
		child.Go(func(ctx context.Context) error {
			p.enter()
			defer p.leave()
			Suspend(ctx, func() { <-ch })
			return nil
		})
	}
	time.Sleep(20 * time.Millisecond)
	if observed := int(p.max.Load()); observed > 1 {
		t.Fatalf("child observed concurrency %d exceeds limit 1", observed)
	}
	close(ch1)
	close(ch2)
	_ = child.Wait()
	_ = parent.Wait()
	if observed := int(p.max.Load()); observed != 1 {
		t.Fatalf("expected peak concurrency 1, got %d", observed)
	}
}

func TestLaunchUnderMaxConcurrency(t *testing.T) {
	t.Parallel()
	var p peak
	_, err := RunBlocking(context.Background(), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, Scoped(ctx, func(ctx context.Context) error {
			for i := 0; i < 6; i++ {
				Launch(ctx, func(ctx context.Context) error {
					p.enter()
					defer p.leave()
					return Delay(ctx, 5*time.Millisecond)
				})
			}
			return nil
		}, WithMaxConcurrency(2))
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if observed := int(p.max.Load()); observed > 2 {
		t.Fatalf("observed concurrency %d exceeds limit 2", observed)
	}
}
