package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/NetPo4ki/go-flowscope/scope"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newRecorder(t *testing.T) (*tracetest.SpanRecorder, *Observer) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return rec, New(tp.Tracer("test"))
}

func TestSpansFollowTheJobTree(t *testing.T) {
	rec, obs := newRecorder(t)
	_, err := scope.RunBlocking(context.Background(), func(ctx context.Context) (int, error) {
		j := scope.Launch(ctx, func(context.Context) error { return nil }, scope.WithName("child"))
		return 0, j.Join(ctx)
	}, scope.WithObserver(obs))
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		byName[s.Name()] = s
	}
	root, child := byName["main"], byName["child"]
	require.NotNil(t, root)
	require.NotNil(t, child)
	assert.Equal(t, root.SpanContext().SpanID(), child.Parent().SpanID())
	assert.Equal(t, codes.Ok, child.Status().Code)

	var events []string
	for _, e := range child.Events() {
		events = append(events, e.Name)
	}
	assert.Contains(t, events, "body.started")
	assert.Contains(t, events, "joined")
}

func TestFailedJobSpanHasErrorStatus(t *testing.T) {
	rec, obs := newRecorder(t)
	boom := errors.New("boom")
	s := scope.New(context.Background(), scope.FailFast, scope.WithObserver(obs), scope.WithName("failing"))
	s.Go(func(context.Context) error { return boom })
	require.ErrorIs(t, s.Wait(), boom)

	for _, sp := range rec.Ended() {
		assert.Equal(t, codes.Error, sp.Status().Code, sp.Name())
		assert.Equal(t, boom.Error(), sp.Status().Description)
	}
}

func TestCancelledJobRecordsEvent(t *testing.T) {
	rec, obs := newRecorder(t)
	s := scope.New(context.Background(), scope.FailFast, scope.WithObserver(obs))
	s.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	s.Cancel(nil)
	require.ErrorIs(t, s.Wait(), scope.ErrCancelled)

	for _, sp := range rec.Ended() {
		assert.Equal(t, codes.Unset, sp.Status().Code)
		var names []string
		for _, e := range sp.Events() {
			names = append(names, e.Name)
		}
		assert.Contains(t, names, "cancelled", sp.Name())
	}
}
