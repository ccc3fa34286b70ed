package otel

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NetPo4ki/go-flowscope/scope"
)

// TracerName is the instrumentation name used when no tracer is supplied.
const TracerName = "github.com/NetPo4ki/go-flowscope"

// Observer implements scope.Observer on top of a trace.Tracer.
type Observer struct {
	tracer trace.Tracer
	spans  sync.Map // scope.JobID -> trace.Span
}

// New returns an observer using tracer, or the global tracer provider when
// tracer is nil.
func New(tracer trace.Tracer) *Observer {
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}
	return &Observer{tracer: tracer}
}

func (o *Observer) span(id scope.JobID) trace.Span {
	if sp, ok := o.spans.Load(id); ok {
		return sp.(trace.Span)
	}
	return nil
}

func (o *Observer) JobCreated(ctx context.Context, info scope.JobInfo) {
	if parent := o.span(info.Parent); parent != nil {
		ctx = trace.ContextWithSpan(ctx, parent)
	}
	_, sp := o.tracer.Start(ctx, info.Name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("job.id", info.ID.String()),
			attribute.Int64("job.seq", int64(info.Seq)),
			attribute.String("job.dispatcher", info.Dispatcher),
			attribute.Bool("job.root", info.IsRoot()),
		))
	o.spans.Store(info.ID, sp)
}

func (o *Observer) JobCancelled(_ context.Context, info scope.JobInfo, cause error) {
	if sp := o.span(info.ID); sp != nil {
		sp.AddEvent("cancelled", trace.WithAttributes(attribute.String("cause", errString(cause))))
	}
}

func (o *Observer) JobJoined(_ context.Context, info scope.JobInfo, wait time.Duration) {
	if sp := o.span(info.ID); sp != nil {
		sp.AddEvent("joined", trace.WithAttributes(attribute.Int64("wait_ns", wait.Nanoseconds())))
	}
}

func (o *Observer) BodyStarted(_ context.Context, info scope.JobInfo) {
	if sp := o.span(info.ID); sp != nil {
		sp.AddEvent("body.started")
	}
}

func (o *Observer) BodyFinished(_ context.Context, info scope.JobInfo, dur time.Duration, err error, panicked bool) {
	sp := o.span(info.ID)
	if sp == nil {
		return
	}
	sp.SetAttributes(attribute.Int64("body.duration_ns", dur.Nanoseconds()))
	switch {
	case panicked:
		sp.AddEvent("panic")
		sp.RecordError(err)
	case err != nil && !scope.IsCancellation(err):
		sp.RecordError(err)
	}
}

func (o *Observer) JobFinished(_ context.Context, info scope.JobInfo, state scope.State, cause error) {
	v, ok := o.spans.LoadAndDelete(info.ID)
	if !ok {
		return
	}
	sp := v.(trace.Span)
	sp.SetAttributes(attribute.String("job.state", state.String()))
	switch {
	case cause == nil || state == scope.Completed:
		sp.SetStatus(codes.Ok, "")
	case scope.IsCancellation(cause):
		sp.SetStatus(codes.Unset, "")
	default:
		sp.SetStatus(codes.Error, cause.Error())
	}
	sp.End()
}

func errString(err error) string {
	var ce *scope.CancellationError
	if errors.As(err, &ce) && ce.Cause == nil {
		return "cancelled"
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
