// Package logging reports job lifecycle events through log/slog and tags
// log records with the job that emitted them.
package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/NetPo4ki/go-flowscope/scope"
)

// Observer logs job lifecycle events. Successful work is logged at debug
// level, cancellation at info and failures at error.
type Observer struct {
	log *slog.Logger
}

// New returns an observer writing to l, or to slog.Default when l is nil.
func New(l *slog.Logger) *Observer {
	if l == nil {
		l = slog.Default()
	}
	return &Observer{log: l}
}

func attrs(info scope.JobInfo) slog.Attr {
	return slog.Group("job",
		slog.String("name", info.Name),
		slog.Uint64("seq", info.Seq),
		slog.String("dispatcher", info.Dispatcher),
	)
}

func (o *Observer) JobCreated(ctx context.Context, info scope.JobInfo) {
	o.log.LogAttrs(ctx, slog.LevelDebug, "job created", attrs(info), slog.Bool("root", info.IsRoot()))
}

func (o *Observer) JobCancelled(ctx context.Context, info scope.JobInfo, cause error) {
	o.log.LogAttrs(ctx, slog.LevelInfo, "job cancelled", attrs(info), slog.Any("cause", cause))
}

func (o *Observer) JobJoined(ctx context.Context, info scope.JobInfo, wait time.Duration) {
	o.log.LogAttrs(ctx, slog.LevelDebug, "job joined", attrs(info), slog.Duration("wait", wait))
}

func (o *Observer) JobFinished(ctx context.Context, info scope.JobInfo, state scope.State, cause error) {
	level := slog.LevelDebug
	if cause != nil && state != scope.Completed && !scope.IsCancellation(cause) {
		level = slog.LevelError
	}
	o.log.LogAttrs(ctx, level, "job finished", attrs(info), slog.String("state", state.String()), slog.Any("cause", cause))
}

func (o *Observer) BodyStarted(context.Context, scope.JobInfo) {}

func (o *Observer) BodyFinished(ctx context.Context, info scope.JobInfo, dur time.Duration, err error, panicked bool) {
	if !panicked {
		return
	}
	o.log.LogAttrs(ctx, slog.LevelError, "job body panicked", attrs(info), slog.Duration("elapsed", dur), slog.Any("err", err))
}
