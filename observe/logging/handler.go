package logging

import (
	"context"
	"log/slog"

	"github.com/NetPo4ki/go-flowscope/scope"
)

// JobKey is the attribute key Handler adds.
const JobKey = "job"

// Handler adds the debugging label of the current job, such as "main#1", to
// every record logged with a job's context.
type Handler struct {
	slog.Handler
}

func NewHandler(h slog.Handler) *Handler { return &Handler{Handler: h} }

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil && scope.JobFrom(ctx) != nil {
		r.AddAttrs(slog.String(JobKey, scope.Label(ctx)))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *Handler) WithAttrs(as []slog.Attr) slog.Handler {
	return &Handler{Handler: h.Handler.WithAttrs(as)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{Handler: h.Handler.WithGroup(name)}
}
