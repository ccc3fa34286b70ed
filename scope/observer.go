package scope

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobInfo identifies a job in observer callbacks.
type JobInfo struct {
	ID         JobID
	Seq        uint64
	Name       string
	Parent     JobID
	Dispatcher string
}

// IsRoot reports whether the job had no parent.
func (i JobInfo) IsRoot() bool { return i.Parent == uuid.Nil }

type Observer interface {
	JobCreated(ctx context.Context, info JobInfo)
	JobCancelled(ctx context.Context, info JobInfo, cause error)
	JobJoined(ctx context.Context, info JobInfo, wait time.Duration)
	JobFinished(ctx context.Context, info JobInfo, state State, cause error)
	BodyStarted(ctx context.Context, info JobInfo)
	BodyFinished(ctx context.Context, info JobInfo, dur time.Duration, err error, panicked bool)
}

// Observers fans callbacks out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type multiObserver []Observer

func (m multiObserver) JobCreated(ctx context.Context, info JobInfo) {
	for _, o := range m {
		o.JobCreated(ctx, info)
	}
}

func (m multiObserver) JobCancelled(ctx context.Context, info JobInfo, cause error) {
	for _, o := range m {
		o.JobCancelled(ctx, info, cause)
	}
}

func (m multiObserver) JobJoined(ctx context.Context, info JobInfo, wait time.Duration) {
	for _, o := range m {
		o.JobJoined(ctx, info, wait)
	}
}

func (m multiObserver) JobFinished(ctx context.Context, info JobInfo, state State, cause error) {
	for _, o := range m {
		o.JobFinished(ctx, info, state, cause)
	}
}

func (m multiObserver) BodyStarted(ctx context.Context, info JobInfo) {
	for _, o := range m {
		o.BodyStarted(ctx, info)
	}
}

func (m multiObserver) BodyFinished(ctx context.Context, info JobInfo, dur time.Duration, err error, panicked bool) {
	for _, o := range m {
		o.BodyFinished(ctx, info, dur, err, panicked)
	}
}
