package scope

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/NetPo4ki/go-flowscope/dispatch"
)

// JobID identifies a job within its tree.
type JobID = uuid.UUID

type jobKind int

const (
	// launched bodies run on their own goroutine; failures propagate to the parent.
	launched jobKind = iota
	// inline bodies run on the caller goroutine; failures are returned to the caller.
	inline
	// scoped jobs have no body; they are handles created by New.
	scoped
)

var jobSeq atomic.Uint64

// arena owns every job record of one tree. Parents and children refer to
// each other by ID only.
type arena struct {
	mu   sync.Mutex
	jobs map[JobID]*Job
}

func newArena() *arena { return &arena{jobs: make(map[JobID]*Job)} }

func (a *arena) put(j *Job) {
	a.mu.Lock()
	a.jobs[j.id] = j
	a.mu.Unlock()
}

func (a *arena) get(id JobID) *Job {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.jobs[id]
}

func (a *arena) remove(id JobID) {
	a.mu.Lock()
	delete(a.jobs, id)
	a.mu.Unlock()
}

func (a *arena) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.jobs)
}

// Job is a node of the cancellation and completion tree.
type Job struct {
	id     JobID
	seq    uint64
	name   string
	kind   jobKind
	policy Policy
	disp   *dispatch.Dispatcher
	arena  *arena
	parent JobID

	ctx       context.Context
	cancelCtx context.CancelCauseFunc
	stopWatch func() bool

	obs          Observer
	panicAsError bool
	lim          Limiter
	slot         Limiter
	body         func(context.Context) error

	// worker is touched only by the goroutine running the body.
	worker dispatch.Worker

	mu         sync.Mutex
	state      State
	children   []JobID
	active     int
	bodyDone   bool
	cause      error
	failed     bool
	suppressed []error
	supervised error
	done       chan struct{}
}

func newJob(parentCtx context.Context, kind jobKind, policy Policy, o Options, body func(context.Context) error) *Job {
	parent := JobFrom(parentCtx)
	j := &Job{
		id:     uuid.New(),
		seq:    jobSeq.Add(1),
		kind:   kind,
		policy: policy,
		body:   body,
		state:  Pending,
		done:   make(chan struct{}),
	}
	ctx := o.overlay(parentCtx)
	j.disp = DispatcherFrom(ctx)
	j.name = NameFrom(ctx)
	j.obs = observerFrom(ctx)
	j.panicAsError = panicAsErrorFrom(ctx)
	j.lim = newSemaphoreLimiter(o.MaxConcurrency)
	ctx = context.WithValue(ctx, dispatcherKey{}, j.disp)
	ctx = context.WithValue(ctx, jobKey{}, j)
	j.ctx, j.cancelCtx = context.WithCancelCause(ctx)

	if parent == nil {
		j.arena = newArena()
		j.arena.put(j)
	} else {
		j.arena = parent.arena
		j.parent = parent.id
		j.slot = parent.lim
		j.arena.put(j)
		if !parent.attach(j) {
			j.abandon()
			return j
		}
	}
	if j.obs != nil {
		j.obs.JobCreated(j.ctx, j.Info())
	}
	j.stopWatch = context.AfterFunc(parentCtx, func() { j.cancel(cancellationOf(parentCtx)) })
	return j
}

// attach registers c as a child. It fails once j is terminal.
func (j *Job) attach(c *Job) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return false
	}
	j.children = append(j.children, c.id)
	j.active++
	return true
}

// abandon finishes a job whose parent was already terminal at creation.
func (j *Job) abandon() {
	j.mu.Lock()
	j.state = Cancelled
	j.bodyDone = true
	j.cause = &CancellationError{Cause: errParentDone}
	close(j.done)
	j.mu.Unlock()
	j.cancelCtx(j.cause)
	j.arena.remove(j.id)
}

func (j *Job) ID() JobID { return j.id }

func (j *Job) Seq() uint64 { return j.seq }

func (j *Job) Name() string { return j.name }

func (j *Job) Dispatcher() *dispatch.Dispatcher { return j.disp }

// Context returns the context the job's body runs with.
func (j *Job) Context() context.Context { return j.ctx }

func (j *Job) String() string { return fmt.Sprintf("%s#%d", j.name, j.seq) }

func (j *Job) Info() JobInfo {
	return JobInfo{ID: j.id, Seq: j.seq, Name: j.name, Parent: j.parent, Dispatcher: j.disp.Name()}
}

// Parent returns the parent's ID; ok is false for roots.
func (j *Job) Parent() (id JobID, ok bool) { return j.parent, j.parent != uuid.Nil }

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// IsActive reports whether the job has neither finished nor been cancelled.
func (j *Job) IsActive() bool { return j.State().running() }

func (j *Job) IsCompleted() bool { return j.State().Terminal() }

func (j *Job) IsCancelled() bool {
	s := j.State()
	return s == Cancelling || s == Cancelled
}

// Done is closed once the job is terminal.
func (j *Job) Done() <-chan struct{} { return j.done }

// Err returns the completion cause: nil for Completed, the first body failure,
// or a *CancellationError.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == Completed {
		return nil
	}
	return j.cause
}

// Suppressed returns failures observed after the first one.
func (j *Job) Suppressed() []error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.suppressed)
}

// Children returns the children that are not terminal yet, in launch order.
func (j *Job) Children() []*Job {
	j.mu.Lock()
	ids := slices.Clone(j.children)
	j.mu.Unlock()
	out := make([]*Job, 0, len(ids))
	for _, id := range ids {
		if c := j.arena.get(id); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Start dispatches a Pending job. It reports whether this call started it.
func (j *Job) Start() bool {
	if !j.activate() {
		return false
	}
	if j.kind == launched {
		j.disp.Dispatch(j.run)
	}
	return true
}

func (j *Job) activate() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != Pending {
		return false
	}
	j.state = Active
	return true
}

// Cancel moves the job and, depth-first, all of its descendants to
// Cancelling. Bodies observe it at their next checkpoint. It is idempotent.
func (j *Job) Cancel(cause error) {
	j.cancel(asCancellation(cause))
}

func (j *Job) cancel(cause error) {
	j.mu.Lock()
	if j.state != Pending && !j.state.running() {
		j.mu.Unlock()
		return
	}
	if j.state == Pending || j.kind == scoped {
		j.bodyDone = true
	}
	j.state = Cancelling
	if j.cause == nil {
		j.cause = cause
	}
	j.mu.Unlock()
	j.propagateCancel(cause)
	j.tryFinish()
}

func (j *Job) propagateCancel(cause error) {
	if j.obs != nil {
		j.obs.JobCancelled(j.ctx, j.Info(), cause)
	}
	j.mu.Lock()
	ids := slices.Clone(j.children)
	j.mu.Unlock()
	for _, id := range ids {
		if c := j.arena.get(id); c != nil {
			c.cancel(cause)
		}
	}
	j.cancelCtx(cause)
}

// Join waits until the job is terminal. It does not report the job's own
// failure; use Err for that. It fails fast with ErrJoinCycle when called from
// inside the job's subtree.
func (j *Job) Join(ctx context.Context) error {
	if j.contains(JobFrom(ctx)) {
		return ErrJoinCycle
	}
	j.Start()
	start := time.Now()
	var err error
	Suspend(ctx, func() {
		select {
		case <-j.done:
		case <-ctx.Done():
			err = cancellationOf(ctx)
		}
	})
	if err == nil && j.obs != nil {
		j.obs.JobJoined(ctx, j.Info(), time.Since(start))
	}
	return err
}

// CancelAndJoin cancels the job and waits for it.
func (j *Job) CancelAndJoin(ctx context.Context, cause error) error {
	j.Cancel(cause)
	return j.Join(ctx)
}

// contains reports whether c is j or one of its descendants.
func (j *Job) contains(c *Job) bool {
	for c != nil {
		if c == j {
			return true
		}
		if c.arena != j.arena || c.parent == uuid.Nil {
			return false
		}
		c = c.arena.get(c.parent)
	}
	return false
}

func (j *Job) run(w dispatch.Worker) {
	j.worker = w
	if j.slot != nil {
		var err error
		Suspend(j.ctx, func() { err = j.slot.Acquire(j.ctx) })
		if err != nil {
			j.bodyFinished(cancellationOf(j.ctx))
			return
		}
		defer j.slot.Release()
	}
	if err := EnsureActive(j.ctx); err != nil {
		j.bodyFinished(err)
		return
	}
	j.runBody(j.body)
}

func (j *Job) runBody(fn func(context.Context) error) (err error) {
	info := j.Info()
	var start time.Time
	if j.obs != nil {
		start = time.Now()
		j.obs.BodyStarted(j.ctx, info)
	}
	panicked := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				pe := newPanicError(r)
				err = pe
				if !j.panicAsError {
					if j.obs != nil {
						j.obs.BodyFinished(j.ctx, info, time.Since(start), pe, true)
					}
					j.bodyFinished(pe)
					panic(r)
				}
			}
		}()
		err = fn(j.ctx)
	}()
	if j.obs != nil {
		j.obs.BodyFinished(j.ctx, info, time.Since(start), err, panicked)
	}
	j.bodyFinished(err)
	return err
}

func (j *Job) bodyFinished(err error) {
	j.mu.Lock()
	j.bodyDone = true
	var cancelWith error
	switch {
	case err == nil:
		if j.state == Active {
			j.state = Completing
		}
	case IsCancellation(err):
		if j.state.running() {
			j.state = Cancelling
			if j.cause == nil {
				j.cause = asCancellation(err)
			}
			cancelWith = j.cause
		}
	default:
		j.recordFailureLocked(err)
		if j.state.running() {
			j.state = Cancelling
			cancelWith = &CancellationError{Cause: err}
		}
	}
	j.mu.Unlock()
	if cancelWith != nil {
		j.propagateCancel(cancelWith)
	}
	j.tryFinish()
}

// recordFailureLocked keeps the first failure; later ones are suppressed.
func (j *Job) recordFailureLocked(err error) {
	if j.failed {
		j.suppressed = append(j.suppressed, err)
		return
	}
	j.cause = err
	j.failed = true
}

func (j *Job) childFinished(c *Job, cause error, failed bool) {
	j.mu.Lock()
	if i := slices.Index(j.children, c.id); i >= 0 {
		j.children = slices.Delete(j.children, i, i+1)
	}
	j.active--
	var cancelWith error
	if failed && c.kind == launched {
		if j.policy == Supervisor {
			if j.supervised == nil {
				j.supervised = cause
			}
		} else {
			j.recordFailureLocked(cause)
			if j.state.running() {
				j.state = Cancelling
				cancelWith = &CancellationError{Cause: cause}
			}
		}
	}
	j.mu.Unlock()
	if cancelWith != nil {
		j.propagateCancel(cancelWith)
	}
	j.tryFinish()
}

// tryFinish moves the job to its terminal state once the body has returned
// and every child is terminal.
func (j *Job) tryFinish() {
	j.mu.Lock()
	if j.state.Terminal() || !j.bodyDone || j.active > 0 {
		j.mu.Unlock()
		return
	}
	if j.state == Cancelling {
		j.state = Cancelled
	} else {
		j.state = Completed
	}
	state, cause, failed := j.state, j.cause, j.failed
	j.mu.Unlock()

	if j.stopWatch != nil {
		j.stopWatch()
	}
	j.cancelCtx(nil)
	if j.obs != nil {
		j.obs.JobFinished(j.ctx, j.Info(), state, cause)
	}
	j.arena.remove(j.id)
	p := j.parentJob()
	if p == nil && failed && j.kind == launched {
		handlerFor(j.ctx)(j.ctx, j, cause)
	}
	close(j.done)
	if p != nil {
		p.childFinished(j, cause, failed)
	}
}

func (j *Job) parentJob() *Job {
	if j.parent == uuid.Nil {
		return nil
	}
	return j.arena.get(j.parent)
}

// cancelledBy reports whether cause is the one that cancelled the job.
func (j *Job) cancelledBy(cause error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cause == cause && !j.failed
}

// result is what inline callers and Scope.Wait see once the job is terminal.
func (j *Job) result(bodyErr error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case j.failed:
		return j.cause
	case bodyErr != nil:
		return bodyErr
	case j.state == Cancelled:
		return j.cause
	default:
		return j.supervised
	}
}
