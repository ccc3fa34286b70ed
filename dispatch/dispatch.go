package dispatch

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// Kind enumerates the supported execution policies.
type Kind int

const (
	// Compute is a fixed-size pool for CPU-bound bodies.
	Compute Kind = iota
	// IO is a larger pool for bodies that block.
	IO
	// Confined runs every task on a single slot in submission order.
	Confined
	// Unconfined runs a task inline until its first suspension point.
	Unconfined
	// Executor hands tasks to a caller-supplied executor.
	Executor
)

func (k Kind) String() string {
	switch k {
	case Compute:
		return "compute"
	case IO:
		return "io"
	case Confined:
		return "confined"
	case Unconfined:
		return "unconfined"
	case Executor:
		return "executor"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrClosed is the panic value used when a task is submitted to a closed dispatcher.
var ErrClosed = errors.New("dispatch: dispatcher is closed")

// Worker is the slot a running task holds between suspension points.
type Worker interface {
	// Park releases the slot before the task blocks.
	Park()
	// Unpark waits for the slot again. Waiters are served in FIFO order.
	Unpark()
	// Release gives the slot back for good. It is idempotent.
	Release()
}

// Stats is a point-in-time view of a dispatcher.
type Stats struct {
	Name    string
	Kind    Kind
	Limit   int
	Running int
	Queued  int
}

// Dispatcher decides where submitted tasks run.
type Dispatcher struct {
	name   string
	kind   Kind
	slots  *slots
	exec   func(func())
	closed atomic.Bool
}

type behavior struct {
	dispatch func(d *Dispatcher, task func(Worker))
	acquire  func(d *Dispatcher) Worker
}

var behaviors = map[Kind]behavior{
	Compute:    {dispatch: dispatchPooled, acquire: acquirePooled},
	IO:         {dispatch: dispatchPooled, acquire: acquirePooled},
	Confined:   {dispatch: dispatchPooled, acquire: acquirePooled},
	Unconfined: {dispatch: dispatchInline, acquire: acquireFree},
	Executor:   {dispatch: dispatchExecutor, acquire: acquireFree},
}

// NewPool creates a pooled dispatcher of the given kind with size slots.
// It panics if kind is not a pooled kind or size is not positive.
func NewPool(name string, kind Kind, size int) *Dispatcher {
	switch kind {
	case Compute, IO, Confined:
	default:
		panic("dispatch: NewPool requires Compute, IO or Confined kind")
	}
	if size <= 0 {
		panic("dispatch: pool size must be positive")
	}
	if kind == Confined {
		size = 1
	}
	return &Dispatcher{name: name, kind: kind, slots: newSlots(size)}
}

// NewConfined creates a dispatcher with exactly one slot.
func NewConfined(name string) *Dispatcher {
	return NewPool(name, Confined, 1)
}

// FromExecutor wraps a caller-supplied executor. The executor owns how
// blocked tasks are parked, so Park and Unpark are no-ops.
func FromExecutor(name string, exec func(func())) *Dispatcher {
	if exec == nil {
		panic("dispatch: FromExecutor requires a non-nil executor")
	}
	return &Dispatcher{name: name, kind: Executor, exec: exec}
}

var (
	defaultOnce sync.Once
	defaultD    *Dispatcher
	ioOnce      sync.Once
	ioD         *Dispatcher
	unconfined  = &Dispatcher{name: "unconfined", kind: Unconfined}
)

// ComputeSize is the slot count of the default compute dispatcher.
func ComputeSize() int {
	return max(runtime.GOMAXPROCS(0), 2)
}

// IOSize is the slot count of the default IO dispatcher.
func IOSize() int {
	return max(64, runtime.NumCPU())
}

// Default returns the process-wide compute dispatcher.
func Default() *Dispatcher {
	defaultOnce.Do(func() { defaultD = NewPool("default", Compute, ComputeSize()) })
	return defaultD
}

// IODispatcher returns the process-wide IO dispatcher. It never shares slots
// with Default.
func IODispatcher() *Dispatcher {
	ioOnce.Do(func() { ioD = NewPool("io", IO, IOSize()) })
	return ioD
}

// Inline returns the unconfined dispatcher.
//
// Code dispatched here runs on the submitter until it first suspends and then
// continues on its own goroutine, so it must not depend on where it runs.
func Inline() *Dispatcher { return unconfined }

func (d *Dispatcher) Name() string { return d.name }

func (d *Dispatcher) Kind() Kind { return d.kind }

func (d *Dispatcher) String() string { return d.name }

// Dispatch queues task for execution. It does not block the caller except for
// the Unconfined kind, which returns once task parks or finishes.
func (d *Dispatcher) Dispatch(task func(Worker)) {
	if d.closed.Load() {
		panic(ErrClosed)
	}
	behaviors[d.kind].dispatch(d, task)
}

// Acquire blocks until a slot is free and returns it.
func (d *Dispatcher) Acquire() Worker {
	return behaviors[d.kind].acquire(d)
}

// Close rejects further submissions. Tasks already queued still run.
func (d *Dispatcher) Close() { d.closed.Store(true) }

func (d *Dispatcher) Stats() Stats {
	st := Stats{Name: d.name, Kind: d.kind}
	if d.slots != nil {
		st.Limit, st.Running, st.Queued = d.slots.stats()
	}
	return st
}

func dispatchPooled(d *Dispatcher, task func(Worker)) {
	ready := d.slots.enqueue()
	go func() {
		<-ready
		w := &pooledWorker{s: d.slots}
		defer w.Release()
		task(w)
	}()
}

func acquirePooled(d *Dispatcher) Worker {
	<-d.slots.enqueue()
	return &pooledWorker{s: d.slots}
}

func dispatchInline(_ *Dispatcher, task func(Worker)) {
	w := &inlineWorker{suspended: make(chan struct{})}
	go func() {
		defer w.Release()
		task(w)
	}()
	<-w.suspended
}

func acquireFree(*Dispatcher) Worker { return freeWorker{} }

func dispatchExecutor(d *Dispatcher, task func(Worker)) {
	d.exec(func() { task(freeWorker{}) })
}

type pooledWorker struct {
	s      *slots
	parked bool
	done   bool
}

func (w *pooledWorker) Park() {
	if w.parked || w.done {
		return
	}
	w.parked = true
	w.s.release()
}

func (w *pooledWorker) Unpark() {
	if !w.parked || w.done {
		return
	}
	<-w.s.enqueue()
	w.parked = false
}

func (w *pooledWorker) Release() {
	if w.done {
		return
	}
	w.done = true
	if !w.parked {
		w.s.release()
	}
}

type inlineWorker struct {
	once      sync.Once
	suspended chan struct{}
}

func (w *inlineWorker) Park()    { w.once.Do(func() { close(w.suspended) }) }
func (w *inlineWorker) Unpark()  {}
func (w *inlineWorker) Release() { w.Park() }

type freeWorker struct{}

func (freeWorker) Park()    {}
func (freeWorker) Unpark()  {}
func (freeWorker) Release() {}
