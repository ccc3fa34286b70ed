// Package scope provides structured-concurrency primitives for Go.
//
// Every unit of work is a Job. Jobs form a tree: a job launched from the
// context of another job is its child, it is cancelled with it, and the
// parent does not complete before all of its children have. A failing child
// cancels its parent and siblings unless the parent uses the Supervisor
// policy.
//
// Roots are created with RunBlocking, New, Scoped, Supervised or Detached.
// Inside a tree, Launch and Async add children and WithContext, WithTimeout
// and the inline scopes run a block on the caller goroutine.
//
// Cancellation is cooperative. Bodies observe it at checkpoints: Delay, Yield,
// Join, Await, EnsureActive and the context's Done channel. The signal is a
// *CancellationError; errors.Is(err, ErrCancelled) holds for it and for
// *TimeoutError. Cleanup that must suspend after cancellation runs inside
// NonCancellable.
//
// Bodies run on a dispatch.Dispatcher picked from the context. A body holds
// one of the dispatcher's slots while it runs and gives it up at every
// checkpoint that blocks.
package scope
