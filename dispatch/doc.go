// Package dispatch provides the execution policies job bodies run under.
//
// Every task runs on its own goroutine and holds a slot of its dispatcher
// while it makes progress. At a suspension point the task parks, giving the
// slot to the next queued task, and unparks afterwards. This bounds how many
// bodies make progress at once without letting blocked bodies starve the pool:
//
//   - Compute: GOMAXPROCS slots (at least two), never grows.
//   - IO: a larger pool, isolated from Compute.
//   - Confined: one slot, tasks run in submission order and never overlap.
//   - Unconfined: no slots; the submitter runs the task until it first suspends.
//   - Executor: slots are whatever the supplied executor provides.
package dispatch
