// Package flow implements cold asynchronous streams on top of package scope.
//
// A Flow describes how to produce values; it does nothing until a terminal
// operation such as Collect runs it, and every run starts from scratch.
// Producers and collectors run sequentially on the caller's goroutine unless
// an operator introduces concurrency: Buffer, Conflate, FlowOn, ChannelFlow,
// the FlatMapMerge and *Latest operators, CollectLatest and Zip launch child
// jobs in the collector's job tree, so they are cancelled with it.
//
// Errors are transparent. A failure of a collector is returned as is even if
// the producer catches it, and Catch and Retry only handle failures that
// originate upstream of them.
package flow
