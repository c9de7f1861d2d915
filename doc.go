// Package uvloop is a single-goroutine asynchronous I/O event loop.
//
// A Loop drains timers, prepare/check/idle phase hooks, stream read/write
// readiness and cross-goroutine wakeups in a fixed nine-phase iteration:
// update the clock, run due timers, drain the pending queue, run idle
// handles, run prepare handles, compute the poll timeout, poll, run check
// handles, run close callbacks. Every handle (Timer, Async, Prepare,
// Check, Idle, TCPStream, PipeStream) and every request (queued write,
// shutdown, threadpool work item) is bound to exactly one Loop and, with
// the sole exception of Async.Send, must only be touched from the
// goroutine running that Loop's Run method.
//
// Blocking work that would otherwise stall the loop goroutine — disk I/O,
// CPU-bound computation, anything that doesn't fit the readiness-driven
// model — can be offloaded with Loop.QueueWork, which runs on a bounded
// threadpool and reports back on the loop goroutine.
package uvloop
