package uvloop

import (
	"sync/atomic"

	"github.com/arrowlake/uvloop/internal/telemetry"
)

// AsyncCallback fires on the loop goroutine once per coalesced batch of
// Send calls.
type AsyncCallback func(a *Async)

// Async is the one handle type whose Send method is safe to call from any
// goroutine: it is the sole door other goroutines have into a running
// loop. Any number of Send calls observed before the loop next checks in
// coalesce into exactly one callback invocation.
type Async struct {
	Handle
	cb      AsyncCallback
	pending atomic.Bool
	closing atomic.Bool
}

// NewAsync creates and arms an async handle bound to loop. cb runs on the
// loop goroutine.
func NewAsync(loop *Loop, cb AsyncCallback) *Async {
	a := &Async{cb: cb}
	loop.registry.initHandle(&a.Handle, HandleAsync, loop)
	a.teardown = func() {
		a.closing.Store(true)
		loop.unregisterAsync(a)
	}
	_ = loop.registry.start(&a.Handle)
	loop.registerAsync(a)
	return a
}

// Send requests a callback invocation on the loop goroutine. It is the
// only Handle operation in this package safe to call from a goroutine
// other than the loop's own. A Send against a closing or closed handle is
// silently dropped, since the handle may be freed concurrently with the
// send from the loop's point of view.
//
// Send deliberately checks its own atomic closing flag rather than
// Handle.IsClosing: Handle.flags is a plain bitmask mutated by
// registry.closeHandle on the loop goroutine with no synchronization,
// since every other handle operation runs there too. Send is the one
// exception, so it needs its own atomically-readable view of "closing".
func (a *Async) Send() {
	if a.closing.Load() {
		return
	}
	if a.pending.CompareAndSwap(false, true) {
		a.loop.tel.Metrics.Counter(telemetry.AsyncSentTotal).Inc()
		a.loop.wake()
	}
}
