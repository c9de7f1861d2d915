package uvloop

import (
	"context"

	"github.com/arrowlake/uvloop/internal/telemetry"
)

// registry owns every handle's active/ref bookkeeping and the closing-list
// pipeline described in spec.md's lifecycle table. It has no goroutine-safe
// surface: every method runs on the loop goroutine.
type registry struct {
	loop *Loop

	live map[*Handle]struct{}
	closing *list[*Handle]

	activeHandles int
	activeReqs    int

	nextTimerSeq uint64
}

func newRegistry(l *Loop) *registry {
	return &registry{
		loop:    l,
		live:    make(map[*Handle]struct{}),
		closing: newList[*Handle](),
	}
}

// initHandle stamps the common header fields and registers h as live. Every
// concrete constructor calls this first, before wiring its own teardown
// closure.
func (r *registry) initHandle(h *Handle, typ HandleType, loop *Loop) {
	h.typ = typ
	h.loop = loop
	h.flags = flagRef
	r.live[h] = struct{}{}
}

// start marks h ACTIVE. Safe to call repeatedly; only the first call after
// a stop changes the active-handle count.
func (r *registry) start(h *Handle) error {
	if h.IsClosing() {
		return ErrBadState
	}
	if h.flags&flagActive != 0 {
		return nil
	}
	h.flags |= flagActive
	if h.flags&flagRef != 0 {
		r.activeHandles++
	}
	return nil
}

// stop clears ACTIVE. A no-op once the handle is closing, per spec.md's
// "stop after CLOSING" row.
func (r *registry) stop(h *Handle) error {
	if h.IsClosing() {
		return nil
	}
	if h.flags&flagActive == 0 {
		return nil
	}
	wasCounted := h.flags&flagRef != 0
	h.flags &^= flagActive
	if wasCounted {
		r.activeHandles--
	}
	return nil
}

// closeHandle runs the type-specific teardown, clears ACTIVE, and chains h
// onto the closing list for its close callback on a later iteration.
func (r *registry) closeHandle(h *Handle, cb CloseCallback) error {
	if h.IsClosing() {
		return ErrAlreadyClosing
	}
	wasCounted := h.flags&flagActive != 0 && h.flags&flagRef != 0
	h.flags |= flagClosing
	h.flags &^= flagActive
	if wasCounted {
		r.activeHandles--
	}
	if h.teardown != nil {
		h.teardown()
		h.teardown = nil
	}
	h.closeCB = cb
	delete(r.live, h)
	h.closeElem = r.closing.PushBack(h)
	r.loop.tel.Emit(context.Background(), telemetry.EventHandleClosed, telemetry.Event{Kind: "handle", Handle: h.typ.String()})
	return nil
}

// runPendingCloses invokes every handle's close callback once, on this
// iteration, and marks it CLOSED. Called from the loop's close phase.
func (r *registry) runPendingCloses() {
	r.closing.DrainEach(func(h *Handle) {
		h.flags &^= flagClosing
		h.flags |= flagClosed
		h.closeElem = nil
		cb := h.closeCB
		h.closeCB = nil
		if cb != nil {
			cb(h)
		}
	})
}

func (r *registry) hasPendingCloses() bool { return r.closing.Len() > 0 }

func (r *registry) nextTimerID() uint64 {
	r.nextTimerSeq++
	return r.nextTimerSeq
}

// walk invokes fn for every handle not yet CLOSING or CLOSED, in no
// particular order.
func (r *registry) walk(fn func(h *Handle)) {
	for h := range r.live {
		fn(h)
	}
}
