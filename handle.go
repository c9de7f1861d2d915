package uvloop

// HandleType identifies which concrete handle variant a Handle header is
// embedded in. Handles are a tagged-variant design: the header carries the
// state every variant shares, each concrete type adds its own fields and
// Start/Stop-shaped methods.
type HandleType uint8

const (
	HandleTimer HandleType = iota
	HandlePrepare
	HandleCheck
	HandleIdle
	HandleAsync
	HandlePoll
	HandleTCP
	HandlePipe
)

func (t HandleType) String() string {
	switch t {
	case HandleTimer:
		return "timer"
	case HandlePrepare:
		return "prepare"
	case HandleCheck:
		return "check"
	case HandleIdle:
		return "idle"
	case HandleAsync:
		return "async"
	case HandlePoll:
		return "poll"
	case HandleTCP:
		return "tcp"
	case HandlePipe:
		return "pipe"
	default:
		return "unknown"
	}
}

type flag uint32

const (
	flagRef flag = 1 << iota
	flagActive
	flagClosing
	flagClosed
)

// CloseCallback runs once, on the loop goroutine, after a handle has fully
// torn down.
type CloseCallback func(h *Handle)

// Handle is the header every handle variant embeds by value. All fields are
// touched only from the loop goroutine; the single exception, documented on
// Async.Send, never reaches into Handle itself.
type Handle struct {
	typ     HandleType
	flags   flag
	loop    *Loop
	closeCB CloseCallback
	data    any

	// teardown is set by the concrete type's constructor and runs once,
	// synchronously, at the start of Close: it unregisters the handle from
	// whatever backend owns it (timer heap, poller, phase list) before the
	// handle is handed to the close-callback pipeline.
	teardown func()

	closeElem *listElem[*Handle]

	pending int // outstanding requests attributed to this handle
}

func (h *Handle) pendingInc() { h.pending++ }
func (h *Handle) pendingDec() {
	if h.pending > 0 {
		h.pending--
	}
}

// HasPending reports whether any request attributed to this handle is
// still outstanding.
func (h *Handle) HasPending() bool { return h.pending > 0 }

// Type reports which concrete variant this header belongs to.
func (h *Handle) Type() HandleType { return h.typ }

// Loop returns the loop this handle was created on.
func (h *Handle) Loop() *Loop { return h.loop }

// IsActive reports whether the loop currently considers this handle
// eligible to produce callbacks. A handle past CLOSING is never active.
func (h *Handle) IsActive() bool {
	return h.flags&flagActive != 0 && h.flags&flagClosing == 0
}

// IsClosing reports whether Close has been called on this handle.
func (h *Handle) IsClosing() bool { return h.flags&(flagClosing|flagClosed) != 0 }

// HasRef reports whether this handle currently holds a loop reference.
func (h *Handle) HasRef() bool { return h.flags&flagRef != 0 }

// SetData attaches arbitrary user state to the handle.
func (h *Handle) SetData(v any) { h.data = v }

// Data returns whatever was last passed to SetData.
func (h *Handle) Data() any { return h.data }

// Ref marks this handle as one the loop must keep running for. Idempotent.
func (h *Handle) Ref() {
	if h.flags&flagRef != 0 {
		return
	}
	h.flags |= flagRef
	if h.IsActive() {
		h.loop.registry.activeHandles++
	}
}

// Unref releases this handle's hold on the loop's run condition, without
// otherwise changing its behavior. Idempotent.
func (h *Handle) Unref() {
	if h.flags&flagRef == 0 {
		return
	}
	h.flags &^= flagRef
	if h.IsActive() {
		h.loop.registry.activeHandles--
	}
}

// Close begins the handle's teardown. cb, if non-nil, fires exactly once on
// a later loop iteration, after any outstanding requests belonging to this
// handle have been resolved. Close is idempotent: a second call returns
// ErrAlreadyClosing.
func (h *Handle) Close(cb CloseCallback) error {
	return h.loop.registry.closeHandle(h, cb)
}
