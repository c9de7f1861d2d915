package uvloop

// RequestType identifies which concrete request variant a Request header
// belongs to, mirroring HandleType's tagged-variant design.
type RequestType uint8

const (
	ReqWrite RequestType = iota
	ReqShutdown
	ReqWork
)

func (t RequestType) String() string {
	switch t {
	case ReqWrite:
		return "write"
	case ReqShutdown:
		return "shutdown"
	case ReqWork:
		return "work"
	default:
		return "unknown"
	}
}

// StatusCallback reports the completion of a request. err is nil on
// success, ErrCancelled if the request was cancelled before it ran, and
// otherwise the failure that ended it.
type StatusCallback func(req *Request, err error)

// Request is the header every request variant embeds by value. Unlike
// Handle, a Request has no independent active/ref state: its lifetime is
// entirely the interval between submission and the single StatusCallback
// invocation, and it counts toward the loop's active-request total for
// exactly that interval.
type Request struct {
	typ    RequestType
	loop   *Loop
	owner  *Handle
	cb     StatusCallback
	done   bool
	counted bool
}

// Type reports which concrete variant this header belongs to.
func (r *Request) Type() RequestType { return r.typ }

// Owner returns the handle this request is attributed to, if any
// (threadpool work items created via Loop.QueueWork have no owner).
func (r *Request) Owner() *Handle { return r.owner }

func (r *Request) init(loop *Loop, owner *Handle, typ RequestType, cb StatusCallback) {
	r.typ = typ
	r.loop = loop
	r.owner = owner
	r.cb = cb
	loop.registry.activeReqs++
	r.counted = true
	if owner != nil {
		owner.pendingInc()
	}
}

// finish marks the request done and invokes its callback exactly once. A
// second call is a no-op, so teardown paths that race with normal
// completion never double-fire the callback.
func (r *Request) finish(err error) {
	if r.done {
		return
	}
	r.done = true
	if r.counted {
		r.loop.registry.activeReqs--
		r.counted = false
	}
	if r.owner != nil {
		r.owner.pendingDec()
	}
	if r.cb != nil {
		cb := r.cb
		r.cb = nil
		cb(r, err)
	}
}
