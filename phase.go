package uvloop

// Prepare, Check and Idle are the three loop-phase handle types: each runs
// its callback once per loop iteration, at a fixed point in the nine-phase
// sequence (prepare just before computing the poll timeout, check just
// after poll returns, idle on every iteration that does not otherwise
// block). All three share the same shape, so one generic implementation
// backs all three constructors.

// phaseHandle is the shared plumbing behind Prepare, Check and Idle: a
// handle plus membership in one of the loop's three phase lists.
type phaseHandle struct {
	Handle
	elem *listElem[*phaseHandle]
	run  func()
}

// initPhaseHandle initializes p in place: it must be called with the final,
// stable address of the embedding type's phaseHandle field, since its
// teardown closure captures that address.
func initPhaseHandle(p *phaseHandle, loop *Loop, typ HandleType, lst *list[*phaseHandle]) {
	loop.registry.initHandle(&p.Handle, typ, loop)
	p.teardown = func() {
		if p.elem != nil {
			lst.Remove(p.elem)
			p.elem = nil
		}
	}
}

func (p *phaseHandle) start(lst *list[*phaseHandle]) error {
	if p.IsClosing() {
		return ErrBadState
	}
	if p.elem == nil {
		p.elem = lst.PushBack(p)
	}
	return p.loop.registry.start(&p.Handle)
}

func (p *phaseHandle) stop(lst *list[*phaseHandle]) error {
	if p.elem != nil {
		lst.Remove(p.elem)
		p.elem = nil
	}
	return p.loop.registry.stop(&p.Handle)
}

// PrepareCallback fires once per loop iteration, just before the poll
// timeout is computed.
type PrepareCallback func(p *Prepare)

// Prepare runs its callback once per loop iteration, immediately before the
// loop decides how long to block in Poll.
type Prepare struct {
	phaseHandle
	cb PrepareCallback
}

// NewPrepare creates an inactive prepare handle bound to loop.
func NewPrepare(loop *Loop) *Prepare {
	p := &Prepare{}
	initPhaseHandle(&p.phaseHandle, loop, HandlePrepare, loop.prepares)
	return p
}

// Start arms the handle.
func (p *Prepare) Start(cb PrepareCallback) error {
	p.cb = cb
	p.run = func() {
		if p.cb != nil {
			p.cb(p)
		}
	}
	return p.start(p.loop.prepares)
}

// Stop disarms the handle.
func (p *Prepare) Stop() error { return p.stop(p.loop.prepares) }

// CheckCallback fires once per loop iteration, just after Poll returns.
type CheckCallback func(c *Check)

// Check runs its callback once per loop iteration, immediately after the
// loop returns from Poll and before it runs due close callbacks.
type Check struct {
	phaseHandle
	cb CheckCallback
}

// NewCheck creates an inactive check handle bound to loop.
func NewCheck(loop *Loop) *Check {
	c := &Check{}
	initPhaseHandle(&c.phaseHandle, loop, HandleCheck, loop.checks)
	return c
}

// Start arms the handle.
func (c *Check) Start(cb CheckCallback) error {
	c.cb = cb
	c.run = func() {
		if c.cb != nil {
			c.cb(c)
		}
	}
	return c.start(c.loop.checks)
}

// Stop disarms the handle.
func (c *Check) Stop() error { return c.stop(c.loop.checks) }

// IdleCallback fires once per loop iteration. At least one active idle
// handle forces the poll timeout to zero, so the loop never blocks while
// idle work is pending.
type IdleCallback func(i *Idle)

// Idle runs its callback once per loop iteration. Idle handles exist to run
// background work without letting the loop block indefinitely in Poll.
type Idle struct {
	phaseHandle
	cb IdleCallback
}

// NewIdle creates an inactive idle handle bound to loop.
func NewIdle(loop *Loop) *Idle {
	i := &Idle{}
	initPhaseHandle(&i.phaseHandle, loop, HandleIdle, loop.idles)
	return i
}

// Start arms the handle.
func (i *Idle) Start(cb IdleCallback) error {
	i.cb = cb
	i.run = func() {
		if i.cb != nil {
			i.cb(i)
		}
	}
	return i.start(i.loop.idles)
}

// Stop disarms the handle.
func (i *Idle) Stop() error { return i.stop(i.loop.idles) }
