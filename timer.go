package uvloop

import "time"

// TimerCallback fires when a timer's due time is reached or passed.
type TimerCallback func(t *Timer)

// Timer fires its callback once, after a delay, and again every repeat
// interval thereafter if repeat is non-zero. Repeat scheduling is
// drift-tolerant: each reschedule computes due as loop.Now() + repeat, not
// the previous due plus repeat, so a late-running callback never causes a
// burst of catch-up fires.
type Timer struct {
	Handle

	cb      TimerCallback
	due     time.Time
	repeat  time.Duration
	startID uint64

	heapIndex int
}

// NewTimer creates an inactive timer bound to loop. Call Start to arm it.
func NewTimer(loop *Loop) *Timer {
	t := &Timer{heapIndex: -1}
	loop.registry.initHandle(&t.Handle, HandleTimer, loop)
	t.teardown = func() { loop.timers.remove(t) }
	return t
}

// Start arms the timer to fire once after timeout, and then every repeat
// interval if repeat > 0. Calling Start on an already-active timer
// reschedules it from the current time, as if Stop had been called first.
func (t *Timer) Start(cb TimerCallback, timeout, repeat time.Duration) error {
	if t.IsClosing() {
		return ErrBadState
	}
	if timeout < 0 || repeat < 0 {
		return ErrInvalidArgument
	}
	if t.IsActive() {
		t.loop.timers.remove(t)
	}
	t.cb = cb
	t.repeat = repeat
	t.startID = t.loop.registry.nextTimerID()
	t.due = t.loop.Now().Add(timeout)
	t.loop.timers.insert(t)
	return t.loop.registry.start(&t.Handle)
}

// Stop disarms the timer. Idempotent; a no-op on an inactive or closing
// timer.
func (t *Timer) Stop() error {
	t.loop.timers.remove(t)
	return t.loop.registry.stop(&t.Handle)
}

// Again reschedules an active timer to fire after its current repeat
// interval, measured from now. It is equivalent to Stop, in timer terms,
// when repeat is zero. Returns ErrInvalidArgument if the timer is inactive
// (never started, or already stopped).
func (t *Timer) Again() error {
	if !t.IsActive() {
		return ErrInvalidArgument
	}
	if t.repeat == 0 {
		return t.Stop()
	}
	return t.Start(t.cb, t.repeat, t.repeat)
}

// SetRepeat changes the repeat interval. It takes effect starting with the
// timer's next expiry; it never retroactively shortens or lengthens a
// due time already scheduled.
func (t *Timer) SetRepeat(repeat time.Duration) { t.repeat = repeat }

// GetRepeat returns the current repeat interval.
func (t *Timer) GetRepeat() time.Duration { return t.repeat }

// DueIn reports the time remaining until this timer's next fire, or
// ok=false if it is not currently active.
func (t *Timer) DueIn() (d time.Duration, ok bool) {
	if !t.IsActive() {
		return 0, false
	}
	d = t.due.Sub(t.loop.Now())
	if d < 0 {
		d = 0
	}
	return d, true
}
