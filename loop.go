// Package uvloop implements a single-goroutine asynchronous I/O event
// loop: timers, cross-goroutine wakeups, prepare/check/idle phase hooks,
// stream read/write state machines and threadpool work offload, driven by
// one Loop per goroutine, architecturally modeled on libuv.
package uvloop

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arrowlake/uvloop/internal/telemetry"
	"github.com/arrowlake/uvloop/internal/threadpool"
)

// RunMode selects how long Run blocks per spec.md's three run modes.
type RunMode uint8

const (
	// RunDefault runs until the loop has no active handles or requests
	// left, or Stop is called.
	RunDefault RunMode = iota
	// RunOnce runs exactly one iteration, blocking for I/O if nothing else
	// demands attention, and guarantees that iteration makes progress.
	RunOnce
	// RunNoWait runs exactly one iteration with a zero poll timeout: it
	// never blocks, even if nothing is immediately ready.
	RunNoWait
)

// Loop is the single-goroutine driver every handle and request is bound
// to. Its methods, and those of every handle bound to it, must only be
// called from the goroutine that calls Run; Async.Send is the one
// exception.
type Loop struct {
	registry *registry
	timers   *timerHeap
	prepares *list[*phaseHandle]
	checks   *list[*phaseHandle]
	idles    *list[*phaseHandle]
	asyncs   map[*Async]struct{}

	poller Poller
	pool   *threadpool.Pool
	tel    *telemetry.Telemetry
	log    zerolog.Logger

	now time.Time

	pendingCallbacks []func()

	crossMu   sync.Mutex
	crossWork []func()

	stopRequested bool
	closed        bool
}

// NewLoop constructs a Loop. With no options it gets a portable
// netpoll-backed Poller, a real-clock telemetry bundle and a threadpool
// sized from UVLOOP_THREADPOOL_SIZE.
func NewLoop(opts ...Option) *Loop {
	l := &Loop{
		prepares: newList[*phaseHandle](),
		checks:   newList[*phaseHandle](),
		idles:    newList[*phaseHandle](),
		asyncs:   make(map[*Async]struct{}),
		timers:   &timerHeap{},
		log:      zerolog.New(os.Stderr).With().Timestamp().Str("component", "uvloop").Logger(),
	}
	l.registry = newRegistry(l)
	for _, opt := range opts {
		opt(l)
	}
	if l.poller == nil {
		l.poller = NewNetPoller()
	}
	if l.tel == nil {
		l.tel = telemetry.New()
	}
	if l.pool == nil {
		l.pool = threadpool.New(0)
	}
	l.pool.SetObserver(poolObserver{tel: l.tel})
	l.now = l.tel.Clock.Now()
	return l
}

// poolObserver adapts internal/threadpool's lifecycle events onto this
// loop's telemetry bundle: queue depth becomes a gauge, every terminal job
// becomes a counter increment, and a cancelled job also fires the
// EventJobCompleted hook with Detail "cancelled".
type poolObserver struct {
	tel *telemetry.Telemetry
}

func (o poolObserver) JobEnqueued(depth int) {
	o.tel.Metrics.Gauge(telemetry.ThreadpoolQueueGauge).Set(float64(depth))
}

func (o poolObserver) JobFinished(cancelled bool) {
	o.tel.Metrics.Counter(telemetry.ThreadpoolJobsTotal).Inc()
	if cancelled {
		o.tel.Emit(context.Background(), telemetry.EventJobCompleted, telemetry.Event{Kind: "threadpool", Detail: "cancelled"})
	}
}

// Now returns the loop's cached clock reading for the current iteration.
// Handles should use this instead of calling the clock directly, so that
// every callback invoked during one iteration sees a consistent "now".
func (l *Loop) Now() time.Time { return l.now }

// Stop requests that a RunDefault call return after the current
// iteration, and wakes a blocked poll if one is in progress.
func (l *Loop) Stop() {
	l.stopRequested = true
	l.wake()
}

// Walk invokes fn once for every handle on which Close has not been called.
func (l *Loop) Walk(fn func(h *Handle)) { l.registry.walk(fn) }

// ActiveHandles reports the loop's current active-and-referenced handle
// count — the count RunDefault watches to decide whether to keep going.
func (l *Loop) ActiveHandles() int { return l.registry.activeHandles }

// ActiveRequests reports the number of outstanding requests.
func (l *Loop) ActiveRequests() int { return l.registry.activeReqs }

// Telemetry exposes the loop's clock/metrics/tracer/hooks bundle.
func (l *Loop) Telemetry() *telemetry.Telemetry { return l.tel }

func (l *Loop) wake() { l.poller.Wake() }

func (l *Loop) hasWork() bool {
	return l.registry.activeHandles > 0 || l.registry.activeReqs > 0
}

// Run drives the loop according to mode. It returns ErrLoopClosed if the
// loop has already been closed.
func (l *Loop) Run(mode RunMode) error {
	if l.closed {
		return ErrLoopClosed
	}
	l.stopRequested = false
	switch mode {
	case RunNoWait, RunOnce:
		l.tick(mode)
	default:
		for !l.stopRequested && (l.hasWork() || l.registry.hasPendingCloses()) {
			l.tick(mode)
		}
	}
	return nil
}

// tick runs one full nine-phase iteration: update clock, run due timers,
// drain the pending queue, run idle handles, run prepare handles, compute
// the poll timeout, poll, run check handles, run close callbacks.
func (l *Loop) tick(mode RunMode) {
	l.now = l.tel.Clock.Now()
	l.tel.Metrics.Counter(telemetry.LoopIterationsTotal).Inc()
	l.tel.Metrics.Gauge(telemetry.LoopActiveHandleGauge).Set(float64(l.registry.activeHandles))
	l.tel.Metrics.Gauge(telemetry.LoopActiveRequestGauge).Set(float64(l.registry.activeReqs))

	ctx, span := l.tel.Tracer.StartSpan(context.Background(), telemetry.SpanLoopIteration)

	l.runDueTimers(ctx)
	drained := l.drainPending()
	l.runPhaseList(l.idles)
	l.runPhaseList(l.prepares)

	timeout := l.computeTimeout(mode)
	l.poll(ctx, timeout)

	l.runPhaseList(l.checks)
	l.registry.runPendingCloses()

	// ONCE-mode progress guarantee: when the drain-pending phase ran nothing,
	// poll may have blocked long enough for a timer to become due, or been
	// woken by an Async.Send. Re-check the clock, run the callbacks of async
	// handles sent to during the wait, and run any newly-due timers so a
	// single RunOnce call always executes at least one callback when the
	// loop has outstanding work, mirroring libuv's UV_RUN_ONCE re-running
	// uv__run_timers after the main loop body.
	if mode == RunOnce && !drained {
		l.now = l.tel.Clock.Now()
		l.processAsyncHandles()
		l.runDueTimers(ctx)
	}

	span.Finish()
}

// computeTimeout implements the "don't block if there's nothing to wait
// for" rule: NoWait always
// polls with a zero timeout; otherwise an active idle handle, a pending
// close or a due timer forces a zero or timer-bounded timeout, and the
// loop blocks indefinitely only when it still has active handles or
// requests worth waiting for.
func (l *Loop) computeTimeout(mode RunMode) time.Duration {
	if mode == RunNoWait {
		return 0
	}
	if l.stopRequested {
		return 0
	}
	if l.idles.Len() > 0 {
		return 0
	}
	if l.registry.hasPendingCloses() {
		return 0
	}
	if d, ok := l.timers.dueIn(l.now); ok {
		return d
	}
	if !l.hasWork() {
		return 0
	}
	return Indefinite
}

func (l *Loop) runDueTimers(ctx context.Context) {
	for {
		t := l.timers.peek()
		if t == nil || t.due.After(l.now) {
			return
		}
		l.timers.popRoot()
		l.tel.Metrics.Counter(telemetry.TimersFiredTotal).Inc()

		if t.repeat > 0 {
			t.startID = l.registry.nextTimerID()
			t.due = l.now.Add(t.repeat)
			l.timers.insert(t)
		} else {
			_ = l.registry.stop(&t.Handle)
		}

		cb := t.cb
		l.tel.Emit(ctx, telemetry.EventTimerFired, telemetry.Event{Kind: "timer", Handle: t.Type().String()})
		l.safeInvoke(func() {
			if cb != nil {
				cb(t)
			}
		})
	}
}

// drainPending runs the callbacks queued by the previous iteration's poll
// phase, any cross-goroutine work posted via postCross (threadpool
// completions), and coalesced async-handle sends. It reports whether any
// poll-event or cross-goroutine callback ran.
func (l *Loop) drainPending() bool {
	l.crossMu.Lock()
	work := l.crossWork
	l.crossWork = nil
	l.crossMu.Unlock()
	for _, fn := range work {
		l.safeInvoke(fn)
	}

	pending := l.pendingCallbacks
	l.pendingCallbacks = nil
	for _, fn := range pending {
		l.safeInvoke(fn)
	}

	l.processAsyncHandles()
	return len(work) > 0 || len(pending) > 0
}

func (l *Loop) processAsyncHandles() {
	for a := range l.asyncs {
		if a.pending.CompareAndSwap(true, false) {
			l.tel.Metrics.Counter(telemetry.AsyncCoalescedTotal).Inc()
			cb := a.cb
			l.safeInvoke(func() {
				if cb != nil {
					cb(a)
				}
			})
		}
	}
}

func (l *Loop) runPhaseList(lst *list[*phaseHandle]) {
	lst.Each(func(e *listElem[*phaseHandle]) {
		h := e.Value
		if !h.IsActive() {
			return
		}
		run := h.run
		l.safeInvoke(func() {
			if run != nil {
				run()
			}
		})
	})
}

func (l *Loop) poll(ctx context.Context, timeout time.Duration) {
	_, span := l.tel.Tracer.StartSpan(ctx, telemetry.SpanPollWait)
	span.SetTag(telemetry.TagTimeoutMs, fmt.Sprintf("%d", timeout.Milliseconds()))
	start := l.tel.Clock.Now()

	events, err := l.poller.Wait(timeout)

	l.tel.Metrics.Counter(telemetry.PollWaitMillis).Add(float64(l.tel.Clock.Now().Sub(start).Milliseconds()))
	span.Finish()

	if err != nil {
		if err != ErrPollerClosed {
			l.log.Warn().Err(err).Msg("poller wait failed")
		}
		return
	}
	for _, ev := range events {
		ev := ev
		l.pendingCallbacks = append(l.pendingCallbacks, func() { l.dispatchPollEvent(ev) })
	}
}

func (l *Loop) dispatchPollEvent(ev PollEvent) {
	if o, ok := ev.Owner.(interface{ onPollEvent(PollEvent) }); ok {
		o.onPollEvent(ev)
	}
}

// safeInvoke runs fn, recovering a panic into a logged warning so one
// misbehaving callback never takes down the whole loop goroutine.
func (l *Loop) safeInvoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Msg("recovered panic in loop callback")
		}
	}()
	fn()
}

func (l *Loop) registerAsync(a *Async)   { l.asyncs[a] = struct{}{} }
func (l *Loop) unregisterAsync(a *Async) { delete(l.asyncs, a) }

// postCross queues fn to run on the loop goroutine during the next
// drain-pending phase, and wakes a blocked poll. It is safe to call from
// any goroutine; threadpool job completions are the only internal caller.
func (l *Loop) postCross(fn func()) {
	l.crossMu.Lock()
	l.crossWork = append(l.crossWork, fn)
	l.crossMu.Unlock()
	l.wake()
}

// Close shuts the loop down: the poller and threadpool are stopped and
// telemetry is flushed. Close fails if any handle is still open, mirroring
// the "no leaked handles" contract Walk exists to check before shutdown.
func (l *Loop) Close() error {
	if l.closed {
		return ErrLoopClosed
	}
	if open := len(l.registry.live) + l.registry.closing.Len(); open > 0 {
		return fmt.Errorf("uvloop: close: %d handle(s) still open", open)
	}
	l.closed = true
	_ = l.poller.Close()
	_ = l.pool.Close()
	l.tel.Close()
	return nil
}
