// Package telemetry bundles the observability primitives every loop
// instance wires up: a mockable clock, a counter/gauge registry, a span
// tracer and a typed hook registry, following the same constructor-trio
// pattern zoobzio-pipz's connectors use internally.
package telemetry

import (
	"context"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Metric keys published by a loop and its subsystems.
const (
	TimersFiredTotal       = metricz.Key("uvloop.timers.fired.total")
	TimersActiveGauge      = metricz.Key("uvloop.timers.active")
	AsyncSentTotal         = metricz.Key("uvloop.async.sent.total")
	AsyncCoalescedTotal    = metricz.Key("uvloop.async.coalesced.total")
	LoopIterationsTotal    = metricz.Key("uvloop.loop.iterations.total")
	LoopActiveHandleGauge  = metricz.Key("uvloop.loop.active_handles")
	LoopActiveRequestGauge = metricz.Key("uvloop.loop.active_requests")
	PollWaitMillis         = metricz.Key("uvloop.poll.wait.ms.total")
	ThreadpoolQueueGauge   = metricz.Key("uvloop.threadpool.queue_depth")
	ThreadpoolJobsTotal    = metricz.Key("uvloop.threadpool.jobs.total")
	StreamBytesReadTotal   = metricz.Key("uvloop.stream.bytes_read.total")
	StreamBytesWriteTotal  = metricz.Key("uvloop.stream.bytes_written.total")
)

// Span keys.
const (
	SpanLoopIteration = tracez.Key("uvloop.loop.iteration")
	SpanTimerFire     = tracez.Key("uvloop.timer.fire")
	SpanPollWait      = tracez.Key("uvloop.poll.wait")
	SpanThreadpoolJob = tracez.Key("uvloop.threadpool.job")
	SpanStreamRead    = tracez.Key("uvloop.stream.read")
	SpanStreamWrite   = tracez.Key("uvloop.stream.write")
)

// Span tags.
const (
	TagHandleType = tracez.Tag("uvloop.handle_type")
	TagError      = tracez.Tag("uvloop.error")
	TagTimeoutMs  = tracez.Tag("uvloop.timeout_ms")
)

// Event is the payload delivered to hook subscribers.
type Event struct {
	Kind   string
	Handle string
	Detail string
}

// Hook keys.
const (
	EventTimerFired   = hookz.Key("uvloop.timer.fired")
	EventHandleClosed = hookz.Key("uvloop.handle.closed")
	EventJobCompleted = hookz.Key("uvloop.threadpool.job.completed")
)

// Telemetry bundles the four instrumentation primitives a Loop wires up at
// construction. A zero-value Loop gets RealClock and fresh, unshared
// registries; tests substitute a fake clock via clockz.NewFakeClock().
type Telemetry struct {
	Clock   clockz.Clock
	Metrics *metricz.Registry
	Tracer  *tracez.Tracer
	Hooks   *hookz.Hooks[Event]
}

// New constructs a Telemetry with a real clock and fresh registries.
func New() *Telemetry {
	return &Telemetry{
		Clock:   clockz.RealClock,
		Metrics: metricz.New(),
		Tracer:  tracez.New(),
		Hooks:   hookz.New[Event](),
	}
}

// WithClock substitutes the clock, e.g. a clockz.NewFakeClock() in tests.
func (t *Telemetry) WithClock(c clockz.Clock) *Telemetry {
	t.Clock = c
	return t
}

// Emit publishes an event to hook subscribers, swallowing the "no
// subscribers" case that hookz.Hooks.Emit treats as a normal outcome.
func (t *Telemetry) Emit(ctx context.Context, key hookz.Key, ev Event) {
	_ = t.Hooks.Emit(ctx, key, ev)
}

// Close shuts down the tracer and hook registry. Safe to call once, at
// loop close.
func (t *Telemetry) Close() {
	t.Tracer.Close()
	t.Hooks.Close()
}
