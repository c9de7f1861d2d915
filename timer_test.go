package uvloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"github.com/arrowlake/uvloop/internal/telemetry"
)

func newTestLoop(t *testing.T) (*Loop, *clockz.FakeClock) {
	t.Helper()
	fc := clockz.NewFakeClock()
	tel := telemetry.New().WithClock(fc)
	loop := NewLoop(WithTelemetry(tel))
	t.Cleanup(func() { _ = loop.pool.Close() })
	return loop, fc
}

func TestTimerOneShotFires(t *testing.T) {
	loop, fc := newTestLoop(t)

	var fired int
	timer := NewTimer(loop)
	require.NoError(t, timer.Start(func(tm *Timer) { fired++ }, 10*time.Millisecond, 0))

	fc.Advance(5 * time.Millisecond)
	require.NoError(t, loop.Run(RunNoWait))
	require.Equal(t, 0, fired)

	fc.Advance(6 * time.Millisecond)
	require.NoError(t, loop.Run(RunNoWait))
	require.Equal(t, 1, fired)
	require.False(t, timer.IsActive(), "one-shot timer deactivates after firing")

	// it must not fire again on a later tick
	fc.Advance(time.Second)
	require.NoError(t, loop.Run(RunNoWait))
	require.Equal(t, 1, fired)
}

func TestTimerRepeatIsDriftTolerant(t *testing.T) {
	loop, fc := newTestLoop(t)

	var fired int
	timer := NewTimer(loop)
	require.NoError(t, timer.Start(func(tm *Timer) { fired++ }, 10*time.Millisecond, 10*time.Millisecond))

	fc.Advance(10 * time.Millisecond)
	require.NoError(t, loop.Run(RunNoWait))
	require.Equal(t, 1, fired)

	// a long delay before the next tick must not cause a burst of
	// catch-up fires: due is recomputed as now+repeat, not due+=repeat.
	fc.Advance(time.Second)
	require.NoError(t, loop.Run(RunNoWait))
	require.Equal(t, 2, fired)

	require.NoError(t, timer.Stop())
	fc.Advance(time.Second)
	require.NoError(t, loop.Run(RunNoWait))
	require.Equal(t, 2, fired)
}

func TestTimerAgainReschedulesFromNow(t *testing.T) {
	loop, fc := newTestLoop(t)

	var fired int
	timer := NewTimer(loop)
	require.NoError(t, timer.Start(func(tm *Timer) { fired++ }, 10*time.Millisecond, 10*time.Millisecond))

	fc.Advance(10 * time.Millisecond)
	require.NoError(t, loop.Run(RunNoWait))
	require.Equal(t, 1, fired)

	require.NoError(t, timer.Again())
	fc.Advance(9 * time.Millisecond)
	require.NoError(t, loop.Run(RunNoWait))
	require.Equal(t, 1, fired, "Again reschedules from now, not from the old due time")

	fc.Advance(1 * time.Millisecond)
	require.NoError(t, loop.Run(RunNoWait))
	require.Equal(t, 2, fired)
}

func TestTimerSetRepeatTakesEffectNextExpiry(t *testing.T) {
	loop, fc := newTestLoop(t)

	var fired int
	timer := NewTimer(loop)
	require.NoError(t, timer.Start(func(tm *Timer) { fired++ }, 10*time.Millisecond, 10*time.Millisecond))

	// changing repeat must not retroactively shorten the outstanding fire
	timer.SetRepeat(100 * time.Millisecond)
	fc.Advance(10 * time.Millisecond)
	require.NoError(t, loop.Run(RunNoWait))
	require.Equal(t, 1, fired)

	fc.Advance(50 * time.Millisecond)
	require.NoError(t, loop.Run(RunNoWait))
	require.Equal(t, 1, fired, "new repeat applies after the next expiry")

	fc.Advance(50 * time.Millisecond)
	require.NoError(t, loop.Run(RunNoWait))
	require.Equal(t, 2, fired)
}

func TestTimerStopPreventsFiring(t *testing.T) {
	loop, fc := newTestLoop(t)

	var fired int
	timer := NewTimer(loop)
	require.NoError(t, timer.Start(func(tm *Timer) { fired++ }, 10*time.Millisecond, 0))
	require.NoError(t, timer.Stop())

	fc.Advance(time.Second)
	require.NoError(t, loop.Run(RunNoWait))
	require.Equal(t, 0, fired)
}

func TestTimerAgainOnStoppedTimerFailsInvalidArgument(t *testing.T) {
	loop, _ := newTestLoop(t)

	timer := NewTimer(loop)
	require.NoError(t, timer.Start(func(tm *Timer) {}, 10*time.Millisecond, 10*time.Millisecond))
	require.NoError(t, timer.Stop())

	require.ErrorIs(t, timer.Again(), ErrInvalidArgument)
}

func TestTimerAgainOnNeverStartedTimerFailsInvalidArgument(t *testing.T) {
	loop, _ := newTestLoop(t)

	timer := NewTimer(loop)
	require.ErrorIs(t, timer.Again(), ErrInvalidArgument)
}
