package uvloop

import (
	"github.com/rs/zerolog"

	"github.com/arrowlake/uvloop/internal/telemetry"
	"github.com/arrowlake/uvloop/internal/threadpool"
)

// Option configures a Loop at construction. Options are applied in order,
// so a later option overrides an earlier one touching the same field.
type Option func(*Loop)

// WithPoller substitutes the Poller backend. Defaults to NewNetPoller().
func WithPoller(p Poller) Option {
	return func(l *Loop) { l.poller = p }
}

// WithTelemetry substitutes the clock/metrics/tracer/hooks bundle, e.g. to
// inject a clockz.NewFakeClock() in tests. Defaults to telemetry.New().
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(l *Loop) { l.tel = t }
}

// WithThreadpoolSize starts the loop's threadpool with a fixed worker
// count instead of threadpool.Size()'s environment-derived default.
func WithThreadpoolSize(n int) Option {
	return func(l *Loop) { l.pool = threadpool.New(n) }
}

// WithLogger substitutes the structured logger used for diagnostics (poll
// errors, recovered callback panics). Never used on the per-callback hot
// path.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Loop) { l.log = log }
}
