package runtime

import (
	"context"
	"time"

	"virtual-exchange/internal/domain"
)

// Clock provides the backtest's notion of "now" to every read-side API.
// Production code always gets one backed by VirtualClock; tests can
// substitute any implementation.
type Clock interface {
	Now() time.Time
}

// SystemClock uses the real wall clock. It exists for components that
// run outside any backtest (e.g. live request handling); the Runner
// itself always uses VirtualClock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// VirtualClock is the backtest's T: strictly increasing within a run,
// created at run_start. Every SetCurrentTime must move it forward; a
// time at or before the current value fails with ErrClockRegression
// rather than silently clamping,
// so a caller bug surfaces immediately instead of corrupting a run.
type VirtualClock struct {
	current time.Time
	set     bool
}

// NewVirtualClock creates a clock positioned at start. start becomes the
// floor for every subsequent SetCurrentTime call.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{current: start, set: true}
}

func (c *VirtualClock) Now() time.Time {
	return c.current
}

// SetCurrentTime moves T forward. An attempt to move it to a time at or
// before the current value fails with ErrClockRegression and leaves the
// clock unchanged.
func (c *VirtualClock) SetCurrentTime(t time.Time) error {
	if c.set && !t.After(c.current) {
		return domain.ErrClockRegression
	}
	c.current = t
	c.set = true
	return nil
}

// Advance moves T forward by d, a convenience wrapper used by tests that
// step the clock in fixed increments.
func (c *VirtualClock) Advance(d time.Duration) error {
	return c.SetCurrentTime(c.current.Add(d))
}

type clockKey struct{}

// WithClock attaches a Clock to ctx for read-side APIs that need "now"
// without a direct Runner reference.
func WithClock(ctx context.Context, c Clock) context.Context {
	return context.WithValue(ctx, clockKey{}, c)
}

// ClockFromContext retrieves the clock set by WithClock, defaulting to
// SystemClock if none was attached.
func ClockFromContext(ctx context.Context) Clock {
	if c, ok := ctx.Value(clockKey{}).(Clock); ok {
		return c
	}
	return SystemClock{}
}

// Now is a convenience wrapper around ClockFromContext(ctx).Now().
func Now(ctx context.Context) time.Time {
	return ClockFromContext(ctx).Now()
}
