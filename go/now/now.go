// Package now lets callers read (and, in tests, override) wall-clock time
// and tickers through a context.Context instead of calling time.Now/
// time.NewTicker directly, so background workers and time-based components
// (the Escalation Engine, the Time-Tracking Ledger, the After-Hours Router)
// can be driven with virtual time. Grounded on the presence of
// go.goldmine.build/go/now/mocks (a mockery-generated TimeTicker mock) in
// the retrieved pack, which establishes the TimeTicker/NewTimeTickerFunc
// shape reconstructed here; the package's own source was not retrieved.
package now

import (
	"context"
	"time"
)

type contextKey struct{}

// Set returns a context in which Now(ctx) reports t instead of the real
// wall clock. Used by tests to drive time-dependent components.
func Set(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// Now returns the current time, or the time installed by Set if the
// context carries one.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(contextKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// TimeTicker is the subset of time.Ticker that callers need, so it can be
// faked in tests.
type TimeTicker interface {
	C() <-chan time.Time
	Stop()
}

// NewTimeTickerFunc constructs a TimeTicker with the given period. Swapped
// out in tests for a function that returns a ticker driven by a manually
// fed channel.
type NewTimeTickerFunc func(d time.Duration) TimeTicker

// NewTicker is the production NewTimeTickerFunc, backed by time.NewTicker.
func NewTicker(d time.Duration) TimeTicker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }
