// Package clock abstracts time so throttles, heartbeats and sweeps can be
// driven by virtual time in tests instead of real sleeps.
package clock

import "time"

// Clock provides the current time and tickers
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the engine needs
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

// New returns a Clock backed by the system clock
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.t.C }
func (rt *realTicker) Stop()               { rt.t.Stop() }
