package fusion

import "time"

// RateGate drops events arriving closer together than a minimum interval.
// It implements the per-feed min-interval options of SessionConfig: the
// session sees at most one fix per interval per feed, whatever the feed's
// native rate. A zero interval admits everything.
//
// RateGate is used from a single forwarder goroutine and needs no locking.
type RateGate struct {
	min  time.Duration
	last time.Time
}

// NewRateGate returns a gate with the given minimum spacing. Negative
// intervals behave as zero.
func NewRateGate(min time.Duration) *RateGate {
	if min < 0 {
		min = 0
	}
	return &RateGate{min: min}
}

// Allow reports whether an event at the given time passes the gate, and
// records it as the last admitted event if so. The first event always passes.
func (g *RateGate) Allow(now time.Time) bool {
	if g.min == 0 {
		g.last = now
		return true
	}
	if !g.last.IsZero() && now.Sub(g.last) < g.min {
		return false
	}
	g.last = now
	return true
}
