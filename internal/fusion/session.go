package fusion

import (
	"sync"
	"time"

	"github.com/banshee-data/geofuse/internal/monitoring"
)

// measurementBuffer is the capacity of a session's inbound fix channel. Feeds
// delivering faster than the event loop drains are dropped with a diagnostic
// rather than blocking the feed goroutine.
const measurementBuffer = 16

// Session runs one estimator behind a single event loop, serialising
// asynchronous fix arrivals with the periodic emission timer. AxisFilter state
// and the predicted flag are only ever touched from the loop goroutine.
//
// The emission timer is armed by the first fix of any kind, and re-armed
// (Reset, replacing any pending tick) after every emission so processing time
// does not accumulate drift.
type Session struct {
	id        string
	cfg       SessionConfig
	estimator *Estimator
	out       func(Estimate)

	measurements chan Measurement
	done         chan struct{}
	stopped      chan struct{}
	closeOnce    sync.Once
}

// NewSession creates a session and starts its event loop. The output callback
// is invoked from the loop goroutine; slow consumers should hand off
// internally rather than block the loop. cfg is assumed to be validated and
// clamped by the Manager.
func NewSession(id string, cfg SessionConfig, tuning Tuning, out func(Estimate)) *Session {
	s := &Session{
		id:           id,
		cfg:          cfg,
		estimator:    NewEstimator(tuning),
		out:          out,
		measurements: make(chan Measurement, measurementBuffer),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	go s.run()
	return s
}

// ID returns the session handle.
func (s *Session) ID() string { return s.id }

// Config returns the session's (clamped) configuration.
func (s *Session) Config() SessionConfig { return s.cfg }

// Offer delivers a raw fix to the session. It never blocks: if the session's
// buffer is full or the session has been closed, the fix is dropped.
func (s *Session) Offer(m Measurement) {
	select {
	case <-s.done:
	case s.measurements <- m:
	default:
		monitoring.Logf("fusion: session %s dropping %s fix, event loop backlogged", s.id, m.Feed)
	}
}

// Close stops the event loop and cancels the emission timer. Idempotent:
// closing an already-closed session is a no-op. Close returns once the loop
// has exited and no further estimates will be emitted.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	<-s.stopped
}

func (s *Session) run() {
	defer close(s.stopped)

	// The timer starts disarmed; the first fix arms it. NewTimer needs a
	// duration, so create it firing far in the future and stop it
	// immediately before any tick can land.
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	armed := false

	for {
		select {
		case <-s.done:
			return

		case m := <-s.measurements:
			first := !s.estimator.Active()
			s.estimator.Observe(m)

			if s.cfg.ForwardRaw {
				s.out(measurementEstimate(m))
			}

			if first && !armed {
				timer.Reset(s.cfg.EmissionInterval)
				armed = true
			}

		case <-timer.C:
			if est, ok := s.estimator.Emit(time.Now()); ok {
				s.out(est)
			}
			// Reset rather than reload: any pending tick was just
			// consumed, and the next period starts now.
			timer.Reset(s.cfg.EmissionInterval)
		}
	}
}
