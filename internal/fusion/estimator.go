package fusion

import (
	"time"

	"github.com/banshee-data/geofuse/internal/monitoring"
)

// Estimator fuses raw fixes from the input feeds into a smoothed position and
// velocity estimate. It owns one AxisFilter per active axis, created lazily on
// the first fix touching that axis, and enforces the predict-before-correct
// discipline between measurement arrivals and timer-driven emissions.
//
// Estimator is not safe for concurrent use. A live Session serialises access
// through its event loop; offline tools (fusion-sim, pcap-replay) and tests
// drive it directly from one goroutine.
type Estimator struct {
	tuning Tuning

	latitude  *AxisFilter
	longitude *AxisFilter
	altitude  *AxisFilter

	// predicted records whether the most recent state transition was a
	// timer-driven predict-and-emit. When false, a correction is arriving
	// back-to-back with the previous correction and each axis gets one
	// forced Predict(0) first, bounding how hard consecutive noisy fixes
	// can pull the state.
	predicted bool

	// last is the most recent fix, kept for pass-through fields (speed,
	// bearing, altitude presence). A gps fix always supersedes a net fix
	// here; a net fix only lands when there is no gps fix to keep.
	last *Measurement
}

// NewEstimator creates an estimator with the given tuning constants.
func NewEstimator(tuning Tuning) *Estimator {
	return &Estimator{tuning: tuning}
}

// Observe feeds one raw fix into the filters. For each axis present in the
// fix: create-and-reset the axis filter if it does not exist yet, force a
// prediction if the previous transition was itself a correction, then correct
// with the fix's derived noise.
func (e *Estimator) Observe(m Measurement) {
	accuracy, floored := e.tuning.FloorAccuracy(m.AccuracyMeters)
	if floored {
		monitoring.Logf("fusion: %s fix reported accuracy %.3fm, floored to %.3fm",
			m.Feed, m.AccuracyMeters, accuracy)
	}

	// Latitude
	noise := LatitudeNoise(accuracy)
	if e.latitude == nil {
		e.latitude = NewAxisFilter(e.tuning.TimeStep, e.tuning.CoordinateNoiseDeg())
		e.latitude.Reset(m.Latitude, 0, noise)
	}
	if !e.predicted {
		e.latitude.Predict(0)
	}
	e.latitude.Update(m.Latitude, noise)

	// Longitude
	noise = LongitudeNoise(accuracy, m.Latitude)
	if e.longitude == nil {
		e.longitude = NewAxisFilter(e.tuning.TimeStep, e.tuning.CoordinateNoiseDeg())
		e.longitude.Reset(m.Longitude, 0, noise)
	}
	if !e.predicted {
		e.longitude.Predict(0)
	}
	e.longitude.Update(m.Longitude, noise)

	// Altitude, only when the feed reports one
	if m.Altitude != nil {
		noise = AltitudeNoise(accuracy)
		if e.altitude == nil {
			e.altitude = NewAxisFilter(e.tuning.TimeStep, e.tuning.AltitudeNoiseMeters)
			e.altitude.Reset(*m.Altitude, 0, noise)
		}
		if !e.predicted {
			e.altitude.Predict(0)
		}
		e.altitude.Update(*m.Altitude, noise)
	}

	// Corrections always clear the flag; only Emit sets it.
	e.predicted = false

	// Last-known precedence: gps supersedes, net only fills a gap.
	if m.Feed == FeedGPS || e.last == nil || e.last.Feed == FeedNet {
		copied := m
		e.last = &copied
	}
}

// Emit advances every active axis one prediction step and composes the fused
// estimate. Returns false if no fix has ever been observed.
func (e *Estimator) Emit(now time.Time) (Estimate, bool) {
	if e.latitude == nil || e.longitude == nil {
		return Estimate{}, false
	}

	est := Estimate{Feed: FeedFused, Time: now}

	e.latitude.Predict(0)
	est.Latitude = e.latitude.Position()

	e.longitude.Predict(0)
	est.Longitude = e.longitude.Position()

	if e.altitude != nil {
		e.altitude.Predict(0)
		alt := e.altitude.Position()
		est.Altitude = &alt
	}

	if e.last != nil {
		est.Speed = e.last.Speed
		est.Bearing = e.last.Bearing
	}

	// Reported accuracy comes from the latitude axis, converted back to
	// meters.
	est.AccuracyMeters = e.latitude.Accuracy() * DegToMeter

	e.predicted = true
	return est, true
}

// Active reports whether the estimator has seen at least one fix.
func (e *Estimator) Active() bool { return e.latitude != nil }

// LastFix returns a copy of the most recent fix per the feed precedence rule,
// or false if none has been observed.
func (e *Estimator) LastFix() (Measurement, bool) {
	if e.last == nil {
		return Measurement{}, false
	}
	return *e.last, true
}
