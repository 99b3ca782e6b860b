package fusion

import "math"

// Unit conversion between meters and coordinate degrees. One degree of
// latitude spans roughly 111225 meters; longitude degrees shrink with
// cos(latitude) and are corrected per-fix in LongitudeNoise.
const (
	DegToMeter = 111225.0
	MeterToDeg = 1.0 / DegToMeter
)

// Tuning holds the filter constants shared by every axis of a session. All
// values have working defaults in DefaultTuning; the service overrides them
// from config/tuning.defaults.json.
type Tuning struct {
	// TimeStep is the nominal step assumed between predict/update calls.
	TimeStep float64
	// CoordinateNoiseMeters is the process noise for the latitude and
	// longitude axes, expressed in meters and converted to degrees once.
	CoordinateNoiseMeters float64
	// AltitudeNoiseMeters is the process noise for the altitude axis.
	AltitudeNoiseMeters float64
	// MinAccuracyMeters floors the accuracy a feed may report. A zero or
	// negative reported accuracy would put a zero (or negative) variance
	// into the correction step and divide by zero.
	MinAccuracyMeters float64
}

// DefaultTuning returns the stock filter constants.
func DefaultTuning() Tuning {
	return Tuning{
		TimeStep:              1.0,
		CoordinateNoiseMeters: 4.0,
		AltitudeNoiseMeters:   10.0,
		MinAccuracyMeters:     0.1,
	}
}

// CoordinateNoiseDeg returns the coordinate process noise in degrees.
func (tn Tuning) CoordinateNoiseDeg() float64 {
	return tn.CoordinateNoiseMeters * MeterToDeg
}

// FloorAccuracy clamps a feed-reported accuracy to the configured minimum.
// Returns the clamped value and whether clamping occurred.
func (tn Tuning) FloorAccuracy(accuracyMeters float64) (float64, bool) {
	if accuracyMeters < tn.MinAccuracyMeters {
		return tn.MinAccuracyMeters, true
	}
	return accuracyMeters, false
}

// LatitudeNoise converts a reported accuracy in meters into the measurement
// noise standard deviation for the latitude axis, in degrees.
func LatitudeNoise(accuracyMeters float64) float64 {
	return accuracyMeters * MeterToDeg
}

// LongitudeNoise converts a reported accuracy in meters into the measurement
// noise standard deviation for the longitude axis at the given latitude.
// Longitude degrees cover less ground away from the equator, so the same
// metric accuracy maps to a smaller angular deviation.
func LongitudeNoise(accuracyMeters, latitudeDeg float64) float64 {
	return accuracyMeters * math.Cos(latitudeDeg*math.Pi/180.0) * MeterToDeg
}

// AltitudeNoise converts a reported accuracy in meters into the measurement
// noise standard deviation for the altitude axis. Altitude is filtered in
// meters, so no unit conversion applies.
func AltitudeNoise(accuracyMeters float64) float64 {
	return accuracyMeters
}
