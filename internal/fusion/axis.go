package fusion

import "math"

// AxisFilter is a scalar linear Kalman filter over (position, velocity) for a
// single spatial axis. The three axes of a fix are statistically independent,
// so three scalar filters replace one coupled matrix filter.
//
// The filter assumes exactly one nominal time step between successive
// Predict/Update calls regardless of wall-clock spacing. The emission timer
// drives Predict at a fixed cadence, so the step doubles as the velocity
// denominator.
type AxisFilter struct {
	// Time step and powers of it, fixed at construction.
	t, t2, t2d2, t3d2, t4d4 float64

	// Process noise covariance for a constant-velocity kinematic model.
	qa, qb, qc, qd float64

	// Estimated state: position and velocity.
	x, v float64

	// Estimated covariance. pb == pc always (symmetric).
	pa, pb, pc, pd float64
}

// NewAxisFilter creates a filter with the given time step and process noise
// standard deviation. Covariance starts at one step's process noise, a safe
// default until Reset installs a real state.
func NewAxisFilter(timeStep, processNoise float64) *AxisFilter {
	f := &AxisFilter{t: timeStep}
	f.t2 = f.t * f.t
	f.t2d2 = f.t2 / 2.0
	f.t3d2 = f.t2 * f.t / 2.0
	f.t4d4 = f.t2 * f.t2 / 4.0

	n2 := processNoise * processNoise
	f.qa = n2 * f.t4d4
	f.qb = n2 * f.t3d2
	f.qc = f.qb
	f.qd = n2 * f.t2

	f.pa = f.qa
	f.pb = f.qb
	f.pc = f.qc
	f.pd = f.qd
	return f
}

// Reset overwrites the state and derives covariance from the given measurement
// noise standard deviation. Called on the first fix seen for an axis.
func (f *AxisFilter) Reset(position, velocity, noise float64) {
	f.x = position
	f.v = velocity

	n2 := noise * noise
	f.pa = n2 * f.t4d4
	f.pb = n2 * f.t3d2
	f.pc = f.pb
	f.pd = n2 * f.t2
}

// Predict propagates the state one time step with the constant-velocity model.
// acceleration should be 0 unless some control input is known.
func (f *AxisFilter) Predict(acceleration float64) {
	// x = F.x + G.u
	f.x = f.x + f.v*f.t + acceleration*f.t2d2
	f.v = f.v + acceleration*f.t

	// P = F.P.F' + Q, expanded for F = [[1,t],[0,1]]
	pdt := f.pd * f.t
	fpftB := f.pb + pdt
	fpftA := f.pa + f.t*(f.pc+fpftB)
	fpftC := f.pc + pdt
	fpftD := f.pd

	f.pa = fpftA + f.qa
	f.pb = fpftB + f.qb
	f.pc = fpftC + f.qc
	f.pd = fpftD + f.qd
}

// Update corrects the state with a position measurement and its noise standard
// deviation. Only position is observed (H = [1,0]). noise must be strictly
// positive; callers floor degenerate feed accuracies before reaching here.
func (f *AxisFilter) Update(position, noise float64) {
	r := noise * noise

	// Innovation: y = z - H.x
	y := position - f.x

	// Innovation covariance: S = H.P.H' + R
	s := f.pa + r
	si := 1.0 / s

	// Kalman gain: K = P.H'.S^(-1)
	ka := f.pa * si
	kb := f.pc * si

	// x = x + K.y
	f.x += ka * y
	f.v += kb * y

	// P = P - K.(H.P), all four terms from pre-update values
	pa := f.pa - ka*f.pa
	pb := f.pb - ka*f.pb
	pc := f.pc - kb*f.pa
	pd := f.pd - kb*f.pb

	f.pa = pa
	f.pb = pb
	f.pc = pc
	f.pd = pd
}

// Position returns the estimated position.
func (f *AxisFilter) Position() float64 { return f.x }

// Velocity returns the estimated velocity.
func (f *AxisFilter) Velocity() float64 { return f.v }

// Accuracy returns the filter's uncertainty proxy, sqrt(Pd)/t. The velocity
// variance, not the position variance, is deliberately used here: downstream
// consumers calibrated against this historical formula, so it is kept even
// though sqrt(Pa) would be the textbook choice.
func (f *AxisFilter) Accuracy() float64 { return math.Sqrt(f.pd / f.t2) }
