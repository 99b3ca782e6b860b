package fusion

import (
	"math"
	"testing"
)

func TestNewAxisFilter_CovarianceStartsAtProcessNoise(t *testing.T) {
	f := NewAxisFilter(1.0, 2.0)

	// q² = 4, t = 1: Qa = 1, Qb = Qc = 2, Qd = 4
	if f.pa != 1.0 {
		t.Errorf("expected Pa=1.0, got %v", f.pa)
	}
	if f.pb != 2.0 || f.pc != 2.0 {
		t.Errorf("expected Pb=Pc=2.0, got Pb=%v Pc=%v", f.pb, f.pc)
	}
	if f.pd != 4.0 {
		t.Errorf("expected Pd=4.0, got %v", f.pd)
	}
}

func TestAxisFilter_Reset(t *testing.T) {
	f := NewAxisFilter(1.0, 2.0)
	f.Reset(10.0, 0.5, 3.0)

	if f.Position() != 10.0 {
		t.Errorf("expected position 10.0, got %v", f.Position())
	}
	if f.Velocity() != 0.5 {
		t.Errorf("expected velocity 0.5, got %v", f.Velocity())
	}
	// Covariance re-derived from the measurement noise: n² = 9
	if f.pa != 9.0/4.0 {
		t.Errorf("expected Pa=2.25, got %v", f.pa)
	}
	if f.pd != 9.0 {
		t.Errorf("expected Pd=9.0, got %v", f.pd)
	}
	if f.pb != f.pc {
		t.Errorf("covariance must stay symmetric: Pb=%v Pc=%v", f.pb, f.pc)
	}
}

func TestAxisFilter_PredictMovesWithVelocity(t *testing.T) {
	f := NewAxisFilter(1.0, 1.0)
	f.Reset(0.0, 2.0, 1.0)

	f.Predict(0)
	if f.Position() != 2.0 {
		t.Errorf("expected position 2.0 after one step at v=2, got %v", f.Position())
	}
	if f.Velocity() != 2.0 {
		t.Errorf("velocity must be unchanged by zero-acceleration predict, got %v", f.Velocity())
	}

	f.Predict(1.0)
	// x += v·t + a·t²/2 = 2 + 0.5; v += a·t
	if f.Position() != 4.5 {
		t.Errorf("expected position 4.5, got %v", f.Position())
	}
	if f.Velocity() != 3.0 {
		t.Errorf("expected velocity 3.0, got %v", f.Velocity())
	}
}

func TestAxisFilter_VarianceGrowsUnderPredictionOnly(t *testing.T) {
	f := NewAxisFilter(1.0, 0.5)
	f.Reset(0.0, 0.0, 1.0)

	prev := f.pa
	for i := 0; i < 20; i++ {
		f.Predict(0)
		if f.pa <= prev {
			t.Fatalf("step %d: Pa must strictly grow without corrections, got %v (prev %v)", i, f.pa, prev)
		}
		prev = f.pa
	}
}

func TestAxisFilter_UpdateShrinksVariance(t *testing.T) {
	f := NewAxisFilter(1.0, 0.5)
	f.Reset(0.0, 0.0, 2.0)

	before := f.pa
	f.Update(0.1, 1.0)
	if f.pa >= before {
		t.Errorf("correction must shrink position variance: before=%v after=%v", before, f.pa)
	}
	if f.pa < 0 {
		t.Errorf("position variance must stay non-negative, got %v", f.pa)
	}
}

func TestAxisFilter_ConvergesOnConstantPosition(t *testing.T) {
	const truth = 42.0
	f := NewAxisFilter(1.0, 0.5)
	f.Reset(40.0, 0.0, 2.0)

	initialErr := math.Abs(f.Position() - truth)
	var finalErr float64
	for i := 0; i < 60; i++ {
		f.Predict(0)
		f.Update(truth, 2.0)
		finalErr = math.Abs(f.Position() - truth)
		if finalErr > initialErr+1e-9 {
			t.Fatalf("step %d: error %v exceeded the initial offset %v", i, finalErr, initialErr)
		}
	}
	if finalErr > 0.05 {
		t.Errorf("expected convergence to within 0.05 of truth, still off by %v", finalErr)
	}
	if math.Abs(f.Velocity()) > 0.05 {
		t.Errorf("velocity should settle near zero on a static target, got %v", f.Velocity())
	}
}

func TestAxisFilter_VelocityTracksLinearMotion(t *testing.T) {
	const rate = 1.5
	f := NewAxisFilter(1.0, 0.5)
	f.Reset(0.0, 0.0, 1.0)

	pos := 0.0
	for i := 0; i < 50; i++ {
		pos += rate
		f.Predict(0)
		f.Update(pos, 1.0)
	}
	if math.Abs(f.Velocity()-rate) > 0.2 {
		t.Errorf("expected velocity near %v, got %v", rate, f.Velocity())
	}
}

func TestAxisFilter_AccuracyUsesVelocityVariance(t *testing.T) {
	f := NewAxisFilter(2.0, 3.0)
	// At construction Pd = q²·t² = 9·4 = 36; accuracy = sqrt(Pd)/t = 3.
	if got := f.Accuracy(); math.Abs(got-3.0) > 1e-12 {
		t.Errorf("expected accuracy 3.0, got %v", got)
	}

	f.Reset(0, 0, 5.0)
	// Pd = 25·4 = 100; accuracy = 10/2 = 5.
	if got := f.Accuracy(); math.Abs(got-5.0) > 1e-12 {
		t.Errorf("expected accuracy 5.0 after reset, got %v", got)
	}
}
