package units

import (
	"math"
	"testing"
)

func TestIsValid(t *testing.T) {
	for _, u := range ValidUnits {
		if !IsValid(u) {
			t.Errorf("IsValid(%q) = false, want true", u)
		}
	}
	for _, u := range []string{"", "knots", "MPH", "m/s"} {
		if IsValid(u) {
			t.Errorf("IsValid(%q) = true, want false", u)
		}
	}
}

func TestConvertSpeed(t *testing.T) {
	cases := []struct {
		unit string
		in   float64
		want float64
	}{
		{MPS, 10, 10},
		{MPH, 10, 22.3694},
		{KMPH, 10, 36},
		{KPH, 10, 36},
		{"unknown", 10, 10},
	}
	for _, tc := range cases {
		got := ConvertSpeed(tc.in, tc.unit)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("ConvertSpeed(%v, %q) = %v, want %v", tc.in, tc.unit, got, tc.want)
		}
	}
}
