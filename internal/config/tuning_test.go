package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestEmptyConfigUsesDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetTimeStep(); got != 1.0 {
		t.Errorf("GetTimeStep() = %v, want 1.0", got)
	}
	if got := cfg.GetCoordinateNoiseMeters(); got != 4.0 {
		t.Errorf("GetCoordinateNoiseMeters() = %v, want 4.0", got)
	}
	if got := cfg.GetAltitudeNoiseMeters(); got != 10.0 {
		t.Errorf("GetAltitudeNoiseMeters() = %v, want 10.0", got)
	}
	if got := cfg.GetMinAccuracyMeters(); got != 0.1 {
		t.Errorf("GetMinAccuracyMeters() = %v, want 0.1", got)
	}
	if got := cfg.GetEmissionInterval(); got != 200*time.Millisecond {
		t.Errorf("GetEmissionInterval() = %v, want 200ms", got)
	}
	if got := cfg.GetGPSMinInterval(); got != 0 {
		t.Errorf("GetGPSMinInterval() = %v, want 0", got)
	}
	if got := cfg.GetGPSBaudRate(); got != 9600 {
		t.Errorf("GetGPSBaudRate() = %v, want 9600", got)
	}
	if got := cfg.GetNetListenAddr(); got != ":9055" {
		t.Errorf("GetNetListenAddr() = %v, want :9055", got)
	}
}

func TestLoadPartialConfig(t *testing.T) {
	path := writeConfig(t, `{"coordinate_noise_meters": 2.5, "emission_interval": "1s"}`)

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}
	if got := cfg.GetCoordinateNoiseMeters(); got != 2.5 {
		t.Errorf("GetCoordinateNoiseMeters() = %v, want 2.5", got)
	}
	if got := cfg.GetEmissionInterval(); got != time.Second {
		t.Errorf("GetEmissionInterval() = %v, want 1s", got)
	}
	// Omitted fields fall back to defaults.
	if got := cfg.GetTimeStep(); got != 1.0 {
		t.Errorf("GetTimeStep() = %v, want default 1.0", got)
	}
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTuningConfig(path); err == nil {
		t.Fatal("expected error for non-.json extension")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{"negative time step", `{"time_step": -1}`},
		{"zero coordinate noise", `{"coordinate_noise_meters": 0}`},
		{"bad duration", `{"emission_interval": "fast"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.json)
			if _, err := LoadTuningConfig(path); err == nil {
				t.Errorf("expected validation error for %s", tc.json)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := EmptyTuningConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should validate: %v", err)
	}

	cfg.TimeStep = floatPtr(0.5)
	cfg.EmissionInterval = strPtr("250ms")
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	cfg.MinAccuracyMeters = floatPtr(-0.1)
	if err := cfg.Validate(); err == nil {
		t.Error("negative min_accuracy_meters should fail validation")
	}
}

func TestTuningAssembly(t *testing.T) {
	cfg := EmptyTuningConfig()
	cfg.TimeStep = floatPtr(2.0)
	cfg.AltitudeNoiseMeters = floatPtr(20.0)

	tuning := cfg.Tuning()
	if tuning.TimeStep != 2.0 {
		t.Errorf("TimeStep = %v, want 2.0", tuning.TimeStep)
	}
	if tuning.AltitudeNoiseMeters != 20.0 {
		t.Errorf("AltitudeNoiseMeters = %v, want 20.0", tuning.AltitudeNoiseMeters)
	}
	if tuning.CoordinateNoiseMeters != 4.0 {
		t.Errorf("CoordinateNoiseMeters = %v, want default 4.0", tuning.CoordinateNoiseMeters)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if got := cfg.GetTimeStep(); got != 1.0 {
		t.Errorf("defaults file time_step = %v, want 1.0", got)
	}
	if got := cfg.GetEmissionInterval(); got != 200*time.Millisecond {
		t.Errorf("defaults file emission_interval = %v, want 200ms", got)
	}
}
