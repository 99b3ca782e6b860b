package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/geofuse/internal/fusion"
)

// DefaultConfigPath is the path to the canonical tuning defaults file, the
// single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root configuration for the fusion service. Fields are
// pointers so a partial JSON file only overrides what it names; the Get*
// methods supply defaults for everything left nil.
type TuningConfig struct {
	// Filter params
	TimeStep              *float64 `json:"time_step,omitempty"`
	CoordinateNoiseMeters *float64 `json:"coordinate_noise_meters,omitempty"`
	AltitudeNoiseMeters   *float64 `json:"altitude_noise_meters,omitempty"`
	MinAccuracyMeters     *float64 `json:"min_accuracy_meters,omitempty"`

	// Default session params (overridable per session via the API)
	EmissionInterval *string `json:"emission_interval,omitempty"` // duration string like "200ms"
	GPSMinInterval   *string `json:"gps_min_interval,omitempty"`
	NetMinInterval   *string `json:"net_min_interval,omitempty"`

	// Feed transport params
	GPSSerialPath *string `json:"gps_serial_path,omitempty"`
	GPSBaudRate   *int    `json:"gps_baud_rate,omitempty"`
	NetListenAddr *string `json:"net_listen_addr,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with every field nil. Use
// LoadTuningConfig to load actual values from a defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted from
// the file keep their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Guard against accidentally pointing at something huge (max 1MB).
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching upward from the working directory. Panics if
// the file cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/<pkg>/
		"../../../" + DefaultConfigPath, // from cmd/tools/<tool>/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that configured values are usable.
func (c *TuningConfig) Validate() error {
	if c.TimeStep != nil && *c.TimeStep <= 0 {
		return fmt.Errorf("time_step must be positive, got %f", *c.TimeStep)
	}
	if c.CoordinateNoiseMeters != nil && *c.CoordinateNoiseMeters <= 0 {
		return fmt.Errorf("coordinate_noise_meters must be positive, got %f", *c.CoordinateNoiseMeters)
	}
	if c.AltitudeNoiseMeters != nil && *c.AltitudeNoiseMeters <= 0 {
		return fmt.Errorf("altitude_noise_meters must be positive, got %f", *c.AltitudeNoiseMeters)
	}
	if c.MinAccuracyMeters != nil && *c.MinAccuracyMeters <= 0 {
		return fmt.Errorf("min_accuracy_meters must be positive, got %f", *c.MinAccuracyMeters)
	}
	for name, v := range map[string]*string{
		"emission_interval": c.EmissionInterval,
		"gps_min_interval":  c.GPSMinInterval,
		"net_min_interval":  c.NetMinInterval,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}
	return nil
}

// Tuning assembles the filter constants for the fusion core.
func (c *TuningConfig) Tuning() fusion.Tuning {
	return fusion.Tuning{
		TimeStep:              c.GetTimeStep(),
		CoordinateNoiseMeters: c.GetCoordinateNoiseMeters(),
		AltitudeNoiseMeters:   c.GetAltitudeNoiseMeters(),
		MinAccuracyMeters:     c.GetMinAccuracyMeters(),
	}
}

// GetTimeStep returns the time_step value or the default.
func (c *TuningConfig) GetTimeStep() float64 {
	if c.TimeStep == nil {
		return 1.0
	}
	return *c.TimeStep
}

// GetCoordinateNoiseMeters returns the coordinate_noise_meters value or the default.
func (c *TuningConfig) GetCoordinateNoiseMeters() float64 {
	if c.CoordinateNoiseMeters == nil {
		return 4.0
	}
	return *c.CoordinateNoiseMeters
}

// GetAltitudeNoiseMeters returns the altitude_noise_meters value or the default.
func (c *TuningConfig) GetAltitudeNoiseMeters() float64 {
	if c.AltitudeNoiseMeters == nil {
		return 10.0
	}
	return *c.AltitudeNoiseMeters
}

// GetMinAccuracyMeters returns the min_accuracy_meters value or the default.
func (c *TuningConfig) GetMinAccuracyMeters() float64 {
	if c.MinAccuracyMeters == nil {
		return 0.1
	}
	return *c.MinAccuracyMeters
}

// GetEmissionInterval parses and returns the default emission cadence.
func (c *TuningConfig) GetEmissionInterval() time.Duration {
	return c.duration(c.EmissionInterval, 200*time.Millisecond)
}

// GetGPSMinInterval parses and returns the default gps feed throttle.
func (c *TuningConfig) GetGPSMinInterval() time.Duration {
	return c.duration(c.GPSMinInterval, 0)
}

// GetNetMinInterval parses and returns the default net feed throttle.
func (c *TuningConfig) GetNetMinInterval() time.Duration {
	return c.duration(c.NetMinInterval, 0)
}

// GetGPSSerialPath returns the gps_serial_path value or the default.
func (c *TuningConfig) GetGPSSerialPath() string {
	if c.GPSSerialPath == nil || *c.GPSSerialPath == "" {
		return "/dev/ttyUSB0"
	}
	return *c.GPSSerialPath
}

// GetGPSBaudRate returns the gps_baud_rate value or the default.
func (c *TuningConfig) GetGPSBaudRate() int {
	if c.GPSBaudRate == nil {
		return 9600
	}
	return *c.GPSBaudRate
}

// GetNetListenAddr returns the net_listen_addr value or the default.
func (c *TuningConfig) GetNetListenAddr() string {
	if c.NetListenAddr == nil || *c.NetListenAddr == "" {
		return ":9055"
	}
	return *c.NetListenAddr
}

func (c *TuningConfig) duration(v *string, fallback time.Duration) time.Duration {
	if v == nil || *v == "" {
		return fallback
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fallback
	}
	return d
}
