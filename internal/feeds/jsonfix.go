package feeds

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/geofuse/internal/fusion"
)

// JSONFixParser parses the newline-delimited JSON fix format used by the
// network positioning feed. Each line is one object:
//
//	{"latitude":52.1,"longitude":13.3,"accuracy_meters":40,"speed":1.2}
//
// Latitude, longitude and accuracy are required; everything else is optional.
type JSONFixParser struct{}

// NewJSONFixParser returns a parser for newline-delimited JSON fixes.
func NewJSONFixParser() *JSONFixParser { return &JSONFixParser{} }

// Parse implements Parser for one JSON fix line.
func (p *JSONFixParser) Parse(line string) (fusion.Measurement, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return fusion.Measurement{}, ErrSkipLine
	}

	var m fusion.Measurement
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		return fusion.Measurement{}, fmt.Errorf("decode fix: %w", err)
	}
	if m.AccuracyMeters <= 0 {
		return fusion.Measurement{}, fmt.Errorf("fix missing positive accuracy_meters")
	}
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	return m, nil
}
