package feeds

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/geofuse/internal/fusion"
)

const (
	// hdopBaseAccuracyMeters scales a receiver's HDOP into an accuracy
	// estimate. 5m is the conventional user-equivalent range error for
	// unaugmented GPS.
	hdopBaseAccuracyMeters = 5.0

	// defaultGPSAccuracyMeters is assumed when a sentence carries no HDOP.
	defaultGPSAccuracyMeters = 15.0

	knotsToMetersPerSecond = 0.514444
)

// NMEAParser parses NMEA 0183 sentences from a GPS receiver into fixes. GGA
// sentences produce the fix (position, altitude, HDOP-derived accuracy); RMC
// sentences are folded in as the speed and course carried by the next fix.
//
// The parser is stateful and is driven from the Mux monitor goroutine only.
type NMEAParser struct {
	speed   *float64
	bearing *float64
}

// NewNMEAParser returns a parser with no remembered RMC state.
func NewNMEAParser() *NMEAParser { return &NMEAParser{} }

// Parse implements Parser for one NMEA sentence.
func (p *NMEAParser) Parse(line string) (fusion.Measurement, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return fusion.Measurement{}, ErrSkipLine
	}
	body, ok := stripChecksum(line[1:])
	if !ok {
		return fusion.Measurement{}, fmt.Errorf("bad NMEA checksum")
	}

	fields := strings.Split(body, ",")
	talker := fields[0]
	switch {
	case strings.HasSuffix(talker, "RMC"):
		p.rememberRMC(fields)
		return fusion.Measurement{}, ErrSkipLine

	case strings.HasSuffix(talker, "GGA"):
		return p.parseGGA(fields)
	}
	return fusion.Measurement{}, ErrSkipLine
}

// rememberRMC keeps the speed and course of a valid RMC sentence for the next
// GGA-derived fix.
func (p *NMEAParser) rememberRMC(fields []string) {
	if len(fields) < 9 || fields[2] != "A" {
		return
	}
	if knots, err := strconv.ParseFloat(fields[7], 64); err == nil {
		mps := knots * knotsToMetersPerSecond
		p.speed = &mps
	}
	if course, err := strconv.ParseFloat(fields[8], 64); err == nil {
		p.bearing = &course
	}
}

func (p *NMEAParser) parseGGA(fields []string) (fusion.Measurement, error) {
	if len(fields) < 10 {
		return fusion.Measurement{}, fmt.Errorf("GGA sentence too short: %d fields", len(fields))
	}
	quality := fields[6]
	if quality == "" || quality == "0" {
		// Receiver has no fix yet.
		return fusion.Measurement{}, ErrSkipLine
	}

	lat, err := parseCoordinate(fields[2], fields[3])
	if err != nil {
		return fusion.Measurement{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := parseCoordinate(fields[4], fields[5])
	if err != nil {
		return fusion.Measurement{}, fmt.Errorf("longitude: %w", err)
	}

	accuracy := defaultGPSAccuracyMeters
	if hdop, err := strconv.ParseFloat(fields[8], 64); err == nil && hdop > 0 {
		accuracy = hdop * hdopBaseAccuracyMeters
	}

	m := fusion.Measurement{
		Feed:           fusion.FeedGPS,
		Latitude:       lat,
		Longitude:      lon,
		AccuracyMeters: accuracy,
		Speed:          p.speed,
		Bearing:        p.bearing,
		Time:           time.Now(),
	}
	if alt, err := strconv.ParseFloat(fields[9], 64); err == nil {
		m.Altitude = &alt
	}
	return m, nil
}

// parseCoordinate converts an NMEA ddmm.mmmm coordinate and hemisphere into
// signed decimal degrees.
func parseCoordinate(value, hemisphere string) (float64, error) {
	if value == "" || hemisphere == "" {
		return 0, fmt.Errorf("empty coordinate")
	}
	dot := strings.Index(value, ".")
	if dot < 3 {
		return 0, fmt.Errorf("malformed coordinate %q", value)
	}
	degrees, err := strconv.ParseFloat(value[:dot-2], 64)
	if err != nil {
		return 0, fmt.Errorf("degrees in %q: %w", value, err)
	}
	minutes, err := strconv.ParseFloat(value[dot-2:], 64)
	if err != nil {
		return 0, fmt.Errorf("minutes in %q: %w", value, err)
	}
	deg := degrees + minutes/60.0

	switch hemisphere {
	case "N", "E":
		return deg, nil
	case "S", "W":
		return -deg, nil
	}
	return 0, fmt.Errorf("unknown hemisphere %q", hemisphere)
}

// stripChecksum validates and removes a trailing *hh checksum. Sentences
// without a checksum are accepted as-is (some receivers omit it).
func stripChecksum(body string) (string, bool) {
	star := strings.LastIndex(body, "*")
	if star < 0 {
		return body, true
	}
	payload, sum := body[:star], body[star+1:]
	want, err := strconv.ParseUint(sum, 16, 8)
	if err != nil {
		return "", false
	}
	var got byte
	for i := 0; i < len(payload); i++ {
		got ^= payload[i]
	}
	return payload, got == byte(want)
}
