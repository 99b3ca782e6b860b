package feeds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/geofuse/internal/fusion"
)

const (
	ggaSentence      = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
	rmcSentence      = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
	ggaNoFixSentence = "$GPGGA,123519,4807.038,N,01131.000,E,0,00,,,M,,M,,*52"
)

func TestNMEAParser_GGA(t *testing.T) {
	p := NewNMEAParser()

	m, err := p.Parse(ggaSentence)
	require.NoError(t, err)

	assert.Equal(t, fusion.FeedGPS, m.Feed)
	assert.InDelta(t, 48.1173, m.Latitude, 1e-6)
	assert.InDelta(t, 11.5166667, m.Longitude, 1e-6)
	require.NotNil(t, m.Altitude)
	assert.InDelta(t, 545.4, *m.Altitude, 1e-9)
	// HDOP 0.9 scaled by the 5m base
	assert.InDelta(t, 4.5, m.AccuracyMeters, 1e-9)
	assert.False(t, m.Time.IsZero())
	// No RMC seen yet
	assert.Nil(t, m.Speed)
	assert.Nil(t, m.Bearing)
}

func TestNMEAParser_RMCFoldsIntoNextFix(t *testing.T) {
	p := NewNMEAParser()

	_, err := p.Parse(rmcSentence)
	assert.ErrorIs(t, err, ErrSkipLine, "RMC alone does not produce a fix")

	m, err := p.Parse(ggaSentence)
	require.NoError(t, err)
	require.NotNil(t, m.Speed)
	assert.InDelta(t, 22.4*knotsToMetersPerSecond, *m.Speed, 1e-9)
	require.NotNil(t, m.Bearing)
	assert.InDelta(t, 84.4, *m.Bearing, 1e-9)
}

func TestNMEAParser_NoFixQualitySkipped(t *testing.T) {
	p := NewNMEAParser()
	_, err := p.Parse(ggaNoFixSentence)
	assert.ErrorIs(t, err, ErrSkipLine)
}

func TestNMEAParser_BadChecksumRejected(t *testing.T) {
	p := NewNMEAParser()
	corrupted := "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*00"
	_, err := p.Parse(corrupted)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSkipLine)
}

func TestNMEAParser_UnrelatedSentencesSkipped(t *testing.T) {
	p := NewNMEAParser()
	for _, line := range []string{
		"",
		"garbage",
		"$GPGSV,3,1,11,03,03,111,00,04,15,270,00*74",
	} {
		if _, err := p.Parse(line); err == nil {
			t.Errorf("line %q should not produce a fix", line)
		}
	}
}

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		value, hemisphere string
		want              float64
		wantErr           bool
	}{
		{"4807.038", "N", 48.1173, false},
		{"4807.038", "S", -48.1173, false},
		{"01131.000", "E", 11.5166667, false},
		{"01131.000", "W", -11.5166667, false},
		{"", "N", 0, true},
		{"4807.038", "?", 0, true},
		{"12", "N", 0, true},
	}
	for _, tt := range tests {
		got, err := parseCoordinate(tt.value, tt.hemisphere)
		if tt.wantErr {
			assert.Error(t, err, "%s %s", tt.value, tt.hemisphere)
			continue
		}
		require.NoError(t, err, "%s %s", tt.value, tt.hemisphere)
		assert.InDelta(t, tt.want, got, 1e-6, "%s %s", tt.value, tt.hemisphere)
	}
}
