package feeds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFixParser(t *testing.T) {
	p := NewJSONFixParser()

	m, err := p.Parse(`{"latitude":52.52,"longitude":13.405,"accuracy_meters":40,"speed":1.2}`)
	require.NoError(t, err)
	assert.Equal(t, 52.52, m.Latitude)
	assert.Equal(t, 13.405, m.Longitude)
	assert.Equal(t, 40.0, m.AccuracyMeters)
	require.NotNil(t, m.Speed)
	assert.Equal(t, 1.2, *m.Speed)
	assert.Nil(t, m.Altitude)
	assert.False(t, m.Time.IsZero(), "a fix without a timestamp gets the arrival time")
}

func TestJSONFixParser_BlankLinesSkipped(t *testing.T) {
	p := NewJSONFixParser()
	for _, line := range []string{"", "   ", "\t"} {
		_, err := p.Parse(line)
		assert.ErrorIs(t, err, ErrSkipLine)
	}
}

func TestJSONFixParser_Rejects(t *testing.T) {
	p := NewJSONFixParser()

	_, err := p.Parse(`{not json`)
	assert.Error(t, err)

	_, err = p.Parse(`{"latitude":52.0,"longitude":13.0}`)
	assert.Error(t, err, "missing accuracy must be rejected at the boundary")

	_, err = p.Parse(`{"latitude":52.0,"longitude":13.0,"accuracy_meters":-1}`)
	assert.Error(t, err)
}
