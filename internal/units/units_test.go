package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		name     string
		speedMPS float64
		unit     Unit
		expected float64
	}{
		{"10 m/s to mph", 10.0, MPH, 22.3694},
		{"10 m/s to kmph", 10.0, KMPH, 36.0},
		{"10 m/s to kph", 10.0, KPH, 36.0},
		{"10 m/s to mps", 10.0, MPS, 10.0},
		{"unknown units stay in mps", 10.0, Unit("furlongs"), 10.0},
		{"0 m/s to mph", 0.0, MPH, 0.0},
		{"negative speed", -5.0, KPH, -18.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, tt.unit.Convert(tt.speedMPS), 1e-4)
		})
	}
}

func TestParse(t *testing.T) {
	u, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, MPS, u)

	u, err = Parse("MPH")
	require.NoError(t, err)
	assert.Equal(t, MPH, u)
	assert.Equal(t, "mph", u.Label())

	_, err = Parse("knots")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mps, mph, kmph, kph")

	assert.Equal(t, "km/h", KPH.Label())
	assert.Equal(t, "m/s", MPS.Label())
}
