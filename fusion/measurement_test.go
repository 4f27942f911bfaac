package fusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSensorType(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]SensorType{
		"L": Laser, "l": Laser, "LASER": Laser, "lidar": Laser,
		"R": Radar, " r ": Radar, "Radar": Radar,
	} {
		got, err := ParseSensorType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseSensorType("X")
	assert.ErrorIs(t, err, ErrUnknownSensor)
}

func TestMeasurementCartesian(t *testing.T) {
	t.Parallel()
	px, py := Measurement{Sensor: Radar, Raw: []float64{2, math.Pi / 2, 1}}.Cartesian()
	assert.InDelta(t, 0.0, px, 1e-12)
	assert.InDelta(t, 2.0, py, 1e-12)

	px, py = Measurement{Sensor: Laser, Raw: []float64{3, -4}}.Cartesian()
	assert.Equal(t, 3.0, px)
	assert.Equal(t, -4.0, py)
}

func TestMeasurementValidate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Measurement{Sensor: Radar, Raw: []float64{1, -3, 0}}.Validate())

	tests := []struct {
		name string
		m    Measurement
		is   error
	}{
		{name: "unknown sensor", m: Measurement{Raw: []float64{1, 2}}, is: ErrUnknownSensor},
		{name: "short radar", m: Measurement{Sensor: Radar, Raw: []float64{1, 2}}, is: ErrInvalidMeasurement},
		{name: "nan laser", m: Measurement{Sensor: Laser, Raw: []float64{math.NaN(), 2}}, is: ErrInvalidMeasurement},
		{name: "inf radar", m: Measurement{Sensor: Radar, Raw: []float64{1, 0, math.Inf(1)}}, is: ErrInvalidMeasurement},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, tt.m.Validate(), tt.is)
		})
	}
}

func TestStrings(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "LASER", Laser.String())
	assert.Equal(t, "RADAR", Radar.String())
	assert.Equal(t, "SensorType(0)", SensorType(0).String())
	assert.Equal(t, "update-skipped", OutcomeUpdateSkipped.String())
	assert.Equal(t, "reset", OutcomeReset.String())
}
