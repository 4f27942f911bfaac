package fusion

import (
	"fmt"
	"math"
	"strings"
)

// SensorType identifies the sensor that produced a measurement.
type SensorType int

const (
	Laser SensorType = iota + 1
	Radar
)

func (s SensorType) String() string {
	switch s {
	case Laser:
		return "LASER"
	case Radar:
		return "RADAR"
	default:
		return fmt.Sprintf("SensorType(%d)", int(s))
	}
}

// Dim returns the number of raw values the sensor reports.
func (s SensorType) Dim() int {
	switch s {
	case Laser:
		return LaserDim
	case Radar:
		return RadarDim
	default:
		return 0
	}
}

// ParseSensorType accepts the single-letter log codes ("L", "R") as well as
// the full names.
func ParseSensorType(s string) (SensorType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "L", "LASER", "LIDAR":
		return Laser, nil
	case "R", "RADAR":
		return Radar, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSensor, s)
}

// Measurement is one timestamped sensor reading.
//
// Raw holds [px, py] for Laser and [rho, theta, rho_dot] for Radar.
// Timestamp is in microseconds.
type Measurement struct {
	Sensor    SensorType
	Raw       []float64
	Timestamp int64
}

// Validate checks the sensor type, the number of raw values and that every
// value is finite.
func (m Measurement) Validate() error {
	dim := m.Sensor.Dim()
	if dim == 0 {
		return fmt.Errorf("%w: %v", ErrUnknownSensor, m.Sensor)
	}
	if len(m.Raw) != dim {
		return fmt.Errorf("%w: %v expects %d values, got %d", ErrInvalidMeasurement, m.Sensor, dim, len(m.Raw))
	}
	for i, v := range m.Raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %v value %d is %g", ErrInvalidMeasurement, m.Sensor, i, v)
		}
	}
	return nil
}

// Cartesian returns the measured position in the filter frame. Radar
// readings are converted from polar coordinates.
func (m Measurement) Cartesian() (px, py float64) {
	switch m.Sensor {
	case Radar:
		rho, theta := m.Raw[0], m.Raw[1]
		return rho * math.Cos(theta), rho * math.Sin(theta)
	default:
		return m.Raw[0], m.Raw[1]
	}
}

// Estimate is a snapshot of the filter state after a processed measurement.
type Estimate struct {
	Timestamp int64   `json:"ts"`
	PX        float64 `json:"px"`
	PY        float64 `json:"py"`
	VX        float64 `json:"vx"`
	VY        float64 `json:"vy"`
}

// Outcome reports what a processing cycle did with a measurement.
type Outcome int

const (
	// OutcomeRejected: the measurement was discarded and the state is untouched.
	OutcomeRejected Outcome = iota
	// OutcomeInitialized: the measurement seeded the state.
	OutcomeInitialized
	// OutcomeUpdated: predict and update both ran.
	OutcomeUpdated
	// OutcomeUpdateSkipped: predict ran, the radar update was skipped.
	OutcomeUpdateSkipped
	// OutcomeReset: the gap since the previous measurement was too large;
	// the filter is uninitialized again.
	OutcomeReset
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRejected:
		return "rejected"
	case OutcomeInitialized:
		return "initialized"
	case OutcomeUpdated:
		return "updated"
	case OutcomeUpdateSkipped:
		return "update-skipped"
	case OutcomeReset:
		return "reset"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}
