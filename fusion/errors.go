package fusion

import "errors"

var (
	// ErrSingularJacobian is returned when the radar measurement function
	// cannot be linearized because the state is at the sensor origin.
	ErrSingularJacobian = errors.New("singular radar jacobian")

	// ErrSingularInnovationCovariance is returned when S = H·P·Hᵗ + R
	// cannot be inverted. The update is not applied.
	ErrSingularInnovationCovariance = errors.New("singular innovation covariance")

	// ErrNonFiniteUpdate is returned when the gain or covariance update
	// overflows. The update is not applied.
	ErrNonFiniteUpdate = errors.New("update produced non-finite state")

	// ErrStaleTimestamp marks a measurement that arrived more than the
	// configured max dt after the previous one.
	ErrStaleTimestamp = errors.New("stale timestamp")

	ErrOutOfOrder         = errors.New("measurement out of order")
	ErrUnknownSensor      = errors.New("unknown sensor type")
	ErrInvalidMeasurement = errors.New("invalid measurement")
	ErrInvalidState       = errors.New("invalid state vector")
	ErrInvalidConfig      = errors.New("invalid configuration")
)
