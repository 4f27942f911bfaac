package fusion

// Filter constants. These are the defaults carried by DefaultConfig.
const (
	// StateDim is the length of the state vector [px, py, vx, vy].
	StateDim = 4
	// LaserDim is the length of a laser measurement [px, py].
	LaserDim = 2
	// RadarDim is the length of a radar measurement [rho, theta, rho_dot].
	RadarDim = 3

	// NoiseAX and NoiseAY are the acceleration noise intensities (m²/s⁴)
	// of the constant-velocity process model.
	NoiseAX = 9.0
	NoiseAY = 9.0

	// Laser measurement noise variances (m²).
	LaserVarPX = 0.0225
	LaserVarPY = 0.0225

	// Radar measurement noise variances: range (m²), bearing (rad²),
	// range rate (m²/s²).
	RadarVarRho    = 0.09
	RadarVarTheta  = 0.0009
	RadarVarRhoDot = 0.09

	// MaxDt is the largest gap in seconds between two measurements that
	// is still propagated. Larger gaps reset the filter.
	MaxDt = 60.0

	// JacobianEpsilon is the squared range below which the radar
	// Jacobian is considered undefined.
	JacobianEpsilon = 1e-4

	// Prior variances used when the state is seeded.
	InitPosVar = 1.0
	InitVelVar = 1000.0

	// MicrosPerSecond converts measurement timestamps to seconds.
	MicrosPerSecond = 1e6
)
