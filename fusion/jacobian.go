package fusion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

func stateComponents(x mat.Vector) (px, py, vx, vy float64, err error) {
	if x == nil || x.Len() != StateDim {
		return 0, 0, 0, 0, ErrInvalidState
	}
	return x.AtVec(0), x.AtVec(1), x.AtVec(2), x.AtVec(3), nil
}

// CalculateJacobian returns the 3x4 Jacobian of the radar measurement
// function h(x) = [rho, theta, rho_dot] evaluated at x.
//
// It fails with ErrSingularJacobian when px²+py² < eps; the caller must not
// apply a radar update in that case.
func CalculateJacobian(x mat.Vector, eps float64) (*mat.Dense, error) {
	px, py, vx, vy, err := stateComponents(x)
	if err != nil {
		return nil, err
	}

	c1 := px*px + py*py
	if c1 < eps {
		return nil, fmt.Errorf("%w: px²+py²=%g below %g", ErrSingularJacobian, c1, eps)
	}
	c2 := math.Sqrt(c1)
	c3 := c1 * c2

	return mat.NewDense(RadarDim, StateDim, []float64{
		px / c2, py / c2, 0, 0,
		-py / c1, px / c1, 0, 0,
		py * (vx*py - vy*px) / c3, px * (vy*px - vx*py) / c3, px / c2, py / c2,
	}), nil
}

// RadarMeasurement evaluates h(x): range, bearing and range rate of the
// state as seen from the sensor origin.
func RadarMeasurement(x mat.Vector, eps float64) (*mat.VecDense, error) {
	px, py, vx, vy, err := stateComponents(x)
	if err != nil {
		return nil, err
	}
	if px*px+py*py < eps {
		return nil, fmt.Errorf("%w: px²+py²=%g below %g", ErrSingularJacobian, px*px+py*py, eps)
	}
	rho := math.Hypot(px, py)
	return mat.NewVecDense(RadarDim, []float64{
		rho,
		math.Atan2(py, px),
		(px*vx + py*vy) / rho,
	}), nil
}

// NormalizeAngle maps a into (-π, π].
func NormalizeAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return a
	}
	a = math.Mod(a, 2*math.Pi)
	if a > math.Pi {
		a -= 2 * math.Pi
	} else if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
