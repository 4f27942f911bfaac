package fusion

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// KalmanFilter holds the filter state and the model matrices of one cycle.
//
// F and Q are refreshed by the caller before Predict. H and R are set by the
// caller before Update or UpdateEKF and are not kept across cycles.
type KalmanFilter struct {
	X *mat.VecDense // state [px, py, vx, vy]
	P *mat.Dense    // state covariance
	F *mat.Dense    // state transition
	Q *mat.Dense    // process noise covariance
	H *mat.Dense    // measurement matrix or radar Jacobian
	R *mat.Dense    // measurement covariance

	// JacobianEpsilon guards h(x) in UpdateEKF.
	JacobianEpsilon float64

	nis float64
}

// NewKalmanFilter returns a filter with a zero state, identity covariance and
// transition, and zero process noise.
func NewKalmanFilter() *KalmanFilter {
	return &KalmanFilter{
		X:               mat.NewVecDense(StateDim, nil),
		P:               identity(StateDim),
		F:               identity(StateDim),
		Q:               mat.NewDense(StateDim, StateDim, nil),
		JacobianEpsilon: JacobianEpsilon,
	}
}

// Predict propagates the state and covariance through the linear model:
// x = F·x, P = F·P·Fᵗ + Q.
func (k *KalmanFilter) Predict() {
	x := mat.NewVecDense(k.X.Len(), nil)
	x.MulVec(k.F, k.X)
	k.X = x

	var fp mat.Dense
	fp.Mul(k.F, k.P)
	p := mat.NewDense(k.X.Len(), k.X.Len(), nil)
	p.Mul(&fp, k.F.T())
	p.Add(p, k.Q)
	k.P = symmetrize(p)
}

// Update applies a linear measurement z with innovation y = z - H·x.
func (k *KalmanFilter) Update(z mat.Vector) error {
	if err := k.checkMeasurement(z); err != nil {
		return err
	}
	hx := mat.NewVecDense(z.Len(), nil)
	hx.MulVec(k.H, k.X)
	y := mat.NewVecDense(z.Len(), nil)
	y.SubVec(z, hx)
	return k.correct(y)
}

// UpdateEKF applies a radar measurement z = [rho, theta, rho_dot] with
// innovation y = z - h(x). H must hold the Jacobian evaluated at the current
// (pre-update) state. The bearing residual is wrapped into (-π, π].
func (k *KalmanFilter) UpdateEKF(z mat.Vector) error {
	if err := k.checkMeasurement(z); err != nil {
		return err
	}
	if z.Len() != RadarDim {
		return fmt.Errorf("%w: radar update expects %d values, got %d", ErrInvalidMeasurement, RadarDim, z.Len())
	}
	hx, err := RadarMeasurement(k.X, k.JacobianEpsilon)
	if err != nil {
		return err
	}
	y := mat.NewVecDense(RadarDim, nil)
	y.SubVec(z, hx)
	y.SetVec(1, NormalizeAngle(y.AtVec(1)))
	return k.correct(y)
}

// NIS returns the normalized innovation squared yᵗ·S⁻¹·y of the last
// successful update.
func (k *KalmanFilter) NIS() float64 {
	return k.nis
}

func (k *KalmanFilter) checkMeasurement(z mat.Vector) error {
	if k.H == nil || k.R == nil {
		return fmt.Errorf("%w: measurement model not set", ErrInvalidMeasurement)
	}
	rows, cols := k.H.Dims()
	if cols != k.X.Len() || z == nil || z.Len() != rows {
		return fmt.Errorf("%w: H is %dx%d, state has %d entries", ErrInvalidMeasurement, rows, cols, k.X.Len())
	}
	if rr, rc := k.R.Dims(); rr != rows || rc != rows {
		return fmt.Errorf("%w: R is %dx%d, want %dx%d", ErrInvalidMeasurement, rr, rc, rows, rows)
	}
	return nil
}

// correct runs the gain and covariance update shared by both measurement
// paths. State is only committed when every result is finite.
func (k *KalmanFilter) correct(y *mat.VecDense) error {
	n := k.X.Len()
	m := y.Len()

	pht := mat.NewDense(n, m, nil)
	pht.Mul(k.P, k.H.T())

	s := mat.NewDense(m, m, nil)
	s.Mul(k.H, pht)
	s.Add(s, k.R)

	var si mat.Dense
	if err := si.Inverse(s); err != nil {
		return fmt.Errorf("%w: %v", ErrSingularInnovationCovariance, err)
	}

	gain := mat.NewDense(n, m, nil)
	gain.Mul(pht, &si)

	x := mat.NewVecDense(n, nil)
	x.MulVec(gain, y)
	x.AddVec(k.X, x)

	ikh := identity(n)
	var kh mat.Dense
	kh.Mul(gain, k.H)
	ikh.Sub(ikh, &kh)
	p := mat.NewDense(n, n, nil)
	p.Mul(ikh, k.P)

	if !allFinite(x) || !allFiniteMat(p) {
		return ErrNonFiniteUpdate
	}

	k.X = x
	k.P = symmetrize(p)
	k.nis = mat.Inner(y, &si, y)
	return nil
}
