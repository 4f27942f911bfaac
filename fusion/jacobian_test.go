package fusion

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// radarH is h(x) in the form fd.Jacobian expects.
func radarH(y, x []float64) {
	px, py, vx, vy := x[0], x[1], x[2], x[3]
	rho := math.Hypot(px, py)
	y[0] = rho
	y[1] = math.Atan2(py, px)
	y[2] = (px*vx + py*vy) / rho
}

func TestCalculateJacobianMatchesFiniteDifference(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(7))

	states := [][]float64{
		{1, 1, 0.2, 0.4},
		{-3.5, 0.25, 5.2, -1.8},
		{0.02, -0.015, 10, 10},
		{12.0, -7.0, 0, 0},
	}
	for i := 0; i < 20; i++ {
		states = append(states, []float64{
			rnd.Float64()*40 - 20,
			rnd.Float64()*40 - 20,
			rnd.Float64()*20 - 10,
			rnd.Float64()*20 - 10,
		})
	}

	for _, s := range states {
		x := mat.NewVecDense(StateDim, append([]float64(nil), s...))
		if s[0]*s[0]+s[1]*s[1] < JacobianEpsilon {
			continue
		}
		hj, err := CalculateJacobian(x, JacobianEpsilon)
		require.NoError(t, err)

		want := mat.NewDense(RadarDim, StateDim, nil)
		fd.Jacobian(want, radarH, s, &fd.JacobianSettings{Formula: fd.Central})

		for r := 0; r < RadarDim; r++ {
			for c := 0; c < StateDim; c++ {
				tol := 1e-5 * math.Max(1, math.Abs(want.At(r, c)))
				assert.InDeltaf(t, want.At(r, c), hj.At(r, c), tol, "state %v entry (%d,%d)", s, r, c)
			}
		}
	}
}

func TestCalculateJacobianClosedForm(t *testing.T) {
	t.Parallel()
	x := mat.NewVecDense(StateDim, []float64{3, 4, 1, 2})
	hj, err := CalculateJacobian(x, JacobianEpsilon)
	require.NoError(t, err)

	// rho = 5, rho² = 25, rho³ = 125.
	want := mat.NewDense(RadarDim, StateDim, []float64{
		3.0 / 5, 4.0 / 5, 0, 0,
		-4.0 / 25, 3.0 / 25, 0, 0,
		4 * (1*4 - 2*3) / 125.0, 3 * (2*3 - 1*4) / 125.0, 3.0 / 5, 4.0 / 5,
	})
	assert.True(t, mat.EqualApprox(want, hj, 1e-12), "got\n%v", mat.Formatted(hj))
}

func TestCalculateJacobianSingular(t *testing.T) {
	t.Parallel()
	for _, s := range [][]float64{
		{0, 0, 1, 1},
		{0.005, 0.005, 3, -3},
		{-0.0099, 0, 0, 0},
	} {
		hj, err := CalculateJacobian(mat.NewVecDense(StateDim, s), JacobianEpsilon)
		assert.ErrorIs(t, err, ErrSingularJacobian, "state %v", s)
		assert.Nil(t, hj)
	}
}

func TestCalculateJacobianInvalidState(t *testing.T) {
	t.Parallel()
	_, err := CalculateJacobian(mat.NewVecDense(3, []float64{1, 2, 3}), JacobianEpsilon)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = CalculateJacobian(nil, JacobianEpsilon)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRadarMeasurement(t *testing.T) {
	t.Parallel()
	hx, err := RadarMeasurement(mat.NewVecDense(StateDim, []float64{0, 2, 1, 3}), JacobianEpsilon)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, hx.AtVec(0), 1e-12)
	assert.InDelta(t, math.Pi/2, hx.AtVec(1), 1e-12)
	assert.InDelta(t, 3.0, hx.AtVec(2), 1e-12)

	_, err = RadarMeasurement(mat.NewVecDense(StateDim, nil), JacobianEpsilon)
	assert.ErrorIs(t, err, ErrSingularJacobian)
}

func TestNormalizeAngle(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{2*math.Pi + 0.1, 0.1},
		{-2*math.Pi - 0.1, -0.1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, NormalizeAngle(tt.in), 1e-9, "NormalizeAngle(%v)", tt.in)
	}
}

func TestNormalizeAngleRange(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 10000; i++ {
		measured := rnd.Float64()*4*math.Pi - 2*math.Pi
		predicted := rnd.Float64()*4*math.Pi - 2*math.Pi
		got := NormalizeAngle(measured - predicted)
		if got <= -math.Pi || got > math.Pi {
			t.Fatalf("NormalizeAngle(%v - %v) = %v outside (-π, π]", measured, predicted, got)
		}
		// Same direction as the raw difference.
		assert.InDelta(t, math.Cos(measured-predicted), math.Cos(got), 1e-9)
		assert.InDelta(t, math.Sin(measured-predicted), math.Sin(got), 1e-9)
	}
}
