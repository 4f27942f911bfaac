package fusion

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func diag(values ...float64) *mat.Dense {
	n := len(values)
	m := mat.NewDense(n, n, nil)
	for i, v := range values {
		m.Set(i, i, v)
	}
	return m
}

// symmetrize returns (a + aᵗ)/2.
func symmetrize(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	return out
}

// transition returns the constant-velocity transition for a step of dt seconds.
func transition(dt float64) *mat.Dense {
	f := identity(StateDim)
	f.Set(0, 2, dt)
	f.Set(1, 3, dt)
	return f
}

// processNoise returns the constant-velocity process covariance driven by
// white acceleration with intensities ax and ay.
func processNoise(dt, ax, ay float64) *mat.Dense {
	dt2 := dt * dt
	dt3 := dt2 * dt
	dt4 := dt3 * dt
	return mat.NewDense(StateDim, StateDim, []float64{
		dt4 / 4 * ax, 0, dt3 / 2 * ax, 0,
		0, dt4 / 4 * ay, 0, dt3 / 2 * ay,
		dt3 / 2 * ax, 0, dt2 * ax, 0,
		0, dt3 / 2 * ay, 0, dt2 * ay,
	})
}

func allFinite(v mat.Vector) bool {
	for i := 0; i < v.Len(); i++ {
		x := v.AtVec(i)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func allFiniteMat(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			x := m.At(i, j)
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return false
			}
		}
	}
	return true
}
