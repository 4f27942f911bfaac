// Package eval scores filter estimates against ground truth.
package eval

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"ekf-go/fusion"
)

var (
	ErrEmpty          = errors.New("no estimates to score")
	ErrLengthMismatch = errors.New("estimate and ground truth lengths differ")
)

// Error holds the per-component root mean squared error.
type Error struct {
	PX, PY, VX, VY float64
}

func (e Error) String() string {
	return fmt.Sprintf("px=%.4f py=%.4f vx=%.4f vy=%.4f", e.PX, e.PY, e.VX, e.VY)
}

// Within reports whether every component is at or below the matching
// component of limit.
func (e Error) Within(limit Error) bool {
	return e.PX <= limit.PX && e.PY <= limit.PY && e.VX <= limit.VX && e.VY <= limit.VY
}

// RMSE compares est[i] against truth[i] component by component.
func RMSE(est, truth []fusion.Estimate) (Error, error) {
	if len(est) == 0 {
		return Error{}, ErrEmpty
	}
	if len(est) != len(truth) {
		return Error{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(est), len(truth))
	}

	n := len(est)
	cols := func(es []fusion.Estimate) [4][]float64 {
		var c [4][]float64
		for i := range c {
			c[i] = make([]float64, n)
		}
		for i, e := range es {
			c[0][i], c[1][i], c[2][i], c[3][i] = e.PX, e.PY, e.VX, e.VY
		}
		return c
	}
	a, b := cols(est), cols(truth)

	var out [4]float64
	for i := range out {
		d := floats.SubTo(make([]float64, n), a[i], b[i])
		out[i] = math.Sqrt(floats.Dot(d, d) / float64(n))
	}
	return Error{PX: out[0], PY: out[1], VX: out[2], VY: out[3]}, nil
}
