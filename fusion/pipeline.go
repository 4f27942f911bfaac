package fusion

import (
	"errors"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// FusionPipeline fuses laser and radar measurements of a single object into
// one constant-velocity EKF.
//
// A FusionPipeline is not safe for concurrent use; callers that share one
// across goroutines must serialize Process calls.
type FusionPipeline struct {
	cfg Config
	ekf *KalmanFilter

	initialized bool
	lastTS      int64

	hLaser *mat.Dense
	rLaser *mat.Dense
	rRadar *mat.Dense

	lastSensor SensorType
}

// NewFusionPipeline validates cfg and returns an uninitialized pipeline.
func NewFusionPipeline(cfg Config) (*FusionPipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ekf := NewKalmanFilter()
	ekf.JacobianEpsilon = cfg.JacobianEpsilon
	p := &FusionPipeline{
		cfg: cfg,
		ekf: ekf,
		hLaser: mat.NewDense(LaserDim, StateDim, []float64{
			1, 0, 0, 0,
			0, 1, 0, 0,
		}),
		rLaser: diag(cfg.LaserVar[:]...),
		rRadar: diag(cfg.RadarVar[:]...),
	}
	p.resetState()
	return p, nil
}

func (p *FusionPipeline) resetState() {
	p.ekf.X = mat.NewVecDense(StateDim, nil)
	p.ekf.P = diag(p.cfg.InitPosVar, p.cfg.InitPosVar, p.cfg.InitVelVar, p.cfg.InitVelVar)
	p.ekf.F = identity(StateDim)
	p.ekf.Q = mat.NewDense(StateDim, StateDim, nil)
	p.ekf.H = nil
	p.ekf.R = nil
}

// Reset returns the pipeline to the uninitialized state. The next measurement
// seeds the filter.
func (p *FusionPipeline) Reset() {
	p.initialized = false
	p.lastSensor = 0
	p.resetState()
}

// Process runs one fusion cycle for m.
//
// The first measurement (or the first after a reset) seeds the state. Later
// measurements predict over the elapsed time and apply the sensor update. A
// radar update at the sensor origin is skipped (OutcomeUpdateSkipped). A gap
// larger than Config.MaxDt discards m and resets the filter (OutcomeReset).
// A non-nil error is only returned together with OutcomeRejected or, for a
// singular innovation covariance, after the prediction has been applied.
func (p *FusionPipeline) Process(m Measurement) (Outcome, error) {
	if err := m.Validate(); err != nil {
		return OutcomeRejected, err
	}

	if !p.initialized {
		p.seed(m)
		return OutcomeInitialized, nil
	}

	dt := float64(m.Timestamp-p.lastTS) / MicrosPerSecond
	if dt < 0 {
		return OutcomeRejected, fmt.Errorf("%w: timestamp %d before %d", ErrOutOfOrder, m.Timestamp, p.lastTS)
	}
	if dt > p.cfg.MaxDt {
		log.WithFields(log.Fields{
			"dt":     dt,
			"max_dt": p.cfg.MaxDt,
			"ts":     m.Timestamp,
		}).Warnf("%v, resetting filter", ErrStaleTimestamp)
		p.Reset()
		return OutcomeReset, nil
	}
	p.lastTS = m.Timestamp

	p.ekf.F = transition(dt)
	p.ekf.Q = processNoise(dt, p.cfg.NoiseAX, p.cfg.NoiseAY)
	p.ekf.Predict()

	z := mat.NewVecDense(len(m.Raw), append([]float64(nil), m.Raw...))
	switch m.Sensor {
	case Radar:
		hj, err := CalculateJacobian(p.ekf.X, p.cfg.JacobianEpsilon)
		if errors.Is(err, ErrSingularJacobian) {
			log.WithFields(log.Fields{
				"ts": m.Timestamp,
				"px": p.ekf.X.AtVec(0),
				"py": p.ekf.X.AtVec(1),
			}).Debug("invalid jacobian, skipping radar update")
			return OutcomeUpdateSkipped, nil
		}
		if err != nil {
			return OutcomeRejected, err
		}
		p.ekf.H = hj
		p.ekf.R = p.rRadar
		if err := p.ekf.UpdateEKF(z); err != nil {
			return OutcomeUpdateSkipped, fmt.Errorf("radar update at %d: %w", m.Timestamp, err)
		}
	case Laser:
		p.ekf.H = p.hLaser
		p.ekf.R = p.rLaser
		if err := p.ekf.Update(z); err != nil {
			return OutcomeUpdateSkipped, fmt.Errorf("laser update at %d: %w", m.Timestamp, err)
		}
	}
	p.lastSensor = m.Sensor
	return OutcomeUpdated, nil
}

// seed initializes the state from the first measurement. Radar range rate is
// projected along the bearing, which is exact only for radial motion.
func (p *FusionPipeline) seed(m Measurement) {
	p.resetState()
	switch m.Sensor {
	case Radar:
		rho, theta, rhoDot := m.Raw[0], m.Raw[1], m.Raw[2]
		cos, sin := math.Cos(theta), math.Sin(theta)
		p.ekf.X.SetVec(0, rho*cos)
		p.ekf.X.SetVec(1, rho*sin)
		p.ekf.X.SetVec(2, rhoDot*cos)
		p.ekf.X.SetVec(3, rhoDot*sin)
	case Laser:
		p.ekf.X.SetVec(0, m.Raw[0])
		p.ekf.X.SetVec(1, m.Raw[1])
	}
	p.lastTS = m.Timestamp
	p.initialized = true
	p.lastSensor = 0
	log.WithFields(log.Fields{
		"sensor": m.Sensor,
		"ts":     m.Timestamp,
	}).Debug("filter initialized")
}

// Initialized reports whether the state has been seeded.
func (p *FusionPipeline) Initialized() bool {
	return p.initialized
}

// LastTimestamp returns the timestamp of the last measurement that advanced
// the filter.
func (p *FusionPipeline) LastTimestamp() int64 {
	return p.lastTS
}

// State returns a copy of the state vector.
func (p *FusionPipeline) State() *mat.VecDense {
	return mat.VecDenseCopyOf(p.ekf.X)
}

// Covariance returns a copy of the state covariance.
func (p *FusionPipeline) Covariance() *mat.Dense {
	return mat.DenseCopyOf(p.ekf.P)
}

// Estimate returns the current state as a value.
func (p *FusionPipeline) Estimate() Estimate {
	return Estimate{
		Timestamp: p.lastTS,
		PX:        p.ekf.X.AtVec(0),
		PY:        p.ekf.X.AtVec(1),
		VX:        p.ekf.X.AtVec(2),
		VY:        p.ekf.X.AtVec(3),
	}
}

// LastNIS returns the normalized innovation squared of the last applied
// update and the sensor it came from. ok is false until an update has run
// since the last seeding.
func (p *FusionPipeline) LastNIS() (nis float64, sensor SensorType, ok bool) {
	if p.lastSensor == 0 {
		return 0, 0, false
	}
	return p.ekf.NIS(), p.lastSensor, true
}
