package fusion

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the noise model and sanity bounds of the filter.
// Fields omitted from a YAML file keep their defaults.
type Config struct {
	NoiseAX float64 `yaml:"noise_ax"`
	NoiseAY float64 `yaml:"noise_ay"`

	// LaserVar is the diagonal of the laser measurement covariance.
	LaserVar [LaserDim]float64 `yaml:"laser_var,flow"`
	// RadarVar is the diagonal of the radar measurement covariance.
	RadarVar [RadarDim]float64 `yaml:"radar_var,flow"`

	MaxDt           float64 `yaml:"max_dt"` // seconds
	JacobianEpsilon float64 `yaml:"jacobian_epsilon"`

	InitPosVar float64 `yaml:"init_pos_var"`
	InitVelVar float64 `yaml:"init_vel_var"`
}

// DefaultConfig returns the configuration built from the package constants.
func DefaultConfig() Config {
	return Config{
		NoiseAX:         NoiseAX,
		NoiseAY:         NoiseAY,
		LaserVar:        [LaserDim]float64{LaserVarPX, LaserVarPY},
		RadarVar:        [RadarDim]float64{RadarVarRho, RadarVarTheta, RadarVarRhoDot},
		MaxDt:           MaxDt,
		JacobianEpsilon: JacobianEpsilon,
		InitPosVar:      InitPosVar,
		InitVelVar:      InitVelVar,
	}
}

// Validate rejects non-finite values and non-positive variances and bounds.
func (c Config) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"noise_ax", c.NoiseAX},
		{"noise_ay", c.NoiseAY},
		{"laser_var[0]", c.LaserVar[0]},
		{"laser_var[1]", c.LaserVar[1]},
		{"radar_var[0]", c.RadarVar[0]},
		{"radar_var[1]", c.RadarVar[1]},
		{"radar_var[2]", c.RadarVar[2]},
		{"max_dt", c.MaxDt},
		{"jacobian_epsilon", c.JacobianEpsilon},
		{"init_pos_var", c.InitPosVar},
		{"init_vel_var", c.InitVelVar},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s=%g must be finite", ErrInvalidConfig, f.name, f.v)
		}
	}
	if c.NoiseAX < 0 || c.NoiseAY < 0 {
		return fmt.Errorf("%w: process noise must be non-negative (ax=%g, ay=%g)", ErrInvalidConfig, c.NoiseAX, c.NoiseAY)
	}
	for i, v := range c.LaserVar {
		if v <= 0 {
			return fmt.Errorf("%w: laser_var[%d]=%g must be positive", ErrInvalidConfig, i, v)
		}
	}
	for i, v := range c.RadarVar {
		if v <= 0 {
			return fmt.Errorf("%w: radar_var[%d]=%g must be positive", ErrInvalidConfig, i, v)
		}
	}
	if c.MaxDt <= 0 {
		return fmt.Errorf("%w: max_dt=%g must be positive", ErrInvalidConfig, c.MaxDt)
	}
	if c.JacobianEpsilon <= 0 {
		return fmt.Errorf("%w: jacobian_epsilon=%g must be positive", ErrInvalidConfig, c.JacobianEpsilon)
	}
	if c.InitPosVar <= 0 || c.InitVelVar <= 0 {
		return fmt.Errorf("%w: prior variances must be positive (pos=%g, vel=%g)", ErrInvalidConfig, c.InitPosVar, c.InitVelVar)
	}
	return nil
}

// LoadConfig reads a YAML file on top of DefaultConfig and validates it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	cleanPath := filepath.Clean(path)
	switch ext := filepath.Ext(cleanPath); ext {
	case ".yaml", ".yml":
	default:
		return cfg, fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
