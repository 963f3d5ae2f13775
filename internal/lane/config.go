package lane

import (
	"errors"
	"fmt"
)

// StabilityGate bounds how far a candidate may drift from the previous
// frame's attempt before it is rejected.
type StabilityGate struct {
	MaxLengthDeltaSq float64 `mapstructure:"max_length_delta_sq" yaml:"max_length_delta_sq" json:"max_length_delta_sq"`
	MaxAngleDelta    float64 `mapstructure:"max_angle_delta" yaml:"max_angle_delta" json:"max_angle_delta"`
}

// Config holds the selection thresholds.
type Config struct {
	CenterMargin         float64       `mapstructure:"center_margin" yaml:"center_margin" json:"center_margin"`                         // exclusion band around the frame center, px
	OrientationTolerance float64       `mapstructure:"orientation_tolerance" yaml:"orientation_tolerance" json:"orientation_tolerance"` // max deviation from vertical, rad
	MinLeftLength        float64       `mapstructure:"min_left_length" yaml:"min_left_length" json:"min_left_length"`                   // px
	MaxParallelism       float64       `mapstructure:"max_parallelism" yaml:"max_parallelism" json:"max_parallelism"`
	LeftStability        StabilityGate `mapstructure:"left_stability" yaml:"left_stability" json:"left_stability"`
	RightStability       StabilityGate `mapstructure:"right_stability" yaml:"right_stability" json:"right_stability"`
}

// DefaultConfig returns the thresholds tuned for forward-facing road footage.
// The right boundary is noisier in that footage, so its stability gate is far
// looser than the left one.
func DefaultConfig() Config {
	return Config{
		CenterMargin:         40,
		OrientationTolerance: 1.0,
		MinLeftLength:        110,
		MaxParallelism:       0.8,
		LeftStability:        StabilityGate{MaxLengthDeltaSq: 500, MaxAngleDelta: 0.6},
		RightStability:       StabilityGate{MaxLengthDeltaSq: 160000, MaxAngleDelta: 5.0},
	}
}

// Validate checks the thresholds for values that would disable selection entirely.
func (c Config) Validate() error {
	if c.CenterMargin < 0 {
		return fmt.Errorf("center margin must be non-negative, got %g", c.CenterMargin)
	}
	if c.OrientationTolerance <= 0 {
		return fmt.Errorf("orientation tolerance must be positive, got %g", c.OrientationTolerance)
	}
	if c.MinLeftLength < 0 {
		return fmt.Errorf("min left length must be non-negative, got %g", c.MinLeftLength)
	}
	if c.MaxParallelism <= 0 {
		return fmt.Errorf("max parallelism must be positive, got %g", c.MaxParallelism)
	}
	for name, g := range map[string]StabilityGate{"left": c.LeftStability, "right": c.RightStability} {
		if g.MaxLengthDeltaSq <= 0 || g.MaxAngleDelta <= 0 {
			return fmt.Errorf("%s stability gate: %w", name, errInvalidGate)
		}
	}
	return nil
}

var errInvalidGate = errors.New("bounds must be positive")
