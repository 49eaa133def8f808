package sim

import (
	"github.com/tanksim/tankd/internal/pid"
	"github.com/tanksim/tankd/internal/tank"
)

// Integration step bounds. Steps below MinDt invite floating-point noise;
// steps above MaxDt are too coarse for the tank time constants.
const (
	MinDt = 0.001
	MaxDt = 10.0
)

// ControllerConfig is one feedback loop's full configuration.
type ControllerConfig struct {
	Gains pid.Gains `json:"gains" yaml:"gains"`
	// Bias is the output offset added before clamping.
	Bias      float64 `json:"bias" yaml:"bias"`
	MinOutput float64 `json:"min_output" yaml:"min_output"`
	MaxOutput float64 `json:"max_output" yaml:"max_output"`
	// MaxIntegral is the anti-windup clamp magnitude on the integral
	// accumulator.
	MaxIntegral float64 `json:"max_integral" yaml:"max_integral"`
	// MeasuredIndex selects the state variable this loop observes.
	MeasuredIndex int `json:"measured_index" yaml:"measured_index"`
	// OutputIndex selects the input this loop drives.
	OutputIndex     int     `json:"output_index" yaml:"output_index"`
	InitialSetpoint float64 `json:"initial_setpoint" yaml:"initial_setpoint"`
}

// Config is the complete, validated-at-construction description of a
// simulation run.
type Config struct {
	Tank tank.Params `json:"tank" yaml:"tank"`
	// Controllers run in order each step. Empty means open-loop mode.
	Controllers   []ControllerConfig `json:"controllers" yaml:"controllers"`
	InitialState  []float64          `json:"initial_state" yaml:"initial_state"`
	InitialInputs []float64          `json:"initial_inputs" yaml:"initial_inputs"`
	// Dt is the fixed integration step in seconds, within [MinDt, MaxDt].
	Dt float64 `json:"dt" yaml:"dt"`
}

// validate enforces the construction invariants. It returns the first
// violation found as a *ConfigError.
func (c Config) validate() error {
	if err := c.Tank.Validate(); err != nil {
		return configErrorf("tank", "%v", err)
	}
	if len(c.InitialState) == 0 {
		return configErrorf("initial_state", "must not be empty")
	}
	if len(c.InitialState) != tank.StateSize {
		return configErrorf("initial_state", "length %d does not match tank state size %d",
			len(c.InitialState), tank.StateSize)
	}
	if len(c.InitialInputs) != tank.InputSize {
		return configErrorf("initial_inputs", "length %d does not match tank input size %d",
			len(c.InitialInputs), tank.InputSize)
	}
	if c.Dt <= 0 {
		// Negative and zero steps are rejected outright: a run must fail
		// fast at construction rather than integrate backwards.
		return configErrorf("dt", "must be positive, got %g", c.Dt)
	}
	if c.Dt < MinDt || c.Dt > MaxDt {
		return configErrorf("dt", "%g outside [%g, %g] seconds", c.Dt, MinDt, MaxDt)
	}
	for i, ctrl := range c.Controllers {
		if ctrl.MeasuredIndex < 0 || ctrl.MeasuredIndex >= len(c.InitialState) {
			return configErrorf("controllers", "controller %d measured_index %d out of range for state size %d",
				i, ctrl.MeasuredIndex, len(c.InitialState))
		}
		if ctrl.OutputIndex < 0 || ctrl.OutputIndex >= len(c.InitialInputs) {
			return configErrorf("controllers", "controller %d output_index %d out of range for input size %d",
				i, ctrl.OutputIndex, len(c.InitialInputs))
		}
		if ctrl.MinOutput >= ctrl.MaxOutput {
			return configErrorf("controllers", "controller %d min_output %g must be below max_output %g",
				i, ctrl.MinOutput, ctrl.MaxOutput)
		}
		if ctrl.MaxIntegral < 0 {
			return configErrorf("controllers", "controller %d max_integral %g must be non-negative",
				i, ctrl.MaxIntegral)
		}
		if ctrl.Gains.TauI < 0 {
			return configErrorf("controllers", "controller %d tau_i %g must be non-negative",
				i, ctrl.Gains.TauI)
		}
		if ctrl.Gains.TauD < 0 {
			return configErrorf("controllers", "controller %d tau_d %g must be non-negative",
				i, ctrl.Gains.TauD)
		}
	}
	return nil
}

// clone deep-copies the config so the simulator's retained copy cannot be
// mutated through the caller's slices.
func (c Config) clone() Config {
	out := c
	out.Controllers = append([]ControllerConfig(nil), c.Controllers...)
	out.InitialState = append([]float64(nil), c.InitialState...)
	out.InitialInputs = append([]float64(nil), c.InitialInputs...)
	return out
}

// DefaultConfig returns the documented baseline configuration: the nominal
// tank at its balance point with one reverse-acting level controller on the
// outlet valve. Stepping it holds the level at 2.5 m indefinitely.
func DefaultConfig() Config {
	return Config{
		Tank: tank.Params{
			Area:             120.0,
			ValveCoefficient: 1.2649,
			MaxHeight:        5.0,
		},
		Controllers: []ControllerConfig{
			{
				Gains:           pid.Gains{Kc: -1.0, TauI: 10.0, TauD: 1.0},
				Bias:            0.5,
				MinOutput:       0.0,
				MaxOutput:       1.0,
				MaxIntegral:     10.0,
				MeasuredIndex:   0,
				OutputIndex:     tank.InputValvePosition,
				InitialSetpoint: 2.5,
			},
		},
		InitialState:  []float64{2.5},
		InitialInputs: []float64{1.0, 0.5},
		Dt:            1.0,
	}
}
