// Package tank implements the gravity-drained tank process model.
//
// The tank is a single-state system: liquid level L in meters. Two inputs
// drive it: the inlet volumetric flow q_in (m³/s) and the outlet valve
// position v, normalized to [0, 1]. Outlet flow follows the valve equation
// q_out = kv * v * sqrt(L), giving the material balance
//
//	dL/dt = (q_in - kv * v * sqrt(L)) / area
//
// The model is a pure function of its arguments and keeps no state.
package tank

import (
	"fmt"
	"math"
)

// Fixed arity of the tank model.
const (
	StateSize = 1
	InputSize = 2
)

// Indices into the input vector.
const (
	InputInletFlow     = 0
	InputValvePosition = 1
)

// Params holds the physical constants of the tank, fixed for a run.
type Params struct {
	// Area is the tank cross-sectional area in m².
	Area float64 `json:"area" yaml:"area"`
	// ValveCoefficient relates valve opening and hydraulic head to outlet
	// flow: q_out = kv * v * sqrt(L). Units m^2.5/s.
	ValveCoefficient float64 `json:"valve_coefficient" yaml:"valve_coefficient"`
	// MaxHeight is the physical ceiling of the tank in meters. It is
	// informational: the model does not clip the level to this bound.
	MaxHeight float64 `json:"max_height" yaml:"max_height"`
}

// Validate checks that all physical constants are strictly positive.
func (p Params) Validate() error {
	if p.Area <= 0 {
		return fmt.Errorf("tank: area must be positive, got %g", p.Area)
	}
	if p.ValveCoefficient <= 0 {
		return fmt.Errorf("tank: valve coefficient must be positive, got %g", p.ValveCoefficient)
	}
	if p.MaxHeight <= 0 {
		return fmt.Errorf("tank: max height must be positive, got %g", p.MaxHeight)
	}
	return nil
}

// Outflow returns the outlet flow for the given level and valve position.
// A non-positive level drains nothing; sqrt of a negative excursion would
// otherwise produce NaN.
func (p Params) Outflow(level, valvePos float64) float64 {
	if level <= 0 {
		return 0
	}
	return p.ValveCoefficient * valvePos * math.Sqrt(level)
}

// Derivative computes dL/dt from the current level and the two process
// inputs. The valve position is used as given; clamping it to [0, 1] is the
// controller's job, not the model's.
func (p Params) Derivative(level, inletFlow, valvePos float64) float64 {
	return (inletFlow - p.Outflow(level, valvePos)) / p.Area
}
