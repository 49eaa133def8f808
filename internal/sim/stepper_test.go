package sim

import (
	"math"
	"testing"
)

// Exponential decay dy/dt = -y has the exact solution y0 * exp(-t), which
// makes integrator accuracy easy to check.
func decay(_ float64, state, _ []float64) []float64 {
	return []float64{-state[0]}
}

func TestRK4MatchesAnalyticSolution(t *testing.T) {
	state := []float64{1.0}
	dt := 0.1
	for i := 0; i < 10; i++ {
		state = rk4Step(float64(i)*dt, dt, state, nil, decay)
	}
	want := math.Exp(-1.0)
	if math.Abs(state[0]-want) > 1e-6 {
		t.Errorf("y(1) = %.10f, want %.10f", state[0], want)
	}
}

func TestRK4OrderOfAccuracy(t *testing.T) {
	integrate := func(dt float64, steps int) float64 {
		state := []float64{1.0}
		for i := 0; i < steps; i++ {
			state = rk4Step(float64(i)*dt, dt, state, nil, decay)
		}
		return state[0]
	}

	exact := math.Exp(-1.0)
	errCoarse := math.Abs(integrate(0.1, 10) - exact)
	errFine := math.Abs(integrate(0.05, 20) - exact)

	// Halving dt should cut the error by roughly 2^4 for a fourth-order
	// scheme. Generous bounds absorb rounding noise.
	ratio := errCoarse / errFine
	if ratio < 12.0 || ratio > 20.0 {
		t.Errorf("error ratio = %.2f, want an RK4-like ratio in [12, 20]", ratio)
	}
}

func TestRK4DoesNotMutateArguments(t *testing.T) {
	state := []float64{2.0}
	inputs := []float64{1.0, 0.5}
	rk4Step(0, 0.1, state, inputs, func(_ float64, s, u []float64) []float64 {
		return []float64{s[0] * u[0]}
	})
	if state[0] != 2.0 {
		t.Errorf("state mutated to %g", state[0])
	}
	if inputs[0] != 1.0 || inputs[1] != 0.5 {
		t.Errorf("inputs mutated to %v", inputs)
	}
}

func TestRK4ZeroDerivativeFixedPoint(t *testing.T) {
	state := []float64{2.5}
	next := rk4Step(0, 1.0, state, nil, func(_ float64, s, _ []float64) []float64 {
		return []float64{0}
	})
	if next[0] != 2.5 {
		t.Errorf("fixed point drifted: %g", next[0])
	}
}
