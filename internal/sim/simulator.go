// Package sim implements the tank simulation engine: a fixed-step
// integrator driving the tank model under a bank of PID control loops.
//
// A Simulator is a synchronous state machine. Every operation runs to
// completion before returning and no operation blocks; the owner is
// responsible for serializing mutating calls against reads that need a
// consistent snapshot.
package sim

import (
	"github.com/tanksim/tankd/internal/pid"
	"github.com/tanksim/tankd/internal/tank"
)

// Simulator advances a tank process through fixed time steps. Construct
// with New; the zero value is not usable.
type Simulator struct {
	cfg Config

	time   float64
	state  []float64
	inputs []float64

	// Loops run in configuration order each step, before integration.
	controllers []*pid.Controller
	setpoints   []float64
}

// New validates cfg and builds a simulator at time zero. The config is
// deep-copied; later mutation of the caller's slices does not affect the
// simulator or its reset baseline.
func New(cfg Config) (*Simulator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.clone()

	s := &Simulator{
		cfg:    cfg,
		state:  append([]float64(nil), cfg.InitialState...),
		inputs: append([]float64(nil), cfg.InitialInputs...),
	}
	for _, cc := range cfg.Controllers {
		s.controllers = append(s.controllers,
			pid.New(cc.Gains, cc.Bias, cc.MinOutput, cc.MaxOutput, cc.MaxIntegral))
		s.setpoints = append(s.setpoints, cc.InitialSetpoint)
	}
	return s, nil
}

// Config returns a copy of the validated configuration.
func (s *Simulator) Config() Config {
	return s.cfg.clone()
}

// Step advances the simulation by one fixed step: every controller reads
// the pre-step state and writes its clamped output into the input vector
// (last write wins on a shared output index), then the tank model is
// integrated forward by dt, then time advances. Step never fails under a
// validated configuration.
func (s *Simulator) Step() {
	for i, c := range s.controllers {
		cc := s.cfg.Controllers[i]
		out := c.Update(s.state[cc.MeasuredIndex], s.setpoints[i], s.cfg.Dt)
		s.inputs[cc.OutputIndex] = out
	}

	s.state = rk4Step(s.time, s.cfg.Dt, s.state, s.inputs, s.derivatives)
	s.time += s.cfg.Dt
}

func (s *Simulator) derivatives(_ float64, state, inputs []float64) []float64 {
	return []float64{s.cfg.Tank.Derivative(
		state[0],
		inputs[tank.InputInletFlow],
		inputs[tank.InputValvePosition],
	)}
}

// Reset returns the simulator to its construction-time snapshot: time
// zero, initial state and inputs, and every loop's integral accumulator,
// last error, last output, and setpoint restored.
func (s *Simulator) Reset() {
	s.time = 0
	copy(s.state, s.cfg.InitialState)
	copy(s.inputs, s.cfg.InitialInputs)
	for i, c := range s.controllers {
		c.Reset()
		c.SetGains(s.cfg.Controllers[i].Gains)
		s.setpoints[i] = s.cfg.Controllers[i].InitialSetpoint
	}
}

// Time returns the current simulation time in seconds.
func (s *Simulator) Time() float64 {
	return s.time
}

// State returns a copy of the current state vector.
func (s *Simulator) State() []float64 {
	return append([]float64(nil), s.state...)
}

// Inputs returns a copy of the current input vector.
func (s *Simulator) Inputs() []float64 {
	return append([]float64(nil), s.inputs...)
}

// ControllerCount returns the number of configured loops.
func (s *Simulator) ControllerCount() int {
	return len(s.controllers)
}

// SetInput overwrites one entry of the input vector directly, for manual
// operation or disturbance injection. A controller bound to the same index
// overwrites it again on the next Step.
func (s *Simulator) SetInput(index int, value float64) error {
	if index < 0 || index >= len(s.inputs) {
		return indexErrorf("input", index, len(s.inputs))
	}
	s.inputs[index] = value
	return nil
}

// Setpoint returns controller index's current setpoint.
func (s *Simulator) Setpoint(index int) (float64, error) {
	if err := s.checkController(index); err != nil {
		return 0, err
	}
	return s.setpoints[index], nil
}

// SetSetpoint replaces controller index's setpoint.
func (s *Simulator) SetSetpoint(index int, value float64) error {
	if err := s.checkController(index); err != nil {
		return err
	}
	s.setpoints[index] = value
	return nil
}

// ControllerOutput returns controller index's last clamped output.
func (s *Simulator) ControllerOutput(index int) (float64, error) {
	if err := s.checkController(index); err != nil {
		return 0, err
	}
	return s.controllers[index].LastOutput(), nil
}

// LoopError returns controller index's error from the most recent step.
func (s *Simulator) LoopError(index int) (float64, error) {
	if err := s.checkController(index); err != nil {
		return 0, err
	}
	return s.controllers[index].LastError(), nil
}

// ControllerGains returns controller index's current gains.
func (s *Simulator) ControllerGains(index int) (pid.Gains, error) {
	if err := s.checkController(index); err != nil {
		return pid.Gains{}, err
	}
	return s.controllers[index].Gains(), nil
}

// SetControllerGains retunes controller index without disturbing its
// integral accumulator.
func (s *Simulator) SetControllerGains(index int, gains pid.Gains) error {
	if err := s.checkController(index); err != nil {
		return err
	}
	s.controllers[index].SetGains(gains)
	return nil
}

func (s *Simulator) checkController(index int) error {
	if index < 0 || index >= len(s.controllers) {
		return indexErrorf("controller", index, len(s.controllers))
	}
	return nil
}
