// Package pid implements a discrete PID controller with output saturation
// and anti-windup by integral clamping.
package pid

import "math"

// Gains holds the tunable parameters of one control loop.
//
// Kc carries the loop's acting direction: a negative Kc gives a
// reverse-acting loop whose output decreases as error increases. No sign
// constraint is imposed.
type Gains struct {
	// Kc is the proportional gain (dimensionless).
	Kc float64 `json:"kc" yaml:"kc"`
	// TauI is the integral time constant in seconds. Zero disables the
	// integral contribution entirely; the accumulator still tracks error
	// but contributes exactly zero to the output.
	TauI float64 `json:"tau_i" yaml:"tau_i"`
	// TauD is the derivative time constant in seconds. Zero disables
	// derivative action.
	TauD float64 `json:"tau_d" yaml:"tau_d"`
}

// Controller is one feedback loop. It keeps the integral accumulator, the
// last error, the last clamped output, and the last measured value between
// calls to Update. The zero value is not usable; use New.
type Controller struct {
	gains       Gains
	bias        float64
	minOutput   float64
	maxOutput   float64
	maxIntegral float64

	integral     float64
	lastError    float64
	lastOutput   float64
	lastMeasured float64
	primed       bool
}

// New constructs a controller. Bounds are not validated here; the simulator
// validates its controller configs before building controllers.
func New(gains Gains, bias, minOutput, maxOutput, maxIntegral float64) *Controller {
	return &Controller{
		gains:       gains,
		bias:        bias,
		minOutput:   minOutput,
		maxOutput:   maxOutput,
		maxIntegral: maxIntegral,
	}
}

// Update computes one bounded control move.
//
// The integral accumulator is advanced by error*dt and then clamped to
// ±maxIntegral before use: windup is prevented by clamping rather than by
// conditional integration. The derivative acts on the measured value, not
// the error, so a setpoint change does not kick the output; the first call
// after New or Reset has no previous measurement and uses a zero derivative.
func (c *Controller) Update(measured, setpoint, dt float64) float64 {
	err := setpoint - measured

	c.integral += err * dt
	c.integral = clamp(c.integral, -c.maxIntegral, c.maxIntegral)

	iTerm := 0.0
	if c.gains.TauI != 0 {
		iTerm = c.integral / c.gains.TauI
	}

	dTerm := 0.0
	if c.primed && dt != 0 {
		// d(error)/dt with a fixed setpoint equals -d(measured)/dt.
		dTerm = c.gains.TauD * (c.lastMeasured - measured) / dt
	}

	raw := c.bias + c.gains.Kc*(err+iTerm+dTerm)
	out := clamp(raw, c.minOutput, c.maxOutput)

	c.lastError = err
	c.lastOutput = out
	c.lastMeasured = measured
	c.primed = true
	return out
}

// SetGains replaces the loop gains without touching the integral
// accumulator, allowing bumpless retuning mid-run.
func (c *Controller) SetGains(g Gains) {
	c.gains = g
}

// Gains returns the current loop gains.
func (c *Controller) Gains() Gains {
	return c.gains
}

// SetOutputLimits replaces the saturation bounds.
func (c *Controller) SetOutputLimits(minOutput, maxOutput float64) {
	c.minOutput = minOutput
	c.maxOutput = maxOutput
}

// Reset clears the integral accumulator, last error, and last output, and
// re-arms the first-step derivative.
func (c *Controller) Reset() {
	c.integral = 0
	c.lastError = 0
	c.lastOutput = 0
	c.lastMeasured = 0
	c.primed = false
}

// LastError returns the error from the most recent Update.
func (c *Controller) LastError() float64 { return c.lastError }

// LastOutput returns the clamped output from the most recent Update.
func (c *Controller) LastOutput() float64 { return c.lastOutput }

// IntegralState returns the current integral accumulator.
func (c *Controller) IntegralState() float64 { return c.integral }

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
