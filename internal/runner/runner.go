// Package runner owns the simulator at runtime. It serializes every
// read and mutation behind one mutex, steps the simulation on a wall-clock
// ticker, and fans each snapshot out to the WebSocket hub, the history
// ring, the sample store, and the optional telemetry publisher.
//
// The simulator itself is single-threaded by contract; the Runner is the
// one place that guarantees at-most-one mutating call in flight.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tanksim/tankd/internal/history"
	"github.com/tanksim/tankd/internal/pid"
	"github.com/tanksim/tankd/internal/sim"
	"github.com/tanksim/tankd/internal/store"
	"github.com/tanksim/tankd/internal/tank"
)

// ErrInvalidValue reports a command value outside its allowed range.
// Operator-facing range checks live here, not in the simulation core.
var ErrInvalidValue = errors.New("runner: invalid value")

// Broadcaster pushes an event to connected WebSocket clients.
type Broadcaster interface {
	BroadcastEvent(eventType string, payload interface{})
}

// Publisher pushes a snapshot to an external telemetry sink.
type Publisher interface {
	Publish(ctx context.Context, snap history.Snapshot) error
}

// InletMode selects how the inlet flow input evolves between steps.
type InletMode string

const (
	// InletConstant leaves the inlet flow wherever it was last set.
	InletConstant InletMode = "constant"
	// InletBrownian applies a clamped random walk to the inlet flow each
	// tick, for disturbance studies.
	InletBrownian InletMode = "brownian"
)

// Options configures a Runner. Sim is required; everything else optional.
type Options struct {
	Sim          *sim.Simulator
	Store        *store.Store
	History      *history.Ring
	Hub          Broadcaster
	Publisher    Publisher
	Tick         time.Duration
	SampleStride int // persist every Nth snapshot; 0 disables sampling
}

// Runner drives the simulation and mediates all access to it.
type Runner struct {
	mu  sync.Mutex
	sim *sim.Simulator

	st           *store.Store
	hist         *history.Ring
	hub          Broadcaster
	pub          Publisher
	tick         time.Duration
	sampleStride int

	runID  string
	paused bool
	ticks  uint64

	inletMode InletMode
	inletMin  float64
	inletMax  float64
	rng       *rand.Rand
}

// New creates a Runner and opens its first persisted run.
func New(opts Options) (*Runner, error) {
	if opts.Sim == nil {
		return nil, errors.New("runner: simulator is required")
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = time.Second
	}
	r := &Runner{
		sim:          opts.Sim,
		st:           opts.Store,
		hist:         opts.History,
		hub:          opts.Hub,
		pub:          opts.Publisher,
		tick:         tick,
		sampleStride: opts.SampleStride,
		inletMode:    InletConstant,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := r.openRun(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runner) openRun() error {
	r.runID = uuid.New().String()
	if r.st == nil {
		return nil
	}
	cfgJSON, err := json.Marshal(r.sim.Config())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := r.st.CreateRun(r.runID, string(cfgJSON)); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// RunID returns the identifier of the current persisted run.
func (r *Runner) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

// Run steps the simulation on a wall-clock ticker until ctx is cancelled,
// then closes out the persisted run.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			if r.st != nil {
				if err := r.st.FinishRun(r.runID); err != nil {
					log.Printf("runner: finish run: %v", err)
				}
			}
			r.mu.Unlock()
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick performs one scheduled advance: inlet-mode update, one simulation
// step, and snapshot fan-out. Paused runners skip the advance but external
// reads keep working. Exported so tests can drive the loop directly.
func (r *Runner) Tick(ctx context.Context) {
	r.mu.Lock()
	if r.paused {
		r.mu.Unlock()
		return
	}

	if r.inletMode == InletBrownian {
		r.sim.SetInput(tank.InputInletFlow, r.nextInletFlow())
	}
	r.sim.Step()
	r.ticks++

	snap := r.snapshotLocked()
	persist := r.st != nil && r.sampleStride > 0 && r.ticks%uint64(r.sampleStride) == 0
	runID := r.runID
	r.mu.Unlock()

	if r.hist != nil {
		r.hist.Push(snap)
	}
	if r.hub != nil {
		r.hub.BroadcastEvent("state", snap)
	}
	if persist {
		if err := r.st.RecordSample(runID, snap.Time, snap.Level, snap.Setpoint,
			snap.InletFlow, snap.ValvePosition, snap.Error, snap.Output); err != nil {
			log.Printf("runner: record sample: %v", err)
		}
	}
	if r.pub != nil {
		if err := r.pub.Publish(ctx, snap); err != nil {
			log.Printf("runner: publish snapshot: %v", err)
		}
	}
}

// nextInletFlow advances the clamped random walk. Caller holds the lock.
func (r *Runner) nextInletFlow() float64 {
	span := r.inletMax - r.inletMin
	flow := r.sim.Inputs()[tank.InputInletFlow]
	flow += (r.rng.Float64()*2 - 1) * 0.05 * span
	if flow < r.inletMin {
		flow = r.inletMin
	}
	if flow > r.inletMax {
		flow = r.inletMax
	}
	return flow
}

// Snapshot reads state, inputs, time, and loop telemetry under one lock.
func (r *Runner) Snapshot() history.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Runner) snapshotLocked() history.Snapshot {
	state := r.sim.State()
	inputs := r.sim.Inputs()
	snap := history.Snapshot{
		Time:          r.sim.Time(),
		Level:         state[0],
		InletFlow:     inputs[tank.InputInletFlow],
		ValvePosition: inputs[tank.InputValvePosition],
		WallTime:      time.Now().UTC(),
	}
	if r.sim.ControllerCount() > 0 {
		snap.Setpoint, _ = r.sim.Setpoint(0)
		snap.Error, _ = r.sim.LoopError(0)
		snap.Output, _ = r.sim.ControllerOutput(0)
	}
	return snap
}

// Config returns the simulator's validated configuration.
func (r *Runner) Config() sim.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sim.Config()
}

// Reset restores the simulator to its construction-time snapshot, clears
// retained history, finishes the current persisted run, and opens a new
// one.
func (r *Runner) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sim.Reset()
	r.ticks = 0
	if r.hist != nil {
		r.hist.Clear()
	}
	if r.st != nil {
		if err := r.st.FinishRun(r.runID); err != nil {
			log.Printf("runner: finish run: %v", err)
		}
	}
	return r.openRun()
}

// Pause suspends stepping; reads remain available.
func (r *Runner) Pause() {
	r.mu.Lock()
	r.paused = true
	r.mu.Unlock()
}

// Resume restarts stepping after a Pause.
func (r *Runner) Resume() {
	r.mu.Lock()
	r.paused = false
	r.mu.Unlock()
}

// Paused reports whether stepping is suspended.
func (r *Runner) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// SetSetpoint validates the operator range [0, MaxHeight] and forwards to
// the simulator.
func (r *Runner) SetSetpoint(index int, value float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	maxHeight := r.sim.Config().Tank.MaxHeight
	if value < 0 || value > maxHeight {
		return fmt.Errorf("%w: setpoint %g outside [0, %g]", ErrInvalidValue, value, maxHeight)
	}
	return r.sim.SetSetpoint(index, value)
}

// SetControllerGains validates non-negative time constants and forwards to
// the simulator.
func (r *Runner) SetControllerGains(index int, gains pid.Gains) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gains.TauI < 0 || gains.TauD < 0 {
		return fmt.Errorf("%w: tau_i and tau_d must be non-negative", ErrInvalidValue)
	}
	return r.sim.SetControllerGains(index, gains)
}

// SetInletFlow sets input 0, requiring a non-negative flow, and switches
// the inlet back to constant mode.
func (r *Runner) SetInletFlow(value float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if value < 0 {
		return fmt.Errorf("%w: inlet flow %g must be non-negative", ErrInvalidValue, value)
	}
	r.inletMode = InletConstant
	return r.sim.SetInput(tank.InputInletFlow, value)
}

// SetInput overwrites an arbitrary input entry, for open-loop operation.
func (r *Runner) SetInput(index int, value float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sim.SetInput(index, value)
}

// SetInletMode switches between constant and brownian inlet behavior. For
// brownian mode minFlow/maxFlow bound the walk; a non-zero seed makes the
// walk reproducible.
func (r *Runner) SetInletMode(mode InletMode, minFlow, maxFlow float64, seed int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch mode {
	case InletConstant:
		r.inletMode = InletConstant
		return nil
	case InletBrownian:
		if minFlow < 0 || maxFlow <= minFlow {
			return fmt.Errorf("%w: brownian bounds [%g, %g]", ErrInvalidValue, minFlow, maxFlow)
		}
		r.inletMode = InletBrownian
		r.inletMin = minFlow
		r.inletMax = maxFlow
		if seed != 0 {
			r.rng = rand.New(rand.NewSource(seed))
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown inlet mode %q", ErrInvalidValue, mode)
	}
}

// InletMode returns the active inlet mode.
func (r *Runner) InletMode() InletMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inletMode
}

// Setpoint forwards to the simulator under the runner lock.
func (r *Runner) Setpoint(index int) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sim.Setpoint(index)
}

// ControllerGains forwards to the simulator under the runner lock.
func (r *Runner) ControllerGains(index int) (pid.Gains, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sim.ControllerGains(index)
}
