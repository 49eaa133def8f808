package sim

// derivFunc computes dstate/dt for the given time, state, and inputs. The
// returned slice must have the same length as state.
type derivFunc func(t float64, state, inputs []float64) []float64

// rk4Step advances state by one classical fourth-order Runge-Kutta step of
// size dt. Inputs are held constant across the four substeps (zero-order
// hold). The input slices are not modified.
func rk4Step(t, dt float64, state, inputs []float64, f derivFunc) []float64 {
	n := len(state)

	k1 := f(t, state, inputs)

	mid := make([]float64, n)
	for i := 0; i < n; i++ {
		mid[i] = state[i] + 0.5*dt*k1[i]
	}
	k2 := f(t+0.5*dt, mid, inputs)

	for i := 0; i < n; i++ {
		mid[i] = state[i] + 0.5*dt*k2[i]
	}
	k3 := f(t+0.5*dt, mid, inputs)

	end := make([]float64, n)
	for i := 0; i < n; i++ {
		end[i] = state[i] + dt*k3[i]
	}
	k4 := f(t+dt, end, inputs)

	next := make([]float64, n)
	for i := 0; i < n; i++ {
		next[i] = state[i] + dt/6.0*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}
	return next
}
