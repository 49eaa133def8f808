// Package history keeps a bounded in-memory buffer of recent simulation
// snapshots for history queries. Older entries are evicted as new ones
// arrive; persistence beyond the buffer is the store's job.
package history

import (
	"sync"
	"time"
)

// Snapshot is one observed simulation instant.
type Snapshot struct {
	Time          float64   `json:"time"`
	Level         float64   `json:"level"`
	Setpoint      float64   `json:"setpoint"`
	InletFlow     float64   `json:"inlet_flow"`
	ValvePosition float64   `json:"valve_position"`
	Error         float64   `json:"error"`
	Output        float64   `json:"output"`
	WallTime      time.Time `json:"wall_time"`
}

// Ring is a fixed-capacity circular snapshot buffer. Safe for concurrent
// use.
type Ring struct {
	mu    sync.RWMutex
	buf   []Snapshot
	head  int // next write position
	count int
}

// NewRing creates a ring holding at most capacity snapshots. Capacity must
// be at least 1.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]Snapshot, capacity)}
}

// Push appends a snapshot, evicting the oldest when full.
func (r *Ring) Push(s Snapshot) {
	r.mu.Lock()
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	r.mu.Unlock()
}

// Len returns the number of retained snapshots.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Cap returns the buffer capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Recent returns up to n snapshots, oldest first, ending at the newest.
func (r *Ring) Recent(n int) []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return []Snapshot{}
	}
	out := make([]Snapshot, 0, n)
	start := r.head - n
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < n; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// Since returns all retained snapshots with Time >= simTime, oldest first.
func (r *Ring) Since(simTime float64) []Snapshot {
	all := r.Recent(r.Len())
	// Snapshots arrive in time order except across a reset, so scan from
	// the newest end until the cutoff.
	i := len(all)
	for i > 0 && all[i-1].Time >= simTime {
		i--
	}
	return all[i:]
}

// Clear drops all retained snapshots.
func (r *Ring) Clear() {
	r.mu.Lock()
	r.head = 0
	r.count = 0
	r.mu.Unlock()
}
