package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tanksim/tankd/internal/history"
	"github.com/tanksim/tankd/internal/runner"
	"github.com/tanksim/tankd/internal/sim"
	"github.com/tanksim/tankd/internal/store"
)

type testEnv struct {
	runner *runner.Runner
	store  *store.Store
	ring   *history.Ring
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	s, err := sim.New(sim.DefaultConfig())
	if err != nil {
		t.Fatalf("sim.New failed: %v", err)
	}

	ring := history.NewRing(128)
	r, err := runner.New(runner.Options{
		Sim:          s,
		Store:        st,
		History:      ring,
		SampleStride: 1,
	})
	if err != nil {
		t.Fatalf("runner.New failed: %v", err)
	}

	h := &Handler{Runner: r, Store: st, History: ring}
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testEnv{runner: r, store: st, ring: ring, server: srv}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, body
}

func (e *testEnv) post(t *testing.T, path, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, data
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/api/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"ok"`) {
		t.Errorf("body = %s", body)
	}
}

func TestGetConfig(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/api/config")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var cfg sim.Config
	if err := json.Unmarshal(body, &cfg); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	if cfg.Tank.Area != 120.0 || cfg.Dt != 1.0 {
		t.Errorf("config = %+v", cfg)
	}
	if len(cfg.Controllers) != 1 || cfg.Controllers[0].Gains.Kc != -1.0 {
		t.Errorf("controllers = %+v", cfg.Controllers)
	}
}

func TestGetState(t *testing.T) {
	env := newTestEnv(t)
	env.runner.Tick(context.Background())

	resp, body := env.get(t, "/api/state")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var snap history.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.Time != 1.0 {
		t.Errorf("time = %g, want 1", snap.Time)
	}
	if snap.Level < 2.49 || snap.Level > 2.51 {
		t.Errorf("level = %g", snap.Level)
	}
}

func TestSetpointEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.post(t, "/api/setpoint", `{"value": 3.0}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if sp, _ := env.runner.Setpoint(0); sp != 3.0 {
		t.Errorf("setpoint = %g, want 3.0", sp)
	}

	// Above the tank ceiling.
	resp, body := env.post(t, "/api/setpoint", `{"value": 9.5}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d for out-of-range setpoint, body %s", resp.StatusCode, body)
	}

	resp, _ = env.post(t, "/api/setpoint", `{"index": 4, "value": 3.0}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d for bad index", resp.StatusCode)
	}

	resp, _ = env.post(t, "/api/setpoint", `not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d for bad body", resp.StatusCode)
	}
}

func TestPIDEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.post(t, "/api/pid", `{"kc": -2.0, "tau_i": 5.0, "tau_d": 0.5}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	g, err := env.runner.ControllerGains(0)
	if err != nil {
		t.Fatalf("ControllerGains failed: %v", err)
	}
	if g.Kc != -2.0 || g.TauI != 5.0 || g.TauD != 0.5 {
		t.Errorf("gains = %+v", g)
	}

	resp, _ = env.post(t, "/api/pid", `{"kc": -1.0, "tau_i": -5.0}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d for negative tau_i", resp.StatusCode)
	}
}

func TestInletFlowEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.post(t, "/api/inlet_flow", `{"value": 1.4}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := env.runner.Snapshot().InletFlow; got != 1.4 {
		t.Errorf("inlet flow = %g, want 1.4", got)
	}

	resp, _ = env.post(t, "/api/inlet_flow", `{"value": -1}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d for negative flow", resp.StatusCode)
	}
}

func TestInletModeEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.post(t, "/api/inlet_mode", `{"mode": "brownian", "min_flow": 0.5, "max_flow": 1.5}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := env.runner.InletMode(); got != runner.InletBrownian {
		t.Errorf("mode = %s", got)
	}

	resp, _ = env.post(t, "/api/inlet_mode", `{"mode": "warp"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d for unknown mode", resp.StatusCode)
	}
}

func TestInputEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.post(t, "/api/input", `{"index": 1, "value": 0.25}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := env.runner.Snapshot().ValvePosition; got != 0.25 {
		t.Errorf("valve position = %g, want 0.25", got)
	}

	resp, _ = env.post(t, "/api/input", `{"index": 9, "value": 0.25}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d for bad input index", resp.StatusCode)
	}
}

func TestPauseResumeEndpoints(t *testing.T) {
	env := newTestEnv(t)

	env.post(t, "/api/pause", `{}`)
	if !env.runner.Paused() {
		t.Error("runner not paused")
	}
	env.post(t, "/api/resume", `{}`)
	if env.runner.Paused() {
		t.Error("runner still paused")
	}
}

func TestResetEndpoint(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		env.runner.Tick(context.Background())
	}
	firstRun := env.runner.RunID()

	resp, body := env.post(t, "/api/reset", `{}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if env.runner.Snapshot().Time != 0 {
		t.Error("reset did not zero simulation time")
	}
	if env.runner.RunID() == firstRun {
		t.Error("reset did not open a new run")
	}
	if !strings.Contains(string(body), env.runner.RunID()) {
		t.Errorf("reset response missing new run id: %s", body)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 10; i++ {
		env.runner.Tick(context.Background())
	}

	resp, body := env.get(t, "/api/history")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var snaps []history.Snapshot
	if err := json.Unmarshal(body, &snaps); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(snaps) != 10 {
		t.Errorf("history length = %d, want 10", len(snaps))
	}

	// duration restricts by simulation time: with ticks at t=1..10 the
	// last 3 seconds cover t=7..10.
	resp, body = env.get(t, "/api/history?duration=3")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &snaps); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(snaps) != 4 {
		t.Errorf("history length = %d with duration=3, want 4", len(snaps))
	}

	resp, _ = env.get(t, "/api/history?duration=bogus")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d for bad duration", resp.StatusCode)
	}
}

func TestRunsAndExports(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 5; i++ {
		env.runner.Tick(context.Background())
	}
	runID := env.runner.RunID()

	resp, body := env.get(t, "/api/runs")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var runs []store.Run
	if err := json.Unmarshal(body, &runs); err != nil {
		t.Fatalf("unmarshal runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != runID {
		t.Errorf("runs = %+v", runs)
	}

	resp, body = env.get(t, fmt.Sprintf("/api/runs/%s/csv", runID))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("csv status = %d", resp.StatusCode)
	}
	if lines := strings.Split(strings.TrimSpace(string(body)), "\n"); len(lines) != 6 {
		t.Errorf("csv lines = %d, want header plus 5 rows", len(lines))
	}

	resp, body = env.get(t, fmt.Sprintf("/api/runs/%s/json", runID))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("json status = %d", resp.StatusCode)
	}
	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if len(records) != 5 {
		t.Errorf("json records = %d, want 5", len(records))
	}

	resp, body = env.get(t, fmt.Sprintf("/api/runs/%s/pdf", runID))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pdf status = %d", resp.StatusCode)
	}
	if !bytes.HasPrefix(body, []byte("%PDF")) {
		t.Error("pdf export does not start with %PDF")
	}

	resp, _ = env.get(t, "/api/runs/unknown/csv")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d for unknown run", resp.StatusCode)
	}
}
