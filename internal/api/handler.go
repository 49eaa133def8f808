// Package api exposes the tank simulation over HTTP: REST command
// endpoints, history queries, run exports, and a WebSocket telemetry
// stream. All simulation access goes through the runner, which owns the
// locking.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/tanksim/tankd/internal/history"
	"github.com/tanksim/tankd/internal/pid"
	"github.com/tanksim/tankd/internal/report"
	"github.com/tanksim/tankd/internal/runner"
	"github.com/tanksim/tankd/internal/sim"
	"github.com/tanksim/tankd/internal/store"
)

// setpointRequest is the JSON body for POST /api/setpoint. Index defaults
// to loop 0.
type setpointRequest struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

// pidRequest is the JSON body for POST /api/pid.
type pidRequest struct {
	Index int     `json:"index"`
	Kc    float64 `json:"kc"`
	TauI  float64 `json:"tau_i"`
	TauD  float64 `json:"tau_d"`
}

// valueRequest is the JSON body for POST /api/inlet_flow.
type valueRequest struct {
	Value float64 `json:"value"`
}

// inputRequest is the JSON body for POST /api/input.
type inputRequest struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

// inletModeRequest is the JSON body for POST /api/inlet_mode.
type inletModeRequest struct {
	Mode    string  `json:"mode"`
	MinFlow float64 `json:"min_flow"`
	MaxFlow float64 `json:"max_flow"`
	Seed    int64   `json:"seed,omitempty"`
}

// Handler holds all dependencies for HTTP request handling.
type Handler struct {
	Runner  *runner.Runner
	Store   *store.Store
	History *history.Ring
	Hub     *Hub
}

// RegisterRoutes adds all API routes to the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.health)
	mux.HandleFunc("GET /api/config", h.getConfig)
	mux.HandleFunc("GET /api/state", h.getState)
	mux.HandleFunc("POST /api/reset", h.reset)
	mux.HandleFunc("POST /api/setpoint", h.setSetpoint)
	mux.HandleFunc("POST /api/pid", h.setPID)
	mux.HandleFunc("POST /api/inlet_flow", h.setInletFlow)
	mux.HandleFunc("POST /api/inlet_mode", h.setInletMode)
	mux.HandleFunc("POST /api/input", h.setInput)
	mux.HandleFunc("POST /api/pause", h.pause)
	mux.HandleFunc("POST /api/resume", h.resume)
	mux.HandleFunc("GET /api/history", h.getHistory)
	mux.HandleFunc("GET /api/runs", h.listRuns)
	mux.HandleFunc("GET /api/runs/{id}/csv", h.exportCSV)
	mux.HandleFunc("GET /api/runs/{id}/json", h.exportJSON)
	mux.HandleFunc("GET /api/runs/{id}/pdf", h.exportPDF)
	if h.Hub != nil {
		mux.HandleFunc("GET /ws", h.Hub.HandleWebSocket)
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Runner.Config())
}

func (h *Handler) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Runner.Snapshot())
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.Runner.Reset(); err != nil {
		writeJSON(w, http.StatusInternalServerError, errBody(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "simulation reset",
		"run_id":  h.Runner.RunID(),
	})
}

func (h *Handler) setSetpoint(w http.ResponseWriter, r *http.Request) {
	var req setpointRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Runner.SetSetpoint(req.Index, req.Value); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "setpoint updated",
		"index":   req.Index,
		"value":   req.Value,
	})
}

func (h *Handler) setPID(w http.ResponseWriter, r *http.Request) {
	var req pidRequest
	if !decode(w, r, &req) {
		return
	}
	gains := pid.Gains{Kc: req.Kc, TauI: req.TauI, TauD: req.TauD}
	if err := h.Runner.SetControllerGains(req.Index, gains); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "gains updated",
		"index":   req.Index,
		"gains":   gains,
	})
}

func (h *Handler) setInletFlow(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Runner.SetInletFlow(req.Value); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "inlet flow updated",
		"value":   req.Value,
	})
}

func (h *Handler) setInletMode(w http.ResponseWriter, r *http.Request) {
	var req inletModeRequest
	if !decode(w, r, &req) {
		return
	}
	mode := runner.InletMode(req.Mode)
	if err := h.Runner.SetInletMode(mode, req.MinFlow, req.MaxFlow, req.Seed); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "inlet mode updated",
		"mode":    req.Mode,
	})
}

func (h *Handler) setInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Runner.SetInput(req.Index, req.Value); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "input updated",
		"index":   req.Index,
		"value":   req.Value,
	})
}

func (h *Handler) pause(w http.ResponseWriter, r *http.Request) {
	h.Runner.Pause()
	writeJSON(w, http.StatusOK, map[string]string{"message": "simulation paused"})
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	h.Runner.Resume()
	writeJSON(w, http.StatusOK, map[string]string{"message": "simulation resumed"})
}

// getHistory returns snapshots from the last `duration` seconds of
// simulation time (default 3600, capped at 7200).
func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	duration := 3600.0
	if q := r.URL.Query().Get("duration"); q != "" {
		d, err := strconv.ParseFloat(q, 64)
		if err != nil || d < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "duration must be a number >= 1"})
			return
		}
		duration = d
	}
	if duration > 7200 {
		duration = 7200
	}

	cutoff := h.Runner.Snapshot().Time - duration
	if cutoff < 0 {
		cutoff = 0
	}
	writeJSON(w, http.StatusOK, h.History.Since(cutoff))
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.QueryRuns()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errBody(err))
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.runExists(w, id) {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", id))
	if err := report.ExportCSV(w, h.Store, id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) exportJSON(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.runExists(w, id) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := report.ExportJSON(w, h.Store, id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) exportPDF(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.runExists(w, id) {
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", id))
	if err := report.GeneratePDF(w, h.Store, id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) runExists(w http.ResponseWriter, id string) bool {
	run, err := h.Store.GetRun(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errBody(err))
		return false
	}
	if run == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return false
	}
	return true
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// writeCommandError maps core and runner errors to HTTP statuses: unknown
// indices are 404, rejected values are 400.
func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sim.ErrIndexOutOfRange):
		writeJSON(w, http.StatusNotFound, errBody(err))
	case errors.Is(err, runner.ErrInvalidValue):
		writeJSON(w, http.StatusBadRequest, errBody(err))
	default:
		writeJSON(w, http.StatusInternalServerError, errBody(err))
	}
}

func errBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
