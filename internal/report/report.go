// Package report exports a run's sampled telemetry as CSV, JSON, or a PDF
// summary document.
package report

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/tanksim/tankd/internal/store"
)

// SampleJSON is the JSON representation of a sample for export.
type SampleJSON struct {
	SimTime       float64 `json:"sim_time"`
	Level         float64 `json:"level"`
	Setpoint      float64 `json:"setpoint"`
	InletFlow     float64 `json:"inlet_flow"`
	ValvePosition float64 `json:"valve_position"`
	Error         float64 `json:"error"`
	Output        float64 `json:"output"`
	Timestamp     string  `json:"timestamp"`
}

// Stats summarizes a run's level trajectory.
type Stats struct {
	Samples    int
	LevelMin   float64
	LevelMax   float64
	LevelMean  float64
	FinalError float64
}

// ComputeStats reduces a sample series; zero samples give a zero Stats.
func ComputeStats(samples []store.Sample) Stats {
	if len(samples) == 0 {
		return Stats{}
	}
	st := Stats{
		Samples:  len(samples),
		LevelMin: math.Inf(1),
		LevelMax: math.Inf(-1),
	}
	sum := 0.0
	for _, m := range samples {
		st.LevelMin = math.Min(st.LevelMin, m.Level)
		st.LevelMax = math.Max(st.LevelMax, m.Level)
		sum += m.Level
	}
	st.LevelMean = sum / float64(len(samples))
	st.FinalError = samples[len(samples)-1].Error
	return st
}

// ExportCSV writes a run's samples as CSV to w.
// Headers: sim_time,level,setpoint,inlet_flow,valve_position,error,output,timestamp
func ExportCSV(w io.Writer, s *store.Store, runID string) error {
	samples, err := s.QuerySamples(runID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sim_time", "level", "setpoint", "inlet_flow", "valve_position", "error", "output", "timestamp"}); err != nil {
		return err
	}

	for _, m := range samples {
		record := []string{
			formatFloat(m.SimTime),
			formatFloat(m.Level),
			formatFloat(m.Setpoint),
			formatFloat(m.InletFlow),
			formatFloat(m.ValvePosition),
			formatFloat(m.Error),
			formatFloat(m.Output),
			m.Timestamp.Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportJSON writes a run's samples as a JSON array to w.
func ExportJSON(w io.Writer, s *store.Store, runID string) error {
	samples, err := s.QuerySamples(runID)
	if err != nil {
		return err
	}

	records := make([]SampleJSON, len(samples))
	for i, m := range samples {
		records[i] = SampleJSON{
			SimTime:       m.SimTime,
			Level:         m.Level,
			Setpoint:      m.Setpoint,
			InletFlow:     m.InletFlow,
			ValvePosition: m.ValvePosition,
			Error:         m.Error,
			Output:        m.Output,
			Timestamp:     m.Timestamp.Format(time.RFC3339),
		}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	_, err = w.Write(data)
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
