package report

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/tanksim/tankd/internal/store"
)

// Sample rows per PDF to keep documents a manageable size; long runs are
// better served by the CSV export.
const maxPDFRows = 500

// GeneratePDF writes a summary report for the given run: header, level
// statistics, and a sample table.
func GeneratePDF(w io.Writer, s *store.Store, runID string) error {
	run, err := s.GetRun(runID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run not found")
	}
	samples, err := s.QuerySamples(runID)
	if err != nil {
		return fmt.Errorf("query samples: %w", err)
	}
	stats := ComputeStats(samples)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	// Title
	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 12, "Tank Simulation Run Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	// Run info
	pdf.SetFont("Arial", "", 10)
	info := []struct{ label, value string }{
		{"Run ID", run.ID},
		{"Started", run.StartedAt.Format(time.RFC3339)},
		{"Status", run.Status},
	}
	if run.FinishedAt != nil {
		info = append(info, struct{ label, value string }{"Finished", run.FinishedAt.Format(time.RFC3339)})
	}
	info = append(info,
		struct{ label, value string }{"Samples", fmt.Sprintf("%d", stats.Samples)},
		struct{ label, value string }{"Level min/max", fmt.Sprintf("%.4f / %.4f m", stats.LevelMin, stats.LevelMax)},
		struct{ label, value string }{"Level mean", fmt.Sprintf("%.4f m", stats.LevelMean)},
		struct{ label, value string }{"Final error", fmt.Sprintf("%.4f m", stats.FinalError)},
	)
	if stats.Samples == 0 {
		info = info[:len(info)-3]
	}

	for _, item := range info {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(45, 7, item.label+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	// Sample table
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Telemetry Samples", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	if len(samples) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(0, 7, "No samples recorded.", "", 1, "L", false, 0, "")
	} else {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(220, 220, 220)
		pdf.CellFormat(22, 7, "Time (s)", "1", 0, "R", true, 0, "")
		pdf.CellFormat(25, 7, "Level (m)", "1", 0, "R", true, 0, "")
		pdf.CellFormat(25, 7, "Setpoint", "1", 0, "R", true, 0, "")
		pdf.CellFormat(25, 7, "Inlet", "1", 0, "R", true, 0, "")
		pdf.CellFormat(25, 7, "Valve", "1", 0, "R", true, 0, "")
		pdf.CellFormat(0, 7, "Error", "1", 1, "R", true, 0, "")

		pdf.SetFont("Arial", "", 9)
		rows := samples
		if len(rows) > maxPDFRows {
			rows = rows[len(rows)-maxPDFRows:]
		}
		for _, m := range rows {
			pdf.CellFormat(22, 6, fmt.Sprintf("%.1f", m.SimTime), "1", 0, "R", false, 0, "")
			pdf.CellFormat(25, 6, fmt.Sprintf("%.4f", m.Level), "1", 0, "R", false, 0, "")
			pdf.CellFormat(25, 6, fmt.Sprintf("%.2f", m.Setpoint), "1", 0, "R", false, 0, "")
			pdf.CellFormat(25, 6, fmt.Sprintf("%.3f", m.InletFlow), "1", 0, "R", false, 0, "")
			pdf.CellFormat(25, 6, fmt.Sprintf("%.3f", m.ValvePosition), "1", 0, "R", false, 0, "")
			pdf.CellFormat(0, 6, fmt.Sprintf("%.4f", m.Error), "1", 1, "R", false, 0, "")
		}
	}

	return pdf.Output(w)
}
