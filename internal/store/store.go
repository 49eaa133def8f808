// Package store persists simulation runs and sampled telemetry in SQLite.
package store

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one simulation process run, from service start (or reset) until
// the next reset or shutdown.
type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Status     string     `json:"status"` // "running", "finished"
	ConfigJSON string     `json:"config_json"`
}

// Sample is one persisted telemetry point within a run.
type Sample struct {
	ID            int64
	RunID         string
	SimTime       float64
	Level         float64
	Setpoint      float64
	InletFlow     float64
	ValvePosition float64
	Error         float64
	Output        float64
	Timestamp     time.Time
}

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	schema := `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    status TEXT NOT NULL,
    config_json TEXT DEFAULT ''
);

CREATE TABLE IF NOT EXISTS samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id),
    sim_time REAL NOT NULL,
    level REAL NOT NULL,
    setpoint REAL NOT NULL,
    inlet_flow REAL NOT NULL,
    valve_position REAL NOT NULL,
    error REAL NOT NULL,
    output REAL NOT NULL,
    timestamp TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_run ON samples(run_id, sim_time);`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateRun(id, configJSON string) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, started_at, status, config_json) VALUES (?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339Nano), "running", configJSON,
	)
	return err
}

func (s *Store) FinishRun(id string) error {
	_, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, status = 'finished' WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	return err
}

func (s *Store) RecordSample(runID string, simTime, level, setpoint, inletFlow, valvePos, loopErr, output float64) error {
	_, err := s.db.Exec(
		`INSERT INTO samples (run_id, sim_time, level, setpoint, inlet_flow, valve_position, error, output, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, simTime, level, setpoint, inletFlow, valvePos, loopErr, output,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) QueryRuns() ([]Run, error) {
	rows, err := s.db.Query(`SELECT id, started_at, finished_at, status, config_json FROM runs ORDER BY started_at DESC, _rowid_ DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`SELECT id, started_at, finished_at, status, config_json FROM runs WHERE id = ?`, id)
	r, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func scanRun(scan func(...any) error) (*Run, error) {
	var r Run
	var startedAt string
	var finishedAt sql.NullString
	if err := scan(&r.ID, &startedAt, &finishedAt, &r.Status, &r.ConfigJSON); err != nil {
		return nil, err
	}
	var err error
	r.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return nil, err
		}
		r.FinishedAt = &t
	}
	return &r, nil
}

func (s *Store) QuerySamples(runID string) ([]Sample, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, sim_time, level, setpoint, inlet_flow, valve_position, error, output, timestamp
		 FROM samples WHERE run_id = ? ORDER BY sim_time ASC, id ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := []Sample{}
	for rows.Next() {
		var m Sample
		var ts string
		if err := rows.Scan(&m.ID, &m.RunID, &m.SimTime, &m.Level, &m.Setpoint,
			&m.InletFlow, &m.ValvePosition, &m.Error, &m.Output, &ts); err != nil {
			return nil, err
		}
		var perr error
		m.Timestamp, perr = time.Parse(time.RFC3339Nano, ts)
		if perr != nil {
			return nil, perr
		}
		samples = append(samples, m)
	}
	return samples, rows.Err()
}
