// Package calibdb persists extracted calibration constants in sqlite so
// downstream consumers can query per-pixel gain, baseline and noise terms
// without reloading histogram archives.
package calibdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/camera-data/spectrum.report/internal/histogram"
	"github.com/camera-data/spectrum.report/internal/spectra"
)

const schema = `
CREATE TABLE IF NOT EXISTS calibration_runs (
	run_id      TEXT PRIMARY KEY,
	label       TEXT NOT NULL,
	model       TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	params_json TEXT
);
CREATE TABLE IF NOT EXISTS pixel_constants (
	run_id   TEXT NOT NULL REFERENCES calibration_runs(run_id),
	slot     INTEGER NOT NULL,
	mu       REAL, mu_err       REAL,
	mu_xt    REAL, mu_xt_err    REAL,
	gain     REAL, gain_err     REAL,
	baseline REAL, baseline_err REAL,
	sigma_e  REAL, sigma_e_err  REAL,
	sigma_1  REAL, sigma_1_err  REAL,
	chi2     REAL,
	ndof     REAL,
	PRIMARY KEY (run_id, slot)
);
CREATE INDEX IF NOT EXISTS idx_pixel_constants_run ON pixel_constants(run_id);
`

// Run is one recorded calibration extraction.
type Run struct {
	RunID      string          `json:"run_id"`
	Label      string          `json:"label"`
	Model      string          `json:"model"`
	CreatedAt  int64           `json:"created_at"`
	ParamsJSON json.RawMessage `json:"params_json,omitempty"`
}

// PixelConstants holds the fitted constants of one slot.
type PixelConstants struct {
	RunID    string  `json:"run_id"`
	Slot     int     `json:"slot"`
	Mu       float64 `json:"mu"`
	MuErr    float64 `json:"mu_err"`
	MuXT     float64 `json:"mu_xt"`
	MuXTErr  float64 `json:"mu_xt_err"`
	Gain     float64 `json:"gain"`
	GainErr  float64 `json:"gain_err"`
	Baseline float64 `json:"baseline"`
	BaseErr  float64 `json:"baseline_err"`
	SigmaE   float64 `json:"sigma_e"`
	SigmaEE  float64 `json:"sigma_e_err"`
	Sigma1   float64 `json:"sigma_1"`
	Sigma1E  float64 `json:"sigma_1_err"`
	Chi2     float64 `json:"chi2"`
	NDOF     float64 `json:"ndof"`
}

// Store provides persistence for calibration runs.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initialises) a calibration database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening calibration db %s: %w", path, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("executing %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating calibration schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle, creating the schema if
// missing.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating calibration schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// RecordRun inserts a calibration run and one constants row per slot of a
// fitted store. Slots whose fit failed (NaN parameters) are recorded
// as-is; NaN survives the round trip. The store must have been fitted with
// a model sharing the charge-spectrum parameter layout.
func (s *Store) RecordRun(st *histogram.Store, label string, params json.RawMessage) (*Run, error) {
	if st.FitResult == nil {
		return nil, fmt.Errorf("store has no fit results")
	}
	if st.NumParams < spectra.NumParams {
		return nil, fmt.Errorf("store fit has %d parameters, want at least %d", st.NumParams, spectra.NumParams)
	}

	run := &Run{
		RunID:      uuid.New().String(),
		Label:      label,
		Model:      st.FitModel,
		CreatedAt:  time.Now().UnixNano(),
		ParamsJSON: params,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning calibration insert: %w", err)
	}
	defer tx.Rollback()

	var paramsStr interface{}
	if len(params) > 0 {
		paramsStr = string(params)
	}
	if _, err := tx.Exec(
		`INSERT INTO calibration_runs (run_id, label, model, created_at, params_json) VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.Label, run.Model, run.CreatedAt, paramsStr,
	); err != nil {
		return nil, fmt.Errorf("inserting calibration run: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO pixel_constants (
			run_id, slot,
			mu, mu_err, mu_xt, mu_xt_err, gain, gain_err,
			baseline, baseline_err, sigma_e, sigma_e_err, sigma_1, sigma_1_err,
			chi2, ndof
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("preparing constants insert: %w", err)
	}
	defer stmt.Close()

	for slot := 0; slot < st.NumSlots(); slot++ {
		p := st.SlotFitParams(slot)
		chi2, ndof := st.SlotChi2NDOF(slot)
		if _, err := stmt.Exec(
			run.RunID, slot,
			nullable(p[spectra.ParamMu][0]), nullable(p[spectra.ParamMu][1]),
			nullable(p[spectra.ParamMuXT][0]), nullable(p[spectra.ParamMuXT][1]),
			nullable(p[spectra.ParamGain][0]), nullable(p[spectra.ParamGain][1]),
			nullable(p[spectra.ParamBaseline][0]), nullable(p[spectra.ParamBaseline][1]),
			nullable(p[spectra.ParamSigmaE][0]), nullable(p[spectra.ParamSigmaE][1]),
			nullable(p[spectra.ParamSigma1][0]), nullable(p[spectra.ParamSigma1][1]),
			nullable(chi2), nullable(ndof),
		); err != nil {
			return nil, fmt.Errorf("inserting constants for slot %d: %w", slot, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing calibration run: %w", err)
	}
	return run, nil
}

// ListRuns returns all recorded runs, newest first.
func (s *Store) ListRuns() ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, label, model, created_at, params_json
		FROM calibration_runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing calibration runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		var paramsStr sql.NullString
		if err := rows.Scan(&r.RunID, &r.Label, &r.Model, &r.CreatedAt, &paramsStr); err != nil {
			return nil, fmt.Errorf("scanning calibration run: %w", err)
		}
		if paramsStr.Valid {
			r.ParamsJSON = json.RawMessage(paramsStr.String)
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// Constants returns the per-slot constants of one run, ordered by slot.
func (s *Store) Constants(runID string) ([]*PixelConstants, error) {
	rows, err := s.db.Query(`
		SELECT run_id, slot,
		       mu, mu_err, mu_xt, mu_xt_err, gain, gain_err,
		       baseline, baseline_err, sigma_e, sigma_e_err, sigma_1, sigma_1_err,
		       chi2, ndof
		FROM pixel_constants WHERE run_id = ? ORDER BY slot`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying constants for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []*PixelConstants
	for rows.Next() {
		var c PixelConstants
		var vals [14]sql.NullFloat64
		if err := rows.Scan(
			&c.RunID, &c.Slot,
			&vals[0], &vals[1], &vals[2], &vals[3], &vals[4], &vals[5],
			&vals[6], &vals[7], &vals[8], &vals[9], &vals[10], &vals[11],
			&vals[12], &vals[13],
		); err != nil {
			return nil, fmt.Errorf("scanning constants row: %w", err)
		}
		dst := []*float64{
			&c.Mu, &c.MuErr, &c.MuXT, &c.MuXTErr, &c.Gain, &c.GainErr,
			&c.Baseline, &c.BaseErr, &c.SigmaE, &c.SigmaEE, &c.Sigma1, &c.Sigma1E,
			&c.Chi2, &c.NDOF,
		}
		for i := range vals {
			if vals[i].Valid {
				*dst[i] = vals[i].Float64
			} else {
				*dst[i] = math.NaN()
			}
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// nullable maps NaN to SQL NULL so failed fits stay queryable.
func nullable(v float64) interface{} {
	if math.IsNaN(v) {
		return nil
	}
	return v
}
