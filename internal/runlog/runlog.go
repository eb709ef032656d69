// Package runlog keeps a local registry of experiment runs and their
// per-epoch metrics in a sqlite database, so results survive the process
// and can be compared across runs.
package runlog

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	model       TEXT NOT NULL,
	mode        TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	config_json TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS epochs (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	epoch       INTEGER NOT NULL,
	split       TEXT NOT NULL,
	loss        REAL NOT NULL,
	accuracy    REAL,
	recorded_at TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, epoch, split)
);
`

// Store is an open run registry.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the registry at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open runlog")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate runlog")
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun registers a new run and returns its id. config is stored as JSON
// for later inspection.
func (s *Store) StartRun(model, mode string, config any) (string, error) {
	cfgJSON, err := json.Marshal(config)
	if err != nil {
		return "", errors.Wrap(err, "marshal run config")
	}
	id := uuid.NewString()
	_, err = s.db.Exec(
		`INSERT INTO runs (id, model, mode, started_at, config_json) VALUES (?, ?, ?, ?, ?)`,
		id, model, mode, time.Now().UTC(), string(cfgJSON),
	)
	if err != nil {
		return "", errors.Wrap(err, "insert run")
	}
	return id, nil
}

// FinishRun stamps the run's end time.
func (s *Store) FinishRun(runID string) error {
	_, err := s.db.Exec(`UPDATE runs SET finished_at = ? WHERE id = ?`, time.Now().UTC(), runID)
	return errors.Wrap(err, "finish run")
}

// RecordEpoch stores one epoch's metrics for a split. Accuracy below zero
// is stored as NULL (pretraining has no accuracy).
func (s *Store) RecordEpoch(runID string, epoch int, split string, loss, accuracy float64) error {
	var acc any
	if accuracy >= 0 {
		acc = accuracy
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO epochs (run_id, epoch, split, loss, accuracy, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, epoch, split, loss, acc, time.Now().UTC(),
	)
	return errors.Wrap(err, "record epoch")
}

// RunRecord is one registered run.
type RunRecord struct {
	ID       string
	Model    string
	Mode     string
	Finished bool
}

// Runs lists every registered run, oldest first.
func (s *Store) Runs() ([]RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, model, mode, finished_at IS NOT NULL FROM runs ORDER BY started_at, id`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.ID, &rec.Model, &rec.Mode, &rec.Finished); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate runs")
}

// EpochRecord is one stored metric row.
type EpochRecord struct {
	Epoch    int
	Split    string
	Loss     float64
	Accuracy float64 // -1 when not recorded
}

// Epochs returns the stored metrics of a run ordered by epoch then split.
func (s *Store) Epochs(runID string) ([]EpochRecord, error) {
	rows, err := s.db.Query(
		`SELECT epoch, split, loss, accuracy FROM epochs WHERE run_id = ? ORDER BY epoch, split`,
		runID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query epochs")
	}
	defer rows.Close()

	var out []EpochRecord
	for rows.Next() {
		var rec EpochRecord
		var acc sql.NullFloat64
		if err := rows.Scan(&rec.Epoch, &rec.Split, &rec.Loss, &acc); err != nil {
			return nil, errors.Wrap(err, "scan epoch")
		}
		if acc.Valid {
			rec.Accuracy = acc.Float64
		} else {
			rec.Accuracy = -1
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate epochs")
}
