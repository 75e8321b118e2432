package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/signalenv/internal/signals"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	label         TEXT,
	seed          INTEGER NOT NULL,
	initial_state REAL NOT NULL,
	precision     REAL NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS samples (
	run_id      TEXT NOT NULL,
	step        INTEGER NOT NULL,
	state       REAL NOT NULL,
	latent      REAL NOT NULL,
	observation REAL NOT NULL,
	PRIMARY KEY (run_id, step),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS posterior_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	step         INTEGER NOT NULL,
	variable     TEXT NOT NULL,
	family       TEXT NOT NULL,
	params_json  TEXT NOT NULL,
	free_energy  REAL,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// #endregion schema

// #region store-struct
// Store persists runs and their samples in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region create-run
// CreateRun registers a new run and returns it.
func (s *Store) CreateRun(cfg RunConfig) (Run, error) {
	run := Run{
		RunID:        uuid.New().String(),
		Label:        cfg.Label,
		Seed:         cfg.Seed,
		InitialState: cfg.InitialState,
		Precision:    cfg.Precision,
		CreatedAt:    time.Now().UTC(),
	}

	var label any
	if run.Label != "" {
		label = run.Label
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, label, seed, initial_state, precision, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, label, int64(run.Seed), run.InitialState, run.Precision,
		run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// #endregion create-run

// #region get-run
const runColumns = `r.run_id, r.label, r.seed, r.initial_state, r.precision, r.created_at,
	(SELECT COUNT(*) FROM samples s WHERE s.run_id = r.run_id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var label sql.NullString
	var seed int64
	var createdStr string
	if err := row.Scan(&run.RunID, &label, &seed, &run.InitialState, &run.Precision, &createdStr, &run.SampleCount); err != nil {
		return Run{}, err
	}
	run.Label = label.String
	run.Seed = uint64(seed)
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return run, nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (Run, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs r WHERE r.run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// LatestRun returns the most recently created run.
func (s *Store) LatestRun() (Run, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT ` + runColumns + ` FROM runs r ORDER BY r.created_at DESC, r.rowid DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("latest run: %w", ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

// #endregion get-run

// #region list-runs
// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT `+runColumns+` FROM runs r ORDER BY r.created_at DESC, r.rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// #endregion list-runs

// #region samples
// AppendSample stores one sample of a run.
func (s *Store) AppendSample(runID string, sample signals.Sample) error {
	_, err := s.db.Exec(
		`INSERT INTO samples (run_id, step, state, latent, observation) VALUES (?, ?, ?, ?, ?)`,
		runID, sample.Step, sample.State, sample.Latent, sample.Observation,
	)
	if err != nil {
		return fmt.Errorf("append sample %d: %w", sample.Step, err)
	}
	return nil
}

// AppendSamples stores a batch of samples in one transaction.
func (s *Store) AppendSamples(runID string, samples []signals.Sample) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO samples (run_id, step, state, latent, observation) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, sample := range samples {
		if _, err := stmt.Exec(runID, sample.Step, sample.State, sample.Latent, sample.Observation); err != nil {
			return fmt.Errorf("append sample %d: %w", sample.Step, err)
		}
	}
	return tx.Commit()
}

// Samples returns every sample of a run ordered by step.
func (s *Store) Samples(runID string) ([]signals.Sample, error) {
	rows, err := s.db.Query(
		`SELECT step, state, latent, observation FROM samples WHERE run_id = ? ORDER BY step`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	var out []signals.Sample
	for rows.Next() {
		var sample signals.Sample
		if err := rows.Scan(&sample.Step, &sample.State, &sample.Latent, &sample.Observation); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, sample)
	}
	return out, rows.Err()
}

// #endregion samples

// #region posteriors
// Posteriors returns the posterior log of a run in insertion order.
func (s *Store) Posteriors(runID string) ([]PosteriorRow, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, step, variable, family, params_json, free_energy, created_at
		 FROM posterior_log WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list posteriors: %w", err)
	}
	defer rows.Close()

	var out []PosteriorRow
	for rows.Next() {
		var row PosteriorRow
		var fe sql.NullFloat64
		var createdStr string
		if err := rows.Scan(&row.ID, &row.RunID, &row.Step, &row.Variable, &row.Family, &row.ParamsJSON, &fe, &createdStr); err != nil {
			return nil, fmt.Errorf("scan posterior: %w", err)
		}
		if fe.Valid {
			v := fe.Float64
			row.FreeEnergy = &v
		}
		row.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, row)
	}
	return out, rows.Err()
}

// #endregion posteriors

// #region recorder
// Recorder appends every published sample to one run.
type Recorder struct {
	store *Store
	runID string
}

// NewRecorder creates a sink bound to runID.
func NewRecorder(store *Store, runID string) *Recorder {
	return &Recorder{store: store, runID: runID}
}

// Name reports the sink label used in metrics.
func (r *Recorder) Name() string { return "store" }

// Publish stores s.
func (r *Recorder) Publish(_ context.Context, s signals.Sample) error {
	return r.store.AppendSample(r.runID, s)
}

// #endregion recorder
