package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/danielpatrickdp/signalenv/internal/engine"
)

// #region log-posterior
// LogPosterior writes one posterior to the posterior_log table.
func LogPosterior(db *sql.DB, entry PosteriorEntry) error {
	if err := insertPosterior(db, entry); err != nil {
		return fmt.Errorf("log posterior: %w", err)
	}
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertPosterior(db execer, entry PosteriorEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	params, err := json.Marshal(entry.Posterior.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	_, err = db.Exec(
		`INSERT INTO posterior_log (run_id, step, variable, family, params_json, free_energy, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.Step,
		entry.Posterior.Variable,
		string(entry.Posterior.Family),
		string(params),
		nullIfNil(entry.FreeEnergy),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// #endregion log-posterior

// #region log-update
// LogUpdate writes every posterior of a streamed update atomically,
// ordered by variable name.
func LogUpdate(db *sql.DB, runID string, step int, u engine.Update) error {
	names := make([]string, 0, len(u.Posteriors))
	for name := range u.Posteriors {
		names = append(names, name)
	}
	sort.Strings(names)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("log update: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, name := range names {
		p := u.Posteriors[name]
		if p.Variable == "" {
			p.Variable = name
		}
		entry := PosteriorEntry{RunID: runID, Step: step, Posterior: p, FreeEnergy: u.FreeEnergy, CreatedAt: now}
		if err := insertPosterior(tx, entry); err != nil {
			return fmt.Errorf("log update %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("log update: commit: %w", err)
	}
	return nil
}

// #endregion log-update

// #region helpers
func nullIfNil(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// #endregion helpers
