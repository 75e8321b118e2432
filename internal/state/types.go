package state

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/signalenv/internal/signals"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("run not found")

// #region run-config
// RunConfig is everything needed to regenerate a run.
type RunConfig struct {
	Label        string
	Seed         uint64
	InitialState float64
	Precision    float64
}

// RunConfigFrom captures an environment configuration.
func RunConfigFrom(label string, cfg signals.Config) RunConfig {
	return RunConfig{
		Label:        label,
		Seed:         cfg.Seed,
		InitialState: cfg.InitialState,
		Precision:    cfg.ObservationPrecision,
	}
}

// #endregion run-config

// #region run
// Run is one recorded environment session.
type Run struct {
	RunID        string    `json:"run_id"`
	Label        string    `json:"label,omitempty"`
	Seed         uint64    `json:"seed"`
	InitialState float64   `json:"initial_state"`
	Precision    float64   `json:"precision"`
	CreatedAt    time.Time `json:"created_at"`
	SampleCount  int       `json:"sample_count"`
}

// SignalConfig rebuilds the environment configuration of the run.
func (r Run) SignalConfig() signals.Config {
	return signals.Config{
		InitialState:         r.InitialState,
		ObservationPrecision: r.Precision,
		Seed:                 r.Seed,
	}
}

// #endregion run

// #region posterior-row
// PosteriorRow is one entry of the posterior log.
type PosteriorRow struct {
	ID         int64
	RunID      string
	Step       int
	Variable   string
	Family     string
	ParamsJSON string
	FreeEnergy *float64
	CreatedAt  time.Time
}

// #endregion posterior-row
