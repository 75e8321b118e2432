package logging

import (
	"time"

	"github.com/danielpatrickdp/signalenv/internal/update"
)

// #region posterior-entry
// PosteriorEntry is a single row in the posterior_log table.
type PosteriorEntry struct {
	RunID      string
	Step       int
	Posterior  update.Posterior
	FreeEnergy *float64
	CreatedAt  time.Time
}

// #endregion posterior-entry

// #region logger-options
// Options configures NewLogger.
type Options struct {
	Level  string // debug | info | warn | error
	Format string // text | json
	// FilePath, when set, also appends JSON records to this file.
	FilePath string
}

// #endregion logger-options
