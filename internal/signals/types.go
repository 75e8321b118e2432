package signals

import "errors"

// #region errors

// ErrInvalidParameter is returned when an environment is configured with an
// unusable parameter. Callers match it with errors.Is.
var ErrInvalidParameter = errors.New("invalid parameter")

// #endregion errors

// #region config

// DefaultSeed keeps runs reproducible when no seed is supplied.
const DefaultSeed uint64 = 123

// Config holds construction parameters for an Environment.
type Config struct {
	InitialState         float64 // starting value of the step counter
	ObservationPrecision float64 // inverse variance of the observation noise, must be > 0
	Seed                 uint64
}

// DefaultConfig returns the configuration used by the streaming demo.
func DefaultConfig() Config {
	return Config{
		InitialState:         0,
		ObservationPrecision: 0.1,
		Seed:                 DefaultSeed,
	}
}

// #endregion config

// #region sample

// Sample is the outcome of a single advance.
type Sample struct {
	Step        int     `json:"step"`  // 1-based advance index
	State       float64 `json:"state"` // step counter after the advance
	Latent      float64 `json:"latent"`
	Observation float64 `json:"observation"`
}

// #endregion sample
