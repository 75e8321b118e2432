package signals

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"
)

// #region constants

const (
	amplitude = 10.0
	frequency = 0.1

	// pcgStream is the second PCG word; the seed supplies the first.
	pcgStream uint64 = 0x5eed5eed5eed5eed
)

// #endregion constants

// #region environment

// Environment produces noisy observations of a sinusoidal latent signal.
// It owns its random source, so two environments built from the same
// Config emit identical sequences regardless of interleaving.
type Environment struct {
	mu sync.Mutex

	cfg   Config
	src   rand.Source
	noise distuv.Normal

	state        float64
	history      []float64
	observations []float64
}

// NewEnvironment builds an Environment seeded from cfg.Seed.
func NewEnvironment(cfg Config) (*Environment, error) {
	return NewEnvironmentWithSource(cfg, rand.NewPCG(cfg.Seed, pcgStream))
}

// NewEnvironmentWithSource builds an Environment drawing from src.
// The caller must not share src with anything else.
func NewEnvironmentWithSource(cfg Config, src rand.Source) (*Environment, error) {
	p := cfg.ObservationPrecision
	if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
		return nil, fmt.Errorf("%w: observation precision must be a positive finite number, got %v", ErrInvalidParameter, p)
	}
	if math.IsNaN(cfg.InitialState) || math.IsInf(cfg.InitialState, 0) {
		return nil, fmt.Errorf("%w: initial state must be finite, got %v", ErrInvalidParameter, cfg.InitialState)
	}
	if src == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidParameter)
	}
	return &Environment{
		cfg:   cfg,
		src:   src,
		noise: distuv.Normal{Mu: 0, Sigma: 1 / math.Sqrt(p), Src: src},
		state: cfg.InitialState,
	}, nil
}

// #endregion environment

// #region advance

// Advance moves the environment one step and returns the noisy observation.
func (e *Environment) Advance() float64 {
	return e.Step().Observation
}

// Step moves the environment one step and returns the full sample.
func (e *Environment) Step() Sample {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state += 1.0
	latent := LatentAt(e.state)

	n := e.noise
	n.Mu = latent
	obs := n.Rand()

	e.history = append(e.history, latent)
	e.observations = append(e.observations, obs)

	return Sample{
		Step:        len(e.history),
		State:       e.state,
		Latent:      latent,
		Observation: obs,
	}
}

// LatentAt returns the noise-free signal at step counter x.
func LatentAt(x float64) float64 {
	return amplitude * math.Sin(frequency*x)
}

// Amplitude bounds the latent signal to [-Amplitude, Amplitude].
func Amplitude() float64 {
	return amplitude
}

// #endregion advance

// #region accessors

// History returns a copy of the latent values produced so far.
func (e *Environment) History() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.history...)
}

// Observations returns a copy of the noisy samples produced so far.
func (e *Environment) Observations() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.observations...)
}

// Snapshot returns both sequences taken under a single lock.
func (e *Environment) Snapshot() (history, observations []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.history...), append([]float64(nil), e.observations...)
}

// State returns the current step counter.
func (e *Environment) State() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Len returns how many times the environment has advanced.
func (e *Environment) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.history)
}

// Precision returns the configured observation precision.
func (e *Environment) Precision() float64 {
	return e.cfg.ObservationPrecision
}

// Seed returns the configured seed.
func (e *Environment) Seed() uint64 {
	return e.cfg.Seed
}

// Config returns the construction parameters.
func (e *Environment) Config() Config {
	return e.cfg
}

// #endregion accessors
