package replay

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/signalenv/internal/signals"
	"github.com/danielpatrickdp/signalenv/internal/state"
)

// #region types
// StepResult compares one recorded sample with its regenerated twin.
type StepResult struct {
	Step     int            `json:"step"`
	Expected signals.Sample `json:"expected"`
	Actual   signals.Sample `json:"actual"`
	Match    bool           `json:"match"`
	Reason   string         `json:"reason,omitempty"`
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	Total    int `json:"total"`
	Matches  int `json:"matches"`
	Diverged int `json:"diverged"`
	// FirstDivergence is the step of the first mismatch, or 0.
	FirstDivergence int `json:"first_divergence,omitempty"`
}

// OK reports whether every step matched.
func (s Summary) OK() bool { return s.Diverged == 0 }

// #endregion types

// #region replay
// Replay rebuilds the environment of run and regenerates every recorded
// step. Values are compared bit for bit.
func Replay(run state.Run, samples []signals.Sample) ([]StepResult, error) {
	env, err := signals.NewEnvironment(run.SignalConfig())
	if err != nil {
		return nil, fmt.Errorf("replay run %s: %w", run.RunID, err)
	}

	results := make([]StepResult, 0, len(samples))
	for _, expected := range samples {
		if expected.Step <= env.Len() {
			results = append(results, StepResult{
				Step:     expected.Step,
				Expected: expected,
				Reason:   fmt.Sprintf("step %d is not after %d", expected.Step, env.Len()),
			})
			continue
		}
		var actual signals.Sample
		for env.Len() < expected.Step {
			actual = env.Step()
		}
		r := StepResult{Step: expected.Step, Expected: expected, Actual: actual, Match: true}
		if reason := compare(expected, actual); reason != "" {
			r.Match = false
			r.Reason = reason
		}
		results = append(results, r)
	}
	return results, nil
}

func compare(expected, actual signals.Sample) string {
	switch {
	case !sameBits(expected.State, actual.State):
		return fmt.Sprintf("state %v != %v", expected.State, actual.State)
	case !sameBits(expected.Latent, actual.Latent):
		return fmt.Sprintf("latent %v != %v", expected.Latent, actual.Latent)
	case !sameBits(expected.Observation, actual.Observation):
		return fmt.Sprintf("observation %v != %v", expected.Observation, actual.Observation)
	}
	return ""
}

func sameBits(a, b float64) bool {
	return math.Float64bits(a) == math.Float64bits(b)
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []StepResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Match {
			s.Matches++
			continue
		}
		s.Diverged++
		if s.FirstDivergence == 0 {
			s.FirstDivergence = r.Step
		}
	}
	return s
}

// #endregion replay
