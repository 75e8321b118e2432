package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/signalenv/internal/signals"
	"github.com/danielpatrickdp/signalenv/internal/state"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string           `json:"description"`
	Config      FixtureConfig    `json:"config"`
	Expected    []signals.Sample `json:"expected"`
}

// FixtureConfig mirrors state.RunConfig with JSON tags.
type FixtureConfig struct {
	Seed         uint64  `json:"seed"`
	InitialState float64 `json:"initial_state"`
	Precision    float64 `json:"precision"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture serializes f to path.
func WriteFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// FixtureFromRun captures a stored run and its samples.
func FixtureFromRun(run state.Run, samples []signals.Sample, description string) *Fixture {
	return &Fixture{
		Description: description,
		Config: FixtureConfig{
			Seed:         run.Seed,
			InitialState: run.InitialState,
			Precision:    run.Precision,
		},
		Expected: append([]signals.Sample(nil), samples...),
	}
}

// ToRun converts the fixture config to a domain Run.
func (f *Fixture) ToRun() state.Run {
	return state.Run{
		RunID:        "fixture",
		Label:        f.Description,
		Seed:         f.Config.Seed,
		InitialState: f.Config.InitialState,
		Precision:    f.Config.Precision,
		SampleCount:  len(f.Expected),
	}
}

// Replay regenerates the fixture and compares it with the expected samples.
func (f *Fixture) Replay() ([]StepResult, error) {
	return Replay(f.ToRun(), f.Expected)
}

// #endregion fixture-loader
