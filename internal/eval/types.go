package eval

// #region eval-config
// Config holds thresholds for validating a generated series.
type Config struct {
	NoiseTolerance   float64 // allowed relative error of the residual std
	MinSamples       int     // below this the noise check is informational
	MaxPosteriorRMSE float64 // informational bound on posterior-mean error
}

// DefaultConfig returns the thresholds used by the CLI.
func DefaultConfig() Config {
	return Config{
		NoiseTolerance:   0.25,
		MinSamples:       100,
		MaxPosteriorRMSE: 2.0,
	}
}

// #endregion eval-config

// #region eval-metric
// Metric captures a single validation check result.
type Metric struct {
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
	Pass     bool    `json:"pass"`
	Blocking bool    `json:"blocking"`
}

// #endregion eval-metric

// #region eval-result
// Result is the output of a validation run.
type Result struct {
	Passed  bool     `json:"passed"`
	Metrics []Metric `json:"metrics"`
	Reason  string   `json:"reason"`
}

// Metric returns the named metric.
func (r Result) Metric(name string) (Metric, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

// #endregion eval-result
