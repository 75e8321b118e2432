package eval

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/signalenv/internal/signals"
)

// #region eval-harness
// Harness validates a generated series against the generative model.
type Harness struct {
	config Config
}

// NewHarness creates a harness with the given configuration.
func NewHarness(config Config) *Harness {
	return &Harness{config: config}
}

// Run checks a history/observation pair produced at the given precision.
// posteriorMeans may be nil; when present it is compared to the history.
func (h *Harness) Run(history, observations []float64, precision float64, posteriorMeans []float64) Result {
	var metrics []Metric
	var failReasons []string
	add := func(m Metric, reason string) {
		metrics = append(metrics, m)
		if m.Blocking && !m.Pass {
			failReasons = append(failReasons, reason)
		}
	}

	// 1. Sequence lengths
	lengthPass := len(history) == len(observations)
	add(Metric{Name: "length_match", Value: float64(len(observations)), Pass: lengthPass, Blocking: true},
		fmt.Sprintf("history has %d entries, observations %d", len(history), len(observations)))
	if !lengthPass || len(history) == 0 {
		return finish(metrics, failReasons)
	}

	// 2. Latent bound
	amp := signals.Amplitude()
	peak := math.Max(math.Abs(floats.Max(history)), math.Abs(floats.Min(history)))
	add(Metric{Name: "latent_peak", Value: peak, Pass: peak <= amp, Blocking: true},
		fmt.Sprintf("latent peak %.4f exceeds amplitude %.4f", peak, amp))

	// 3. Residual spread vs 1/sqrt(precision)
	residuals := make([]float64, len(history))
	floats.SubTo(residuals, observations, history)
	if precision > 0 && len(residuals) > 1 {
		expected := 1 / math.Sqrt(precision)
		std := stat.StdDev(residuals, nil)
		ratio := std / expected
		add(Metric{
			Name:     "residual_std_ratio",
			Value:    ratio,
			Pass:     math.Abs(ratio-1) <= h.config.NoiseTolerance,
			Blocking: len(residuals) >= h.config.MinSamples,
		}, fmt.Sprintf("residual std %.4f is %.2fx the expected %.4f", std, ratio, expected))

		mean := stat.Mean(residuals, nil)
		bound := 4 * expected / math.Sqrt(float64(len(residuals)))
		add(Metric{Name: "residual_mean", Value: mean, Pass: math.Abs(mean) <= bound}, "")
	}

	// 4. Posterior tracking (informational)
	if posteriorMeans != nil {
		if len(posteriorMeans) != len(history) {
			add(Metric{Name: "posterior_length", Value: float64(len(posteriorMeans)), Pass: false, Blocking: true},
				fmt.Sprintf("posterior means have %d entries, history %d", len(posteriorMeans), len(history)))
		} else {
			rmse := floats.Distance(posteriorMeans, history, 2) / math.Sqrt(float64(len(history)))
			add(Metric{Name: "posterior_rmse", Value: rmse, Pass: rmse <= h.config.MaxPosteriorRMSE}, "")
		}
	}

	return finish(metrics, failReasons)
}

func finish(metrics []Metric, failReasons []string) Result {
	if len(failReasons) == 0 {
		return Result{Passed: true, Metrics: metrics, Reason: "all checks passed"}
	}
	reason := fmt.Sprintf("eval failed: %s", failReasons[0])
	if len(failReasons) > 1 {
		reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
	}
	return Result{Passed: false, Metrics: metrics, Reason: reason}
}

// #endregion eval-harness
