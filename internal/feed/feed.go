// Package feed drives a signal environment and fans its samples out to sinks.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/danielpatrickdp/signalenv/internal/engine"
	"github.com/danielpatrickdp/signalenv/internal/signals"
	"github.com/danielpatrickdp/signalenv/internal/telemetry"
)

// DefaultInterval is the live pacing between advances.
const DefaultInterval = 41 * time.Millisecond

// #region batch
// Collect advances env n times and returns the produced samples.
func Collect(env *signals.Environment, n int) []signals.Sample {
	if n <= 0 {
		return nil
	}
	out := make([]signals.Sample, 0, n)
	for range n {
		s := env.Step()
		telemetry.ObserveSample(s)
		out = append(out, s)
	}
	return out
}

// Observations extracts the observation values of samples in order.
func Observations(samples []signals.Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Observation
	}
	return out
}

// Records renders samples as engine records for the model's observed variable.
func Records(model engine.Model, samples []signals.Sample) []engine.Record {
	return engine.RecordsFor(model, Observations(samples))
}

// #endregion batch

// #region live
// Live advances an environment on a fixed cadence and publishes each sample.
type Live struct {
	// Interval between advances; zero means unpaced.
	Interval time.Duration
	// Limit on samples produced; zero means run until cancelled.
	Limit  int
	Sinks  []Sink
	Logger *slog.Logger
}

// Run drives env until ctx ends, Limit is reached, or a sink fails.
// It returns the number of samples produced.
func (l Live) Run(ctx context.Context, env *signals.Environment) (int, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if l.Interval > 0 {
		limiter = rate.NewLimiter(rate.Every(l.Interval), 1)
	}

	logger.Debug("feed started", "interval", l.Interval, "limit", l.Limit, "sinks", len(l.Sinks))
	n := 0
	for l.Limit == 0 || n < l.Limit {
		if ctx.Err() != nil {
			break
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}

		s := env.Step()
		n++
		telemetry.ObserveSample(s)
		for _, sink := range l.Sinks {
			if err := sink.Publish(ctx, s); err != nil {
				name := sinkName(sink)
				telemetry.SinkFailed(name)
				logger.Warn("sink failed", "sink", name, "step", s.Step, "error", err)
				return n, fmt.Errorf("publish step %d to %s: %w", s.Step, name, err)
			}
		}
	}
	logger.Debug("feed stopped", "samples", n)
	return n, nil
}

// #endregion live
