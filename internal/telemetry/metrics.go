package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/danielpatrickdp/signalenv/internal/signals"
)

// #region collectors

var (
	// samplesTotal counts environment advances published by a feed.
	samplesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "signalenv",
		Subsystem: "environment",
		Name:      "samples_total",
		Help:      "Total samples produced by the signal environment",
	})

	// lastObservation tracks the most recent latent and observed values.
	// Labels: series (latent, observation)
	lastObservation = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "signalenv",
		Subsystem: "environment",
		Name:      "last_value",
		Help:      "Most recent latent and observed value",
	}, []string{"series"})

	// residuals measures observation minus latent.
	residuals = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "signalenv",
		Subsystem: "environment",
		Name:      "residual",
		Help:      "Distribution of observation noise (observation - latent)",
		Buckets:   prometheus.LinearBuckets(-10, 2, 11),
	})

	// engineLatency measures round trips to the inference engine.
	// Labels: method (infer, stream), status (ok, error)
	engineLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "signalenv",
		Subsystem: "engine",
		Name:      "latency_seconds",
		Help:      "Inference engine call latency in seconds",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "status"})

	// engineUpdates counts posterior updates received from live sessions.
	engineUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "signalenv",
		Subsystem: "engine",
		Name:      "updates_total",
		Help:      "Total posterior updates received from streaming sessions",
	})

	// gateRejects counts records refused before reaching the engine.
	// Labels: veto (non_finite, name_mismatch, out_of_range)
	gateRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signalenv",
		Subsystem: "gate",
		Name:      "rejects_total",
		Help:      "Total observation records rejected by the gate",
	}, []string{"veto"})

	// sinkErrors counts publish failures per sink.
	// Labels: sink
	sinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signalenv",
		Subsystem: "feed",
		Name:      "sink_errors_total",
		Help:      "Total sample publish failures by sink",
	}, []string{"sink"})
)

// #endregion collectors

// #region recorders

// ObserveSample records one produced sample.
func ObserveSample(s signals.Sample) {
	samplesTotal.Inc()
	lastObservation.WithLabelValues("latent").Set(s.Latent)
	lastObservation.WithLabelValues("observation").Set(s.Observation)
	residuals.Observe(s.Observation - s.Latent)
}

// ObserveEngineCall records the latency and outcome of an engine call.
func ObserveEngineCall(method string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	engineLatency.WithLabelValues(method, status).Observe(elapsed.Seconds())
}

// ObserveEngineUpdate records one streamed posterior update.
func ObserveEngineUpdate() {
	engineUpdates.Inc()
}

// GateRejected records a refused record by veto type.
func GateRejected(veto string) {
	gateRejects.WithLabelValues(veto).Inc()
}

// SinkFailed records a publish failure for the named sink.
func SinkFailed(sink string) {
	sinkErrors.WithLabelValues(sink).Inc()
}

// #endregion recorders
