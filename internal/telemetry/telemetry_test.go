package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/signalenv/internal/signals"
)

func TestObserveSample(t *testing.T) {
	before := testutil.ToFloat64(samplesTotal)
	ObserveSample(signals.Sample{Step: 1, State: 1, Latent: 0.5, Observation: 1.25})

	assert.Equal(t, before+1, testutil.ToFloat64(samplesTotal))
	assert.Equal(t, 0.5, testutil.ToFloat64(lastObservation.WithLabelValues("latent")))
	assert.Equal(t, 1.25, testutil.ToFloat64(lastObservation.WithLabelValues("observation")))
}

func TestGateRejected(t *testing.T) {
	before := testutil.ToFloat64(gateRejects.WithLabelValues("non_finite"))
	GateRejected("non_finite")
	GateRejected("non_finite")
	assert.Equal(t, before+2, testutil.ToFloat64(gateRejects.WithLabelValues("non_finite")))
}

func TestSinkFailed(t *testing.T) {
	before := testutil.ToFloat64(sinkErrors.WithLabelValues("mqtt"))
	SinkFailed("mqtt")
	assert.Equal(t, before+1, testutil.ToFloat64(sinkErrors.WithLabelValues("mqtt")))
}

func TestObserveEngineCall(t *testing.T) {
	ObserveEngineCall("infer", 20*time.Millisecond, nil)
	ObserveEngineCall("infer", time.Second, errors.New("unavailable"))
	assert.Equal(t, 2, testutil.CollectAndCount(engineLatency))
}

func TestSetupTracing_Disabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "signalenv-test", "")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	assert.NotNil(t, Tracer())
}
