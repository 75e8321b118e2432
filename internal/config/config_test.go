package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/signalenv/internal/signals"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "signalenv.db", cfg.DBPath)
	assert.Equal(t, 41*time.Millisecond, cfg.Interval)
	assert.Equal(t, "random_walk", cfg.Model)
	assert.Equal(t, signals.DefaultConfig(), cfg.SignalConfig())
	assert.Equal(t, "info", cfg.LoggingOptions().Level)
	assert.Zero(t, cfg.GateConfig().MaxAbsValue)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SIGNALENV_SEED", "0")
	t.Setenv("SIGNALENV_PRECISION", "2.5")
	t.Setenv("SIGNALENV_INITIAL_STATE", "-3")
	t.Setenv("SIGNALENV_INTERVAL", "250ms")
	t.Setenv("SIGNALENV_MODEL", "skill_assessment")
	t.Setenv("SIGNALENV_MQTT_BROKER", "tcp://localhost:1883")
	t.Setenv("SIGNALENV_MQTT_QOS", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, signals.Config{InitialState: -3, ObservationPrecision: 2.5, Seed: 0}, cfg.SignalConfig())
	assert.Equal(t, 250*time.Millisecond, cfg.Interval)
	assert.Equal(t, "skill_assessment", cfg.Model)
	assert.Equal(t, uint8(1), cfg.MQTTQoS)
}

func TestLoad_Unparsable(t *testing.T) {
	t.Setenv("SIGNALENV_SEED", "abc")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"zero precision": {"SIGNALENV_PRECISION", "0"},
		"negative":       {"SIGNALENV_PRECISION", "-1"},
		"bad level":      {"SIGNALENV_LOG_LEVEL", "loud"},
		"bad format":     {"SIGNALENV_LOG_FORMAT", "xml"},
		"qos":            {"SIGNALENV_MQTT_QOS", "2"},
		"unknown model":  {"SIGNALENV_MODEL", "kalman"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			cfg, err := Load()
			require.NoError(t, err)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_AfterOverride(t *testing.T) {
	t.Setenv("SIGNALENV_PRECISION", "0")
	cfg, err := Load()
	require.NoError(t, err)
	require.Error(t, cfg.Validate())

	cfg.Precision = 1
	assert.NoError(t, cfg.Validate())
}
