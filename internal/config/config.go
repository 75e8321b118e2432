// Package config loads runtime settings from SIGNALENV_* environment variables.
package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/danielpatrickdp/signalenv/internal/engine"
	"github.com/danielpatrickdp/signalenv/internal/gate"
	"github.com/danielpatrickdp/signalenv/internal/logging"
	"github.com/danielpatrickdp/signalenv/internal/signals"
)

var validate = validator.New()

// Config is the process configuration. CLI flags override these values.
type Config struct {
	DBPath    string `env:"SIGNALENV_DB"         envDefault:"signalenv.db" validate:"required"`
	LogLevel  string `env:"SIGNALENV_LOG_LEVEL"  envDefault:"info"         validate:"oneof=debug info warn error"`
	LogFormat string `env:"SIGNALENV_LOG_FORMAT" envDefault:"text"         validate:"oneof=text json"`
	LogFile   string `env:"SIGNALENV_LOG_FILE"`

	Seed         uint64  `env:"SIGNALENV_SEED"          envDefault:"123"`
	InitialState float64 `env:"SIGNALENV_INITIAL_STATE" envDefault:"0"`
	Precision    float64 `env:"SIGNALENV_PRECISION"     envDefault:"0.1" validate:"gt=0"`

	Interval    time.Duration `env:"SIGNALENV_INTERVAL"      envDefault:"41ms" validate:"gte=0"`
	MaxAbsValue float64       `env:"SIGNALENV_GATE_MAX_ABS"  envDefault:"0"    validate:"gte=0"`

	EngineAddr string `env:"SIGNALENV_ENGINE_ADDR"`
	Model      string `env:"SIGNALENV_MODEL" envDefault:"random_walk" validate:"required"`

	HTTPAddr   string `env:"SIGNALENV_HTTP_ADDR"`
	MQTTBroker string `env:"SIGNALENV_MQTT_BROKER" validate:"omitempty,url"`
	MQTTTopic  string `env:"SIGNALENV_MQTT_TOPIC"  envDefault:"signalenv/samples" validate:"required"`
	MQTTQoS    uint8  `env:"SIGNALENV_MQTT_QOS"    envDefault:"0" validate:"lte=1"`

	OTLPEndpoint string `env:"SIGNALENV_OTLP_ENDPOINT"`
}

// Load parses the environment. Validation is left to the caller so flag
// overrides can be applied first.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints and that the model is in the catalog.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !slices.Contains(engine.ModelNames(), c.Model) {
		return fmt.Errorf("invalid config: unknown model %q", c.Model)
	}
	return nil
}

// SignalConfig returns the environment parameters.
func (c Config) SignalConfig() signals.Config {
	return signals.Config{
		InitialState:         c.InitialState,
		ObservationPrecision: c.Precision,
		Seed:                 c.Seed,
	}
}

// LoggingOptions returns the logger settings.
func (c Config) LoggingOptions() logging.Options {
	return logging.Options{Level: c.LogLevel, Format: c.LogFormat, FilePath: c.LogFile}
}

// GateConfig returns the record gate thresholds.
func (c Config) GateConfig() gate.GateConfig {
	return gate.GateConfig{MaxAbsValue: c.MaxAbsValue}
}
