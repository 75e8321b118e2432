// Package mqttpub publishes environment samples to an MQTT broker.
package mqttpub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/danielpatrickdp/signalenv/internal/signals"
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqtt timeout")

// #region config
// Config describes the broker connection.
type Config struct {
	Broker   string
	ClientID string
	Topic    string
	// Name is the variable name carried in each payload, normally the
	// model's observed variable.
	Name           string
	QoS            byte
	KeepAlive      time.Duration
	PublishTimeout time.Duration
}

// DefaultConfig returns settings for a local broker.
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		ClientID:       "signalenv",
		Topic:          "signalenv/samples",
		Name:           "y",
		QoS:            0,
		KeepAlive:      30 * time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

// #endregion config

// #region message
// Message is the JSON payload of one published sample.
type Message struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Step   int     `json:"step"`
	Latent float64 `json:"latent"`
}

// #endregion message

// #region publisher
// Publisher is a feed sink writing each sample to one topic.
type Publisher struct {
	client  mqtt.Client
	cfg     Config
	logger  *slog.Logger
	ownConn bool
}

// Connect dials the broker and returns a publisher that owns the connection.
func Connect(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetPingTimeout(10 * time.Second)
	opts.AutoReconnect = true
	opts.CleanSession = true
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.PublishTimeout) {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	logger.Info("mqtt connected", "broker", cfg.Broker, "topic", cfg.Topic)

	p := NewPublisherWithClient(client, cfg, logger)
	p.ownConn = true
	return p, nil
}

// NewPublisherWithClient wraps an already connected client.
func NewPublisherWithClient(client mqtt.Client, cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultConfig().PublishTimeout
	}
	if cfg.Name == "" {
		cfg.Name = DefaultConfig().Name
	}
	return &Publisher{client: client, cfg: cfg, logger: logger}
}

// Name implements feed.Named.
func (p *Publisher) Name() string { return "mqtt" }

// Publish implements feed.Sink.
func (p *Publisher) Publish(ctx context.Context, s signals.Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(Message{Name: p.cfg.Name, Value: s.Observation, Step: s.Step, Latent: s.Latent})
	if err != nil {
		return fmt.Errorf("marshal sample %d: %w", s.Step, err)
	}

	token := p.client.Publish(p.cfg.Topic, p.cfg.QoS, false, payload)
	if !token.WaitTimeout(p.cfg.PublishTimeout) {
		return fmt.Errorf("publish %s: %w", p.cfg.Topic, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", p.cfg.Topic, err)
	}
	p.logger.Debug("mqtt published", "topic", p.cfg.Topic, "step", s.Step)
	return nil
}

// Close disconnects when the publisher owns the connection.
func (p *Publisher) Close() {
	if p.ownConn {
		p.client.Disconnect(250)
	}
}

// #endregion publisher
