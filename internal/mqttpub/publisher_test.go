package mqttpub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/signalenv/internal/feed"
	"github.com/danielpatrickdp/signalenv/internal/signals"
)

// #region fakes
type fakeToken struct {
	mqtt.Token
	done bool
	err  error
}

func (t *fakeToken) Wait() bool                     { return t.done }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mqtt.Client
	mu       sync.Mutex
	messages []published
	token    *fakeToken
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	if c.token != nil {
		return c.token
	}
	return &fakeToken{done: true}
}

// #endregion fakes

func TestPublish_PayloadShape(t *testing.T) {
	client := &fakeClient{}
	cfg := DefaultConfig()
	cfg.QoS = 1
	p := NewPublisherWithClient(client, cfg, nil)

	err := p.Publish(context.Background(), signals.Sample{Step: 4, State: 4, Latent: 0.5, Observation: 1.25})
	require.NoError(t, err)

	require.Len(t, client.messages, 1)
	msg := client.messages[0]
	assert.Equal(t, "signalenv/samples", msg.topic)
	assert.Equal(t, byte(1), msg.qos)

	var got Message
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, Message{Name: "y", Value: 1.25, Step: 4, Latent: 0.5}, got)
}

func TestPublish_UsesConfiguredName(t *testing.T) {
	client := &fakeClient{}
	cfg := DefaultConfig()
	cfg.Name = "r1"
	p := NewPublisherWithClient(client, cfg, nil)

	require.NoError(t, p.Publish(context.Background(), signals.Sample{Step: 1, Observation: 2}))

	var got Message
	require.NoError(t, json.Unmarshal(client.messages[0].payload, &got))
	assert.Equal(t, "r1", got.Name)

	cfg.Name = ""
	p = NewPublisherWithClient(client, cfg, nil)
	require.NoError(t, p.Publish(context.Background(), signals.Sample{Step: 2}))
	require.NoError(t, json.Unmarshal(client.messages[1].payload, &got))
	assert.Equal(t, "y", got.Name)
}

func TestPublish_AsFeedSink(t *testing.T) {
	client := &fakeClient{}
	env, err := signals.NewEnvironment(signals.DefaultConfig())
	require.NoError(t, err)

	n, err := feed.Live{Limit: 5, Sinks: []feed.Sink{NewPublisherWithClient(client, DefaultConfig(), nil)}}.
		Run(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, client.messages, 5)
}

func TestPublish_Timeout(t *testing.T) {
	client := &fakeClient{token: &fakeToken{done: false}}
	p := NewPublisherWithClient(client, DefaultConfig(), nil)

	err := p.Publish(context.Background(), signals.Sample{Step: 1})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPublish_BrokerError(t *testing.T) {
	boom := errors.New("not authorized")
	client := &fakeClient{token: &fakeToken{done: true, err: boom}}
	p := NewPublisherWithClient(client, DefaultConfig(), nil)

	err := p.Publish(context.Background(), signals.Sample{Step: 1})
	assert.ErrorIs(t, err, boom)
}

func TestPublish_CancelledContext(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisherWithClient(client, DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Publish(ctx, signals.Sample{Step: 1}), context.Canceled)
	assert.Empty(t, client.messages)
}
