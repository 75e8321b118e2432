package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielpatrickdp/signalenv/internal/engine"
	"github.com/danielpatrickdp/signalenv/internal/gate"
	"github.com/danielpatrickdp/signalenv/internal/signals"
	"github.com/danielpatrickdp/signalenv/internal/telemetry"
)

var (
	// ErrRejected is returned by ChannelSink when the gate vetoes a record.
	ErrRejected = errors.New("record rejected")
	// ErrSessionEnded is returned by ChannelSink once the engine session it
	// feeds has finished.
	ErrSessionEnded = errors.New("engine session ended")
)

// #region sink
// Sink receives each sample a feed produces.
type Sink interface {
	Publish(ctx context.Context, s signals.Sample) error
}

// Named is implemented by sinks that report a metrics label.
type Named interface {
	Name() string
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, s signals.Sample) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, s signals.Sample) error {
	return f(ctx, s)
}

func sinkName(s Sink) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

// #endregion sink

// #region channel-sink
// ChannelSink forwards each sample as a record into an engine subscription.
type ChannelSink struct {
	Model engine.Model
	// Gate, when set, screens every record before it is forwarded.
	Gate *gate.Gate
	Out  chan<- engine.Record
	// Done, when set, is closed once nothing reads Out any more,
	// normally engine.Subscription.Done.
	Done <-chan struct{}
}

// Name implements Named.
func (c ChannelSink) Name() string { return "engine" }

// Publish blocks until the record is accepted, the session ends or ctx ends.
func (c ChannelSink) Publish(ctx context.Context, s signals.Sample) error {
	select {
	case <-c.Done:
		return ErrSessionEnded
	default:
	}
	rec := engine.Record{Name: c.Model.Primary(), Value: s.Observation}
	if c.Gate != nil {
		d := c.Gate.Evaluate(c.Model, rec)
		if !d.Accepted() {
			for _, v := range d.VetoSignals {
				telemetry.GateRejected(string(v.Type))
			}
			return fmt.Errorf("%w: %s", ErrRejected, d.Reason)
		}
	}
	select {
	case c.Out <- rec:
		return nil
	case <-c.Done:
		return ErrSessionEnded
	case <-ctx.Done():
		return ctx.Err()
	}
}

// #endregion channel-sink
