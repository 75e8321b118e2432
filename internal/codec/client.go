package codec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/signalenv/internal/engine"
	"github.com/danielpatrickdp/signalenv/internal/telemetry"
)

// #region client-struct
// EngineClient implements engine.Engine against a remote inference service.
type EngineClient struct {
	conn   *grpc.ClientConn
	buffer int
}

// #endregion client-struct

var _ engine.Engine = (*EngineClient)(nil)

// #region constructor
// NewEngineClient connects to the inference gRPC server at addr.
func NewEngineClient(addr string) (*EngineClient, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return NewEngineClientWithConn(conn), nil
}

// NewEngineClientWithConn wraps an existing connection.
// Used for testing over an in-memory listener.
func NewEngineClientWithConn(conn *grpc.ClientConn) *EngineClient {
	return &EngineClient{conn: conn, buffer: 64}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *EngineClient) Close() error {
	return c.conn.Close()
}

// #endregion close

// #region wait-ready
// WaitReady blocks until the health service reports SERVING or ctx ends.
func (c *EngineClient) WaitReady(ctx context.Context) error {
	health := grpc_health_v1.NewHealthClient(c.conn)
	backoff := 100 * time.Millisecond
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		resp, err := health.Check(callCtx, &grpc_health_v1.HealthCheckRequest{})
		cancel()
		if err == nil && resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for engine: %w", ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < time.Second {
			backoff = min(backoff*2, time.Second)
		}
	}
}

// #endregion wait-ready

// #region infer
// Infer sends one batch inference request.
func (c *EngineClient) Infer(ctx context.Context, req engine.Request) (engine.Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "engine.infer")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", req.Model.Name),
		attribute.Int("records", len(req.Records)),
	)

	start := time.Now()
	res, err := c.infer(ctx, req)
	telemetry.ObserveEngineCall("infer", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return engine.Result{}, err
	}
	return res, nil
}

func (c *EngineClient) infer(ctx context.Context, req engine.Request) (engine.Result, error) {
	in, err := toStruct(toWireRequest(req))
	if err != nil {
		return engine.Result{}, fmt.Errorf("infer: %w", err)
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodInfer, in, out); err != nil {
		return engine.Result{}, fmt.Errorf("infer rpc: %w", err)
	}
	var wr wireResult
	if err := fromStruct(out, &wr); err != nil {
		return engine.Result{}, fmt.Errorf("infer: %w", err)
	}
	return engine.Result{Posteriors: wr.Posteriors, FreeEnergy: wr.FreeEnergy}, nil
}

// #endregion infer

// #region subscribe
var streamDesc = grpc.StreamDesc{
	StreamName:    "Stream",
	ServerStreams: true,
	ClientStreams: true,
}

// Subscribe opens a streaming inference session. Records read from the
// channel are forwarded until it closes or the subscription is stopped.
func (c *EngineClient) Subscribe(ctx context.Context, req engine.StreamRequest, records <-chan engine.Record) (*engine.Subscription, error) {
	sub, sctx := engine.NewSubscription(ctx, c.buffer)

	start := time.Now()
	stream, err := c.conn.NewStream(sctx, &streamDesc, methodStream)
	if err != nil {
		telemetry.ObserveEngineCall("subscribe", time.Since(start), err)
		sub.Stop()
		return nil, fmt.Errorf("open stream: %w", err)
	}
	open, err := toStruct(streamFrame{Kind: "open", Open: toWireStreamRequest(req)})
	if err == nil {
		err = stream.SendMsg(open)
	}
	telemetry.ObserveEngineCall("subscribe", time.Since(start), err)
	if err != nil {
		sub.Stop()
		return nil, fmt.Errorf("open stream: %w", err)
	}

	go forwardRecords(sctx, stream, records)
	go receiveUpdates(sctx, stream, sub)
	return sub, nil
}

func forwardRecords(ctx context.Context, stream grpc.ClientStream, records <-chan engine.Record) {
	defer stream.CloseSend()
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-records:
			if !ok {
				return
			}
			msg, err := toStruct(streamFrame{Kind: "record", Record: &rec})
			if err != nil {
				return
			}
			if err := stream.SendMsg(msg); err != nil {
				return
			}
		}
	}
}

func receiveUpdates(ctx context.Context, stream grpc.ClientStream, sub *engine.Subscription) {
	for {
		msg := &structpb.Struct{}
		err := stream.RecvMsg(msg)
		if errors.Is(err, io.EOF) {
			sub.Close(nil)
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				sub.Close(ctx.Err())
			} else {
				sub.Close(fmt.Errorf("stream recv: %w", err))
			}
			return
		}
		var frame streamFrame
		if err := fromStruct(msg, &frame); err != nil {
			sub.Close(fmt.Errorf("stream: %w", err))
			return
		}
		if frame.Kind != "update" || frame.Update == nil {
			sub.Close(fmt.Errorf("stream: unexpected frame %q", frame.Kind))
			return
		}
		telemetry.ObserveEngineUpdate()
		if !sub.Send(*frame.Update) {
			sub.Close(nil)
			return
		}
	}
}

// #endregion subscribe
