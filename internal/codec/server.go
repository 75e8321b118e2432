package codec

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/signalenv/internal/engine"
)

// #region service-desc
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*engine.Engine)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Infer", Handler: inferHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Stream", Handler: streamHandler, ServerStreams: true, ClientStreams: true},
	},
	Metadata: "signalenv/inference/v1/engine.proto",
}

// RegisterEngineServer exposes an engine.Engine on a gRPC server.
func RegisterEngineServer(s grpc.ServiceRegistrar, eng engine.Engine) {
	s.RegisterService(&serviceDesc, eng)
}

// #endregion service-desc

// #region infer-handler
func inferHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		return serveInfer(ctx, srv.(engine.Engine), req.(*structpb.Struct))
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodInfer}
	return interceptor(ctx, in, info, call)
}

func serveInfer(ctx context.Context, eng engine.Engine, in *structpb.Struct) (*structpb.Struct, error) {
	var wr wireRequest
	if err := fromStruct(in, &wr); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "infer: %v", err)
	}
	res, err := eng.Infer(ctx, wr.toRequest())
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := toStruct(wireResult{Posteriors: res.Posteriors, FreeEnergy: res.FreeEnergy})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "infer: %v", err)
	}
	return out, nil
}

// #endregion infer-handler

// #region stream-handler
func streamHandler(srv any, stream grpc.ServerStream) error {
	eng := srv.(engine.Engine)

	first := &structpb.Struct{}
	if err := stream.RecvMsg(first); err != nil {
		return err
	}
	var open streamFrame
	if err := fromStruct(first, &open); err != nil || open.Kind != "open" || open.Open == nil {
		return status.Error(codes.InvalidArgument, "stream: first frame must be open")
	}

	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	records := make(chan engine.Record)
	sub, err := eng.Subscribe(ctx, open.Open.toStreamRequest(), records)
	if err != nil {
		return toStatus(err)
	}
	defer sub.Stop()

	go func() {
		defer close(records)
		for {
			msg := &structpb.Struct{}
			if err := stream.RecvMsg(msg); err != nil {
				return
			}
			var frame streamFrame
			if err := fromStruct(msg, &frame); err != nil || frame.Kind != "record" || frame.Record == nil {
				cancel()
				return
			}
			select {
			case records <- *frame.Record:
			case <-ctx.Done():
				return
			}
		}
	}()

	for u := range sub.Updates() {
		out, err := toStruct(streamFrame{Kind: "update", Update: &u})
		if err != nil {
			return status.Errorf(codes.Internal, "stream: %v", err)
		}
		if err := stream.SendMsg(out); err != nil {
			return err
		}
	}
	if err := sub.Err(); err != nil && !errors.Is(err, engine.ErrStopped) && !errors.Is(err, io.EOF) {
		return toStatus(err)
	}
	return nil
}

// #endregion stream-handler

func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
