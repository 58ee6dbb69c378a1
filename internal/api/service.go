package api

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "mirador.forecast.v1.ForecastEngine"

// ForecastEngineServer is the server side of mirador.forecast.v1.ForecastEngine.
type ForecastEngineServer interface {
	Generate(context.Context, *GenerateRequest) (*GenerateResponse, error)
	Snapshot(context.Context, *SnapshotRequest) (*SnapshotResponse, error)
	Select(context.Context, *SelectRequest) (*CacheAck, error)
	SetManual(context.Context, *SetManualRequest) (*CacheAck, error)
	Enqueue(context.Context, *EnqueueRequest) (*EnqueueResponse, error)
	QueueStatus(context.Context, *QueueStatusRequest) (*QueueStatusResponse, error)
}

// ForecastEngineServiceDesc describes the service for grpc.Server.RegisterService.
var ForecastEngineServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ForecastEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Generate", Handler: unary("Generate", ForecastEngineServer.Generate)},
		{MethodName: "Snapshot", Handler: unary("Snapshot", ForecastEngineServer.Snapshot)},
		{MethodName: "Select", Handler: unary("Select", ForecastEngineServer.Select)},
		{MethodName: "SetManual", Handler: unary("SetManual", ForecastEngineServer.SetManual)},
		{MethodName: "Enqueue", Handler: unary("Enqueue", ForecastEngineServer.Enqueue)},
		{MethodName: "QueueStatus", Handler: unary("QueueStatus", ForecastEngineServer.QueueStatus)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/forecast/v1/forecast.json",
}

// RegisterForecastEngineServer attaches srv to s.
func RegisterForecastEngineServer(s grpc.ServiceRegistrar, srv ForecastEngineServer) {
	s.RegisterService(&ForecastEngineServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

func unary[Req, Resp any](method string, call func(ForecastEngineServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ForecastEngineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ForecastEngineServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ForecastEngineClient calls the forecast engine over a client connection.
type ForecastEngineClient struct {
	cc grpc.ClientConnInterface
}

// NewForecastEngineClient wraps cc. Calls are sent with the JSON codec.
func NewForecastEngineClient(cc grpc.ClientConnInterface) *ForecastEngineClient {
	return &ForecastEngineClient{cc: cc}
}

func (c *ForecastEngineClient) Generate(ctx context.Context, in *GenerateRequest, opts ...grpc.CallOption) (*GenerateResponse, error) {
	out := new(GenerateResponse)
	if err := c.invoke(ctx, "Generate", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ForecastEngineClient) Snapshot(ctx context.Context, in *SnapshotRequest, opts ...grpc.CallOption) (*SnapshotResponse, error) {
	out := new(SnapshotResponse)
	if err := c.invoke(ctx, "Snapshot", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ForecastEngineClient) Select(ctx context.Context, in *SelectRequest, opts ...grpc.CallOption) (*CacheAck, error) {
	out := new(CacheAck)
	if err := c.invoke(ctx, "Select", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ForecastEngineClient) SetManual(ctx context.Context, in *SetManualRequest, opts ...grpc.CallOption) (*CacheAck, error) {
	out := new(CacheAck)
	if err := c.invoke(ctx, "SetManual", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ForecastEngineClient) Enqueue(ctx context.Context, in *EnqueueRequest, opts ...grpc.CallOption) (*EnqueueResponse, error) {
	out := new(EnqueueResponse)
	if err := c.invoke(ctx, "Enqueue", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ForecastEngineClient) QueueStatus(ctx context.Context, in *QueueStatusRequest, opts ...grpc.CallOption) (*QueueStatusResponse, error) {
	out := new(QueueStatusResponse)
	if err := c.invoke(ctx, "QueueStatus", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ForecastEngineClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, fullMethod(method), in, out, opts...)
}
