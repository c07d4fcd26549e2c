package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const packetsService = "ecaptureq.v1.Packets"

// Full method names of the Packets service.
const (
	MethodQuery         = "/" + packetsService + "/Query"
	MethodGet           = "/" + packetsService + "/Get"
	MethodSubscribe     = "/" + packetsService + "/Subscribe"
	MethodStartCapture  = "/" + packetsService + "/StartCapture"
	MethodStopCapture   = "/" + packetsService + "/StopCapture"
	MethodCaptureStatus = "/" + packetsService + "/CaptureStatus"
	MethodSetFilter     = "/" + packetsService + "/SetFilter"
)

// PacketsServer is the server API of ecaptureq.v1.Packets.
type PacketsServer interface {
	Query(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Subscribe(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
	StartCapture(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StopCapture(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CaptureStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetFilter(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(PacketsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryCall) grpc.MethodDesc {
	full := "/" + packetsService + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PacketsServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(PacketsServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(PacketsServer).Subscribe(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// PacketsServiceDesc describes ecaptureq.v1.Packets for grpc.RegisterService.
var PacketsServiceDesc = grpc.ServiceDesc{
	ServiceName: packetsService,
	HandlerType: (*PacketsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Query", PacketsServer.Query),
		unary("Get", PacketsServer.Get),
		unary("StartCapture", PacketsServer.StartCapture),
		unary("StopCapture", PacketsServer.StopCapture),
		unary("CaptureStatus", PacketsServer.CaptureStatus),
		unary("SetFilter", PacketsServer.SetFilter),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    "Subscribe",
		Handler:       subscribeHandler,
		ServerStreams: true,
	}},
	Metadata: "ecaptureq/v1/packets.proto",
}

// RegisterPacketsServer registers srv under ecaptureq.v1.Packets.
func RegisterPacketsServer(s grpc.ServiceRegistrar, srv PacketsServer) {
	s.RegisterService(&PacketsServiceDesc, srv)
}

// PacketsClient calls ecaptureq.v1.Packets over a client connection.
type PacketsClient struct {
	cc grpc.ClientConnInterface
}

// NewPacketsClient returns a client for ecaptureq.v1.Packets on cc.
func NewPacketsClient(cc grpc.ClientConnInterface) *PacketsClient {
	return &PacketsClient{cc: cc}
}

func (c *PacketsClient) call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PacketsClient) Query(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodQuery, in, opts...)
}

func (c *PacketsClient) Get(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodGet, in, opts...)
}

func (c *PacketsClient) StartCapture(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodStartCapture, nil, opts...)
}

func (c *PacketsClient) StopCapture(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodStopCapture, nil, opts...)
}

func (c *PacketsClient) CaptureStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodCaptureStatus, nil, opts...)
}

func (c *PacketsClient) SetFilter(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodSetFilter, in, opts...)
}

// Subscribe opens the server stream of pushed batches.
func (c *PacketsClient) Subscribe(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	stream, err := c.cc.NewStream(ctx, &PacketsServiceDesc.Streams[0], MethodSubscribe, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
