package messagev1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "xmtp.message_api.v1.MessageApi"

const (
	MessageApi_Publish_FullMethodName      = "/" + ServiceName + "/Publish"
	MessageApi_Subscribe_FullMethodName    = "/" + ServiceName + "/Subscribe"
	MessageApi_SubscribeAll_FullMethodName = "/" + ServiceName + "/SubscribeAll"
	MessageApi_Query_FullMethodName        = "/" + ServiceName + "/Query"
	MessageApi_BatchQuery_FullMethodName   = "/" + ServiceName + "/BatchQuery"
)

// MessageApiServer is the server API for the MessageApi service.
type MessageApiServer interface {
	Publish(context.Context, *PublishRequest) (*PublishResponse, error)
	Subscribe(*SubscribeRequest, MessageApi_SubscribeServer) error
	SubscribeAll(*SubscribeAllRequest, MessageApi_SubscribeAllServer) error
	Query(context.Context, *QueryRequest) (*QueryResponse, error)
	BatchQuery(context.Context, *BatchQueryRequest) (*BatchQueryResponse, error)
}

// UnimplementedMessageApiServer can be embedded for forward compatibility.
type UnimplementedMessageApiServer struct{}

func (UnimplementedMessageApiServer) Publish(context.Context, *PublishRequest) (*PublishResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Publish not implemented")
}
func (UnimplementedMessageApiServer) Subscribe(*SubscribeRequest, MessageApi_SubscribeServer) error {
	return status.Errorf(codes.Unimplemented, "method Subscribe not implemented")
}
func (UnimplementedMessageApiServer) SubscribeAll(*SubscribeAllRequest, MessageApi_SubscribeAllServer) error {
	return status.Errorf(codes.Unimplemented, "method SubscribeAll not implemented")
}
func (UnimplementedMessageApiServer) Query(context.Context, *QueryRequest) (*QueryResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Query not implemented")
}
func (UnimplementedMessageApiServer) BatchQuery(context.Context, *BatchQueryRequest) (*BatchQueryResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method BatchQuery not implemented")
}

// RegisterMessageApiServer registers srv on s. The server must be built
// with grpc.ForceServerCodec(Codec{}).
func RegisterMessageApiServer(s grpc.ServiceRegistrar, srv MessageApiServer) {
	s.RegisterService(&MessageApi_ServiceDesc, srv)
}

type MessageApi_SubscribeServer interface {
	Send(*Envelope) error
	grpc.ServerStream
}

type MessageApi_SubscribeAllServer = MessageApi_SubscribeServer

type envelopeServerStream struct {
	grpc.ServerStream
}

func (x *envelopeServerStream) Send(m *Envelope) error { return x.ServerStream.SendMsg(m) }

func _MessageApi_Publish_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PublishRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MessageApiServer).Publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MessageApi_Publish_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MessageApiServer).Publish(ctx, req.(*PublishRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _MessageApi_Query_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(QueryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MessageApiServer).Query(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MessageApi_Query_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MessageApiServer).Query(ctx, req.(*QueryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _MessageApi_BatchQuery_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BatchQueryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MessageApiServer).BatchQuery(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MessageApi_BatchQuery_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MessageApiServer).BatchQuery(ctx, req.(*BatchQueryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _MessageApi_Subscribe_Handler(srv any, stream grpc.ServerStream) error {
	m := new(SubscribeRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(MessageApiServer).Subscribe(m, &envelopeServerStream{stream})
}

func _MessageApi_SubscribeAll_Handler(srv any, stream grpc.ServerStream) error {
	m := new(SubscribeAllRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(MessageApiServer).SubscribeAll(m, &envelopeServerStream{stream})
}

// MessageApi_ServiceDesc is the grpc.ServiceDesc for the MessageApi service.
var MessageApi_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MessageApiServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Publish", Handler: _MessageApi_Publish_Handler},
		{MethodName: "Query", Handler: _MessageApi_Query_Handler},
		{MethodName: "BatchQuery", Handler: _MessageApi_BatchQuery_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: _MessageApi_Subscribe_Handler, ServerStreams: true},
		{StreamName: "SubscribeAll", Handler: _MessageApi_SubscribeAll_Handler, ServerStreams: true},
	},
	Metadata: File.Path(),
}

// MessageApiClient is the client API for the MessageApi service.
type MessageApiClient interface {
	Publish(ctx context.Context, in *PublishRequest, opts ...grpc.CallOption) (*PublishResponse, error)
	Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (MessageApi_SubscribeClient, error)
	SubscribeAll(ctx context.Context, in *SubscribeAllRequest, opts ...grpc.CallOption) (MessageApi_SubscribeClient, error)
	Query(ctx context.Context, in *QueryRequest, opts ...grpc.CallOption) (*QueryResponse, error)
	BatchQuery(ctx context.Context, in *BatchQueryRequest, opts ...grpc.CallOption) (*BatchQueryResponse, error)
}

type MessageApi_SubscribeClient interface {
	Recv() (*Envelope, error)
	grpc.ClientStream
}

type messageApiClient struct {
	cc grpc.ClientConnInterface
}

// NewMessageApiClient returns a client that always uses Codec.
func NewMessageApiClient(cc grpc.ClientConnInterface) MessageApiClient {
	return &messageApiClient{cc: cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
}

func (c *messageApiClient) Publish(ctx context.Context, in *PublishRequest, opts ...grpc.CallOption) (*PublishResponse, error) {
	out := new(PublishResponse)
	if err := c.cc.Invoke(ctx, MessageApi_Publish_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *messageApiClient) Query(ctx context.Context, in *QueryRequest, opts ...grpc.CallOption) (*QueryResponse, error) {
	out := new(QueryResponse)
	if err := c.cc.Invoke(ctx, MessageApi_Query_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *messageApiClient) BatchQuery(ctx context.Context, in *BatchQueryRequest, opts ...grpc.CallOption) (*BatchQueryResponse, error) {
	out := new(BatchQueryResponse)
	if err := c.cc.Invoke(ctx, MessageApi_BatchQuery_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *messageApiClient) Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (MessageApi_SubscribeClient, error) {
	return c.serverStream(ctx, 0, MessageApi_Subscribe_FullMethodName, in, opts)
}

func (c *messageApiClient) SubscribeAll(ctx context.Context, in *SubscribeAllRequest, opts ...grpc.CallOption) (MessageApi_SubscribeClient, error) {
	return c.serverStream(ctx, 1, MessageApi_SubscribeAll_FullMethodName, in, opts)
}

func (c *messageApiClient) serverStream(ctx context.Context, idx int, method string, in any, opts []grpc.CallOption) (MessageApi_SubscribeClient, error) {
	stream, err := c.cc.NewStream(ctx, &MessageApi_ServiceDesc.Streams[idx], method, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &envelopeClientStream{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type envelopeClientStream struct {
	grpc.ClientStream
}

func (x *envelopeClientStream) Recv() (*Envelope, error) {
	m := new(Envelope)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
