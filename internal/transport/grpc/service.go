package grpcx

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "ephemeralchat.v1.RoomService"

type RoomServiceServer interface {
	CreateRoom(context.Context, *CreateRoomRequest) (*Room, error)
	GetRoom(context.Context, *RoomRequest) (*Room, error)
	GetRemainingTTL(context.Context, *RoomRequest) (*TTLResponse, error)
	DestroyRoom(context.Context, *RoomRequest) (*DestroyRoomResponse, error)
	AppendMessage(context.Context, *AppendMessageRequest) (*Message, error)
	ListMessages(context.Context, *RoomRequest) (*ListMessagesResponse, error)
	Subscribe(*SubscribeRequest, grpc.ServerStreamingServer[Event]) error
}

func fullMethod(name string) string { return "/" + ServiceName + "/" + name }

func unary[Req, Resp any](name string, call func(RoomServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RoomServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(RoomServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var subscribeStream = grpc.StreamDesc{
	StreamName:    "Subscribe",
	ServerStreams: true,
	Handler: func(srv any, stream grpc.ServerStream) error {
		in := new(SubscribeRequest)
		if err := stream.RecvMsg(in); err != nil {
			return err
		}
		return srv.(RoomServiceServer).Subscribe(in, &grpc.GenericServerStream[SubscribeRequest, Event]{ServerStream: stream})
	},
}

var roomServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RoomServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateRoom", RoomServiceServer.CreateRoom),
		unary("GetRoom", RoomServiceServer.GetRoom),
		unary("GetRemainingTTL", RoomServiceServer.GetRemainingTTL),
		unary("DestroyRoom", RoomServiceServer.DestroyRoom),
		unary("AppendMessage", RoomServiceServer.AppendMessage),
		unary("ListMessages", RoomServiceServer.ListMessages),
	},
	Streams:  []grpc.StreamDesc{subscribeStream},
	Metadata: "ephemeralchat/v1/room",
}

// Register attaches srv to s. s must be built with ServerCodec.
func Register(s grpc.ServiceRegistrar, srv RoomServiceServer) {
	s.RegisterService(&roomServiceDesc, srv)
}
