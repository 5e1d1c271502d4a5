package rpc

import (
	"context"

	"google.golang.org/grpc"
)

func unary[Req any, Resp any](method string, call func(NegotiationServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(NegotiationServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(NegotiationServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watch[Req any](name string, call func(NegotiationServer, *Req, grpc.ServerStream) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    name,
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(Req)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return call(srv.(NegotiationServer), in, stream)
		},
	}
}

// ServiceDesc describes the negotiation service for grpc.Server.RegisterService. Messages use the
// JSON codec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NegotiationServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetConversation", NegotiationServer.GetConversation),
		unary("ListMessages", NegotiationServer.ListMessages),
		unary("SendMessage", NegotiationServer.SendMessage),
		unary("CreateOffer", NegotiationServer.CreateOffer),
		unary("AnswerOffer", NegotiationServer.AnswerOffer),
		unary("CounterOffer", NegotiationServer.CounterOffer),
	},
	Streams: []grpc.StreamDesc{
		watch("WatchConversations", NegotiationServer.WatchConversations),
		watch("WatchMessages", NegotiationServer.WatchMessages),
	},
	Metadata: "bazaar/v1/negotiation",
}

func RegisterNegotiationServer(s grpc.ServiceRegistrar, srv NegotiationServer) {
	s.RegisterService(&ServiceDesc, srv)
}
