// Package orderstore declares the orderstore.v1.OrderStore gRPC service and a
// client that satisfies storage.Repository over it.
//
// Requests and responses are google.protobuf.Struct messages built by the
// mappers package, so no generated code is needed on either side.
package orderstore

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "orderstore.v1.OrderStore"

const (
	ReadOrderMethod         = "/" + ServiceName + "/ReadOrder"
	ConditionalUpdateMethod = "/" + ServiceName + "/ConditionalUpdate"
	CreateOrderMethod       = "/" + ServiceName + "/CreateOrder"
)

// Server is implemented by the order-service application layer.
type Server interface {
	ReadOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ConditionalUpdate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CreateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ReadOrder", Handler: unaryHandler(ReadOrderMethod, Server.ReadOrder)},
		{MethodName: "ConditionalUpdate", Handler: unaryHandler(ConditionalUpdateMethod, Server.ConditionalUpdate)},
		{MethodName: "CreateOrder", Handler: unaryHandler(CreateOrderMethod, Server.CreateOrder)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "orderstore/v1/orderstore.proto",
}

func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}

func unaryHandler(fullMethod string, call func(Server, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(Server), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(Server), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
