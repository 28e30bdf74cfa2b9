package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name. Requests and
// responses are google.protobuf.Struct messages.
const ServiceName = "travelplanner.auth.v1.AuthService"

const (
	MethodRegister    = "/" + ServiceName + "/Register"
	MethodLogin       = "/" + ServiceName + "/Login"
	MethodSocialLogin = "/" + ServiceName + "/SocialLogin"
	MethodRefresh     = "/" + ServiceName + "/Refresh"
	MethodLogout      = "/" + ServiceName + "/Logout"
	MethodWhoAmI      = "/" + ServiceName + "/WhoAmI"
)

type AuthServiceServer interface {
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SocialLogin(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Refresh(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WhoAmI(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(AuthServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AuthServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AuthServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AuthServiceDesc describes the service for grpc.Server.RegisterService.
var AuthServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unaryHandler(MethodRegister, AuthServiceServer.Register)},
		{MethodName: "Login", Handler: unaryHandler(MethodLogin, AuthServiceServer.Login)},
		{MethodName: "SocialLogin", Handler: unaryHandler(MethodSocialLogin, AuthServiceServer.SocialLogin)},
		{MethodName: "Refresh", Handler: unaryHandler(MethodRefresh, AuthServiceServer.Refresh)},
		{MethodName: "Logout", Handler: unaryHandler(MethodLogout, AuthServiceServer.Logout)},
		{MethodName: "WhoAmI", Handler: unaryHandler(MethodWhoAmI, AuthServiceServer.WhoAmI)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "travelplanner/auth/v1/auth.proto",
}

func RegisterAuthServiceServer(s grpc.ServiceRegistrar, srv AuthServiceServer) {
	s.RegisterService(&AuthServiceDesc, srv)
}
