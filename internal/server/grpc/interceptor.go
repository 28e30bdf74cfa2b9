package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/travelplanner/internal/common"
	"github.com/dmitrijs2005/travelplanner/internal/server/guard"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// methodRequirements lists the guarded methods. Anything not listed is
// public.
var methodRequirements = map[string]guard.Requirement{
	MethodLogout: guard.Authenticated,
	MethodWhoAmI: guard.Authenticated,
}

func bearerFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(common.AuthorizationHeaderName)
	if len(values) == 0 {
		return ""
	}
	token, _ := guard.BearerToken(values[0])
	return token
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	requirement, guarded := s.requirements[info.FullMethod]
	if !guarded {
		return handler(ctx, req)
	}

	id, err := s.guard.Check(ctx, bearerFromMetadata(ctx), requirement)
	if err != nil {
		return nil, toStatus(err)
	}

	return handler(guard.WithIdentity(ctx, id), req)
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Info(ctx, "rpc",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	)
	return resp, err
}
