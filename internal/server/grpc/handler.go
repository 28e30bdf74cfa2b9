package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/travelplanner/internal/common"
	"github.com/dmitrijs2005/travelplanner/internal/server/guard"
	"github.com/dmitrijs2005/travelplanner/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// toStatus maps service errors to gRPC codes. Token failures carry one
// generic message.
func toStatus(err error) error {
	switch {
	case errors.Is(err, common.ErrEmailAlreadyExists):
		return status.Error(codes.AlreadyExists, common.ErrEmailAlreadyExists.Error())
	case errors.Is(err, common.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, common.ErrInvalidCredentials.Error())
	case errors.Is(err, common.ErrInvalidProviderToken):
		return status.Error(codes.Unauthenticated, common.ErrInvalidProviderToken.Error())
	case errors.Is(err, common.ErrRefreshTokenRevoked):
		return status.Error(codes.Unauthenticated, common.ErrRefreshTokenRevoked.Error())
	case errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrTokenSignatureInvalid),
		errors.Is(err, common.ErrTokenKindMismatch),
		errors.Is(err, common.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, common.ErrUnauthorized.Error())
	case errors.Is(err, common.ErrForbidden):
		return status.Error(codes.PermissionDenied, common.ErrForbidden.Error())
	case errors.Is(err, common.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrProviderUnavailable):
		return status.Error(codes.Unavailable, common.ErrProviderUnavailable.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func field(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

func tokenPair(p *services.TokenPair) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"access_token":  p.AccessToken,
		"refresh_token": p.RefreshToken,
		"expires_in":    p.ExpiresIn,
		"token_type":    p.TokenType,
	})
}

func (s *GRPCServer) fail(ctx context.Context, err error) error {
	st := toStatus(err)
	if status.Code(st) == codes.Internal {
		s.logger.Error(ctx, err.Error())
	}
	return st
}

func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.logger.Info(ctx, "Registration request")

	u, err := s.sessions.Register(ctx, field(req, "email"), field(req, "password"), field(req, "name"))
	if err != nil {
		return nil, s.fail(ctx, err)
	}

	pub := u.Public()
	return structpb.NewStruct(map[string]any{
		"id":         pub.ID,
		"email":      pub.Email,
		"name":       pub.Name,
		"role":       string(pub.Role),
		"created_at": pub.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	pair, err := s.sessions.Login(ctx, field(req, "email"), field(req, "password"))
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return tokenPair(pair)
}

func (s *GRPCServer) SocialLogin(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	pair, err := s.sessions.SocialLogin(ctx, field(req, "provider"), field(req, "access_token"))
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return tokenPair(pair)
}

func (s *GRPCServer) Refresh(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	pair, err := s.sessions.Refresh(ctx, field(req, "refresh_token"))
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return tokenPair(pair)
}

func (s *GRPCServer) Logout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, ok := guard.IdentityFrom(ctx)
	if !ok {
		return nil, toStatus(common.ErrUnauthorized)
	}
	if err := s.sessions.Logout(ctx, id.UserID); err != nil {
		return nil, s.fail(ctx, err)
	}
	return &structpb.Struct{}, nil
}

func (s *GRPCServer) WhoAmI(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, ok := guard.IdentityFrom(ctx)
	if !ok {
		return nil, toStatus(common.ErrUnauthorized)
	}
	return structpb.NewStruct(map[string]any{
		"user_id": id.UserID,
		"role":    string(id.Role),
	})
}
