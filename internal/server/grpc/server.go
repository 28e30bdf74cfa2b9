package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/travelplanner/internal/logging"
	"github.com/dmitrijs2005/travelplanner/internal/server/guard"
	"github.com/dmitrijs2005/travelplanner/internal/server/models"
	"github.com/dmitrijs2005/travelplanner/internal/server/services"
	"google.golang.org/grpc"
)

type SessionManager interface {
	Register(ctx context.Context, email, password, name string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	SocialLogin(ctx context.Context, provider, providerToken string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, userID string) error
}

type GRPCServer struct {
	address      string
	sessions     SessionManager
	guard        *guard.Guard
	requirements map[string]guard.Requirement
	logger       logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, sessions SessionManager, g *guard.Guard) *GRPCServer {
	return &GRPCServer{
		address:      a,
		logger:       l.With("module", "grpc_server"),
		sessions:     sessions,
		guard:        g,
		requirements: methodRequirements,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	RegisterAuthServiceServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve runs the service on listen until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
