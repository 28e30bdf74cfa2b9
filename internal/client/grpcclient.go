package client

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/travelplanner/internal/common"
	authgrpc "github.com/dmitrijs2005/travelplanner/internal/server/grpc"
	"github.com/dmitrijs2005/travelplanner/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type Identity struct {
	UserID string
	Role   models.Role
}

type GRPCClient struct {
	endpointURL string
	dialOpts    []grpc.DialOption
	conn        *grpc.ClientConn

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// tokenless methods never carry a bearer token and are never retried
// after a refresh.
var tokenless = map[string]bool{
	authgrpc.MethodRegister:    true,
	authgrpc.MethodLogin:       true,
	authgrpc.MethodSocialLogin: true,
	authgrpc.MethodRefresh:     true,
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AuthorizationHeaderName, common.BearerScheme+" "+token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) tokens() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, s.refreshToken
}

func (s *GRPCClient) setTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = access
	s.refreshToken = refresh
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {

	if tokenless[method] {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	access, refresh := s.tokens()
	err := invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)

	if status.Code(err) != codes.Unauthenticated || refresh == "" {
		return err
	}

	// access token rejected, try once more with a fresh pair
	if rerr := s.refresh(ctx, refresh); rerr != nil {
		return err
	}

	access, _ = s.tokens()
	return invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
}

func NewTravelPlannerClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, dialOpts: opts}
	if err := c.InitGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient() error {
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
	}, s.dialOpts...)

	conn, err := grpc.NewClient(s.endpointURL, opts...)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) call(ctx context.Context, method string, in map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := s.conn.Invoke(ctx, method, req, out); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (s *GRPCClient) storePair(out *structpb.Struct) {
	s.setTokens(out.GetFields()["access_token"].GetStringValue(), out.GetFields()["refresh_token"].GetStringValue())
}

// Register creates an account and returns its id.
func (s *GRPCClient) Register(ctx context.Context, email, password, name string) (string, error) {
	out, err := s.call(ctx, authgrpc.MethodRegister, map[string]any{
		"email":    email,
		"password": password,
		"name":     name,
	})
	if err != nil {
		return "", err
	}
	return out.GetFields()["id"].GetStringValue(), nil
}

func (s *GRPCClient) Login(ctx context.Context, email, password string) error {
	out, err := s.call(ctx, authgrpc.MethodLogin, map[string]any{"email": email, "password": password})
	if err != nil {
		return err
	}
	s.storePair(out)
	return nil
}

func (s *GRPCClient) SocialLogin(ctx context.Context, provider, accessToken string) error {
	out, err := s.call(ctx, authgrpc.MethodSocialLogin, map[string]any{"provider": provider, "access_token": accessToken})
	if err != nil {
		return err
	}
	s.storePair(out)
	return nil
}

func (s *GRPCClient) refresh(ctx context.Context, refreshToken string) error {
	out, err := s.call(ctx, authgrpc.MethodRefresh, map[string]any{"refresh_token": refreshToken})
	if err != nil {
		return err
	}
	s.storePair(out)
	return nil
}

// Refresh rotates the stored token pair.
func (s *GRPCClient) Refresh(ctx context.Context) error {
	_, refresh := s.tokens()
	if refresh == "" {
		return ErrNotLoggedIn
	}
	return s.refresh(ctx, refresh)
}

// Logout ends the session on the server and forgets the local tokens.
func (s *GRPCClient) Logout(ctx context.Context) error {
	if _, err := s.call(ctx, authgrpc.MethodLogout, nil); err != nil {
		return err
	}
	s.setTokens("", "")
	return nil
}

func (s *GRPCClient) WhoAmI(ctx context.Context) (*Identity, error) {
	out, err := s.call(ctx, authgrpc.MethodWhoAmI, nil)
	if err != nil {
		return nil, err
	}
	return &Identity{
		UserID: out.GetFields()["user_id"].GetStringValue(),
		Role:   models.Role(out.GetFields()["role"].GetStringValue()),
	}, nil
}
