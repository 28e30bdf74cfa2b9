package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/travelplanner/internal/common"
	"github.com/dmitrijs2005/travelplanner/internal/logging"
	"github.com/dmitrijs2005/travelplanner/internal/server/auth"
	authgrpc "github.com/dmitrijs2005/travelplanner/internal/server/grpc"
	"github.com/dmitrijs2005/travelplanner/internal/server/guard"
	"github.com/dmitrijs2005/travelplanner/internal/server/models"
	"github.com/dmitrijs2005/travelplanner/internal/server/repositories/users"
	"github.com/dmitrijs2005/travelplanner/internal/server/services"
	"github.com/dmitrijs2005/travelplanner/internal/server/social"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type env struct {
	client   *GRPCClient
	clock    *clock
	sessions *services.SessionService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	clk := &clock{now: time.Now()}
	ks, err := auth.NewKeySet("k1", []byte("client-test-secret"), nil)
	require.NoError(t, err)
	issuer := auth.NewIssuer(ks, "travel-planner", time.Minute, time.Hour, auth.WithClock(clk.Now))

	logger := logging.NewNopLogger()
	sessions := services.NewSessionService(users.NewInMemoryRepository(), auth.NewPasswordHasher(bcrypt.MinCost),
		issuer, social.NewVerifier(nil, time.Second, 0, logger), nil, logger)
	srv := authgrpc.NewGRPCServer("bufnet", logger, sessions, guard.New(issuer, nil, logger))

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	c, err := NewTravelPlannerClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }))
	require.NoError(t, err)

	t.Cleanup(func() {
		c.Close()
		cancel()
		<-done
	})

	return &env{client: c, clock: clk, sessions: sessions}
}

func TestClient_LoginWhoAmILogout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	id, err := e.client.Register(ctx, "a@example.com", "password1", "Alice")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = e.client.WhoAmI(ctx)
	require.ErrorIs(t, err, common.ErrUnauthorized)

	require.NoError(t, e.client.Login(ctx, "a@example.com", "password1"))

	who, err := e.client.WhoAmI(ctx)
	require.NoError(t, err)
	require.Equal(t, id, who.UserID)
	require.Equal(t, models.RoleUser, who.Role)

	require.NoError(t, e.client.Logout(ctx))
	require.ErrorIs(t, e.client.Refresh(ctx), ErrNotLoggedIn)
}

func TestClient_RefreshesExpiredAccessToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.client.Register(ctx, "a@example.com", "password1", "Alice")
	require.NoError(t, err)
	require.NoError(t, e.client.Login(ctx, "a@example.com", "password1"))

	before, _ := e.client.tokens()
	e.clock.Advance(2 * time.Minute)

	_, err = e.client.WhoAmI(ctx)
	require.NoError(t, err)

	after, _ := e.client.tokens()
	require.NotEqual(t, before, after)
}

func TestClient_RevokedSessionSurfaces(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.client.Register(ctx, "a@example.com", "password1", "Alice")
	require.NoError(t, err)
	require.NoError(t, e.client.Login(ctx, "a@example.com", "password1"))

	u, err := e.sessions.FindByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.NoError(t, e.sessions.Logout(ctx, u.ID))

	require.ErrorIs(t, e.client.Refresh(ctx), common.ErrRefreshTokenRevoked)

	e.clock.Advance(2 * time.Minute)
	_, err = e.client.WhoAmI(ctx)
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestClient_ErrorsMapToSentinels(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.client.Register(ctx, "a@example.com", "password1", "Alice")
	require.NoError(t, err)

	_, err = e.client.Register(ctx, "a@example.com", "password1", "Alice")
	require.ErrorIs(t, err, common.ErrEmailAlreadyExists)

	require.ErrorIs(t, e.client.Login(ctx, "a@example.com", "wrong-pass"), common.ErrInvalidCredentials)
	require.ErrorIs(t, e.client.SocialLogin(ctx, "google", "tok"), common.ErrInvalidProviderToken)

	_, err = e.client.Register(ctx, "b@example.com", "", "Bob")
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		in   error
		want error
	}{
		{status.Error(codes.PermissionDenied, "forbidden"), common.ErrForbidden},
		{status.Error(codes.NotFound, "not found"), common.ErrorNotFound},
		{status.Error(codes.Unavailable, common.ErrProviderUnavailable.Error()), common.ErrProviderUnavailable},
		{status.Error(codes.Unavailable, "connection refused"), ErrUnavailable},
		{status.Error(codes.Unauthenticated, "unauthorized"), common.ErrUnauthorized},
	}
	for _, tt := range tests {
		require.ErrorIs(t, mapError(tt.in), tt.want)
	}

	plain := errors.New("plain")
	require.Equal(t, plain, mapError(plain))
	require.Equal(t, codes.Internal, status.Code(mapError(status.Error(codes.Internal, "x"))))
}
