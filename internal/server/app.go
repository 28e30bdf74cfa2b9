// Package server wires the travel planner auth core together: storage,
// token issuer, session manager, access guard and the HTTP and gRPC
// transports, and runs them until the process is told to stop.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/travelplanner/internal/logging"
	"github.com/dmitrijs2005/travelplanner/internal/server/auth"
	"github.com/dmitrijs2005/travelplanner/internal/server/config"
	"github.com/dmitrijs2005/travelplanner/internal/server/guard"
	"github.com/dmitrijs2005/travelplanner/internal/server/metrics"
	"github.com/dmitrijs2005/travelplanner/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/travelplanner/internal/server/rest"
	"github.com/dmitrijs2005/travelplanner/internal/server/services"
	"github.com/dmitrijs2005/travelplanner/internal/server/social"

	gs "github.com/dmitrijs2005/travelplanner/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	repos    repomanager.RepositoryManager
	metrics  *metrics.Metrics
	sessions *services.SessionService
	avatars  rest.AvatarStore
	guard    *guard.Guard
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	retired, err := c.RetiredKeyMap()
	if err != nil {
		return nil, err
	}
	keys, err := auth.NewKeySet(c.SecretKeyID, []byte(c.SecretKey), retired)
	if err != nil {
		return nil, fmt.Errorf("signing keys: %w", err)
	}
	issuer := auth.NewIssuer(keys, c.TokenIssuer, c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration)

	rm, err := repomanager.New(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx); err != nil {
		rm.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	m := metrics.New()

	verifier := social.NewVerifier(social.DefaultProviders(social.Endpoints{
		Google: c.GoogleUserInfoURL,
		GitHub: c.GitHubUserInfoURL,
		Kakao:  c.KakaoUserInfoURL,
		Naver:  c.NaverUserInfoURL,
	}), c.ProviderTimeout, c.ProviderRetries, logger, social.WithMetrics(m))

	ss := services.NewSessionService(rm.Users(), auth.NewPasswordHasher(c.BcryptCost), issuer, verifier, m, logger)

	app := &App{
		config:   c,
		logger:   logger,
		repos:    rm,
		metrics:  m,
		sessions: ss,
		guard:    guard.New(issuer, m, logger),
	}

	// avatar uploads are off when no bucket is configured
	if c.S3Bucket != "" {
		app.avatars = services.NewAvatarService(rm.Users(), c)
	}

	return app, nil
}

// Sessions exposes the session manager to operator tooling.
func (app *App) Sessions() *services.SessionService {
	return app.sessions
}

func (app *App) Close() error {
	return app.repos.Close()
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.sessions, app.guard)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "gRPC server", "error", err)
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	h := rest.NewHandler(app.sessions, app.avatars, app.guard, app.metrics, app.logger)
	s := rest.NewHTTPServer(app.config.EndpointAddrHTTP, h.Routes(), app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "HTTP server", "error", err)
		cancelFunc()
	}
}

// Run serves both transports until ctx is cancelled, a signal arrives or
// either server fails, then stops both and closes the store.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.Close(); err != nil {
		app.logger.Error(ctx, "closing store", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
