package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/arcade-auth/internal/bootstrap"
	"github.com/smallbiznis/arcade-auth/internal/clock"
	"github.com/smallbiznis/arcade-auth/internal/config"
	httptransport "github.com/smallbiznis/arcade-auth/internal/http"
	"github.com/smallbiznis/arcade-auth/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/arcade-auth/internal/http/middleware"
	apimiddleware "github.com/smallbiznis/arcade-auth/internal/middleware"
	"github.com/smallbiznis/arcade-auth/internal/password"
	"github.com/smallbiznis/arcade-auth/internal/repository"
	"github.com/smallbiznis/arcade-auth/internal/server"
	"github.com/smallbiznis/arcade-auth/internal/service"
	"github.com/smallbiznis/arcade-auth/internal/telemetry"
	"github.com/smallbiznis/arcade-auth/internal/token"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newClock,
			newPGXPool,
			newIdentityRepository,
			newTokenRepository,
			newHasher,
			newTokenIssuer,
			newSessionManager,
			newRateLimiter,
			handler.NewAuthHandler,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, runMigrations, bootstrap.EnsureAdmin, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newClock() clock.Clock {
	return clock.System()
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newIdentityRepository(pool *pgxpool.Pool) repository.IdentityRepository {
	return repository.NewPostgresIdentityRepo(pool)
}

func newTokenRepository(pool *pgxpool.Pool) repository.TokenRepository {
	return repository.NewPostgresTokenRepo(pool)
}

func newHasher() *password.Hasher {
	return password.NewHasher(password.DefaultParams)
}

func newTokenIssuer(cfg config.Config, clk clock.Clock) *token.Issuer {
	return token.NewIssuer([]byte(cfg.TokenSigningSecret), cfg.TokenIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenBytes, clk)
}

func newSessionManager(
	identities repository.IdentityRepository,
	tokens repository.TokenRepository,
	hasher *password.Hasher,
	issuer *token.Issuer,
	node *snowflake.Node,
	clk clock.Clock,
	cfg config.Config,
	logger *zap.Logger,
) (*service.SessionManager, error) {
	return service.NewSessionManager(identities, tokens, hasher, issuer, node, clk, cfg.RefreshTokenTTL, logger)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newAuthMiddleware(issuer *token.Issuer) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Issuer: issuer}
}

func runMigrations(cfg config.Config, logger *zap.Logger) error {
	if err := repository.Migrate(cfg.DatabaseURL); err != nil {
		return err
	}
	logger.Info("database schema up to date")
	return nil
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
