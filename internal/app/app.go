// Package app assembles one service instance. The mode decides which slice
// of the dependency graph gets built: rider and driver instances carry the
// full lifecycle stack, the admin instance only reads.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"ridecore/config"
	"ridecore/internal/adapter/http/server"
	adapterpg "ridecore/internal/adapter/postgres"
	rabbitadapter "ridecore/internal/adapter/rabbit"
	redisadapter "ridecore/internal/adapter/redis"
	"ridecore/internal/auth"
	"ridecore/internal/domain/types"
	"ridecore/internal/fraud"
	"ridecore/internal/lifecycle"
	"ridecore/internal/notify"
	"ridecore/pkg/logger"
	wrap "ridecore/pkg/logger/wrapper"
	"ridecore/pkg/postgres"
	"ridecore/pkg/rabbit"
	"ridecore/pkg/trm"
)

var ErrInvalidMode = errors.New("invalid mode")

type App struct {
	mode types.ServiceMode

	api      *server.API
	notifier *notify.Notifier
	consumer *rabbitadapter.LifecycleConsumer

	db     *postgres.PostgreDB
	broker *rabbit.RabbitMQ

	cfg config.Config
	log logger.Logger
}

// NewApplication builds the dependency graph for the configured mode.
func NewApplication(ctx context.Context, cfg config.Config, log logger.Logger) (*App, error) {
	switch cfg.Mode {
	case types.RiderService, types.DriverService, types.AdminService:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, cfg.Mode)
	}

	app := &App{
		mode: cfg.Mode,
		cfg:  cfg,
		log:  log,
	}

	db, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	app.db = db

	txManager := trm.New(db.Pool)
	rideRepo := adapterpg.NewRideRepo(db.Pool, txManager)

	app.notifier = notify.New(log)
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)

	// Every instance, admin included, consumes the lifecycle exchange so its
	// own websocket sessions hear about transitions committed elsewhere. The
	// origin id lets each instance skip its own publications.
	broker, err := rabbit.New(ctx, cfg.RabbitMQ.GetDSN(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	app.broker = broker

	origin := uuid.NewString()
	app.consumer = rabbitadapter.NewLifecycleConsumer(broker, app.notifier, origin, log)

	deps := server.Deps{
		Stats:    rideRepo,
		Notifier: app.notifier,
		Verifier: verifier,
	}

	// The admin instance only reads; the lifecycle stack and its redis
	// dependency belong to the rider and driver instances.
	if cfg.Mode != types.AdminService {
		rides, err := app.buildLifecycle(ctx, rideRepo, origin)
		if err != nil {
			return nil, err
		}
		deps.Rides = rides
	}

	api, err := server.New(cfg, deps, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build http server: %w", err)
	}
	app.api = api

	return app, nil
}

func (a *App) buildLifecycle(ctx context.Context, rideRepo *adapterpg.RideRepo, origin string) (*lifecycle.Service, error) {
	var (
		cooldown lifecycle.CooldownCache
		locker   lifecycle.AcceptLocker
	)

	// Redis only speeds up cooldown checks and thins out accept races; the
	// repository stays the source of truth, so a missing redis is a warning,
	// not a startup failure.
	redisClient, err := redisadapter.NewClient(ctx, a.cfg.Redis.Addr(), a.cfg.Redis.Password, a.cfg.Redis.DB)
	if err != nil {
		a.log.Warn(ctx, "redis unavailable, falling back to repository-only checks", "err", err.Error())
	} else {
		cooldown = redisadapter.NewCooldownCache(redisClient)
		locker = redisadapter.NewAcceptLock(redisClient)
	}

	publisher, err := rabbitadapter.NewLifecycleBroker(a.broker, origin, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to declare lifecycle exchange: %w", err)
	}

	checker := fraud.NewChecker(rideRepo, a.log)

	return lifecycle.NewService(
		rideRepo,
		checker,
		a.notifier,
		cooldown,
		locker,
		publisher,
		a.log,
	), nil
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails.
func (a *App) Run(ctx context.Context) error {
	runCtx := wrap.WithAction(ctx, types.ActionServiceStarted)
	a.log.Info(runCtx, "starting service", "mode", a.mode)

	errCh := make(chan error, 1)
	a.api.Run(ctx, errCh)

	go func() {
		if err := a.consumer.Consume(ctx); err != nil {
			a.log.Error(ctx, "lifecycle consumer stopped", err)
		}
	}()

	select {
	case err := <-errCh:
		a.shutdown(ctx)
		return err
	case <-ctx.Done():
		a.shutdown(context.WithoutCancel(ctx))
		return nil
	}
}

func (a *App) shutdown(ctx context.Context) {
	ctx = wrap.WithAction(ctx, types.ActionServiceStopped)
	a.log.Info(ctx, "shutting down service", "mode", a.mode)

	if err := a.api.Stop(ctx); err != nil {
		a.log.Error(ctx, "failed to stop http server", err)
	}

	a.notifier.Close()

	if a.broker != nil {
		if err := a.broker.Close(ctx); err != nil {
			a.log.Error(ctx, "failed to close rabbitmq connection", err)
		}
	}

	if a.db != nil {
		a.db.Pool.Close()
	}

	a.log.Info(ctx, "service stopped", "mode", a.mode)
}
