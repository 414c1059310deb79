package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ridecore/config"
	"ridecore/internal/adapter/http/handler"
	"ridecore/internal/adapter/http/middleware"
	"ridecore/internal/domain/types"
	"ridecore/internal/notify"
	"ridecore/pkg/logger"
	wrap "ridecore/pkg/logger/wrapper"
)

const serverIPAddress = "%s:%s"

type API struct {
	mode   types.ServiceMode
	mux    *http.ServeMux
	server *http.Server
	routes *handlers
	m      *middleware.Middleware

	addr string
	cfg  config.Config
	log  logger.Logger
}

type handlers struct {
	rider  *handler.Rider
	driver *handler.Driver
	admin  *handler.Admin
	health *handler.Health
	ws     *handler.WS
}

// Deps are the services the HTTP layer exposes. Which of them a given
// instance actually uses depends on the mode it runs in.
type Deps struct {
	Rides    handler.RideService
	Stats    handler.RideStats
	Notifier *notify.Notifier
	Verifier middleware.TokenVerifier
}

func New(cfg config.Config, deps Deps, logger logger.Logger) (*API, error) {
	if deps.Verifier == nil {
		return nil, errors.New("token verifier is required")
	}

	var addr string
	handlers := &handlers{
		health: handler.NewHealth(string(cfg.Mode), logger),
		ws:     handler.NewWS(deps.Verifier, deps.Notifier, logger),
	}

	switch cfg.Mode {
	case types.RiderService:
		addr = fmt.Sprintf(serverIPAddress, "0.0.0.0", cfg.Services.RiderService)
		handlers.rider = handler.NewRider(deps.Rides, logger)
	case types.DriverService:
		addr = fmt.Sprintf(serverIPAddress, "0.0.0.0", cfg.Services.DriverService)
		handlers.driver = handler.NewDriver(deps.Rides, logger)
	case types.AdminService:
		addr = fmt.Sprintf(serverIPAddress, "0.0.0.0", cfg.Services.AdminService)
		handlers.admin = handler.NewAdmin(deps.Stats, deps.Notifier, logger)
	default:
		return nil, fmt.Errorf("invalid mode: %s", cfg.Mode)
	}

	mid := middleware.NewMiddleware(deps.Verifier, logger)

	api := &API{
		mode: cfg.Mode,

		mux:    http.NewServeMux(),
		routes: handlers,
		m:      mid,
		addr:   addr,
		cfg:    cfg,
		log:    logger,
	}

	api.server = &http.Server{
		Addr:    api.addr,
		Handler: api.withMiddleware(),
	}

	setupRoutes(api.mux, api.routes, api.m, api.mode, api.log)

	return api, nil
}

func (a *API) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ctx = wrap.WithAction(ctx, "http_server_stop")

	a.log.Debug(ctx, "shutting down HTTP server...", "address", a.addr)
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	a.log.Debug(ctx, "shutting down HTTP server completed")

	return nil
}

func (a *API) Run(ctx context.Context, errCh chan<- error) {
	go func() {
		ctx = wrap.WithAction(ctx, "http_server_start")
		a.log.Info(ctx, "started http server", "address", a.addr, "mode", a.mode)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
			return
		}
	}()
}

// withMiddleware applies middlewares to the mux
func (a *API) withMiddleware() http.Handler {
	return a.m.Recover(a.m.RequestID(a.m.Logging(a.m.Metrics(string(a.mode))(a.m.Auth(a.mux)))))
}
