package server

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"ridecore/internal/adapter/http/middleware"
	"ridecore/internal/domain/types"
	"ridecore/pkg/logger"
	wrap "ridecore/pkg/logger/wrapper"
)

// setupRoutes - setups http routes
func setupRoutes(mux *http.ServeMux, routes *handlers, m *middleware.Middleware, mode types.ServiceMode, log logger.Logger) {
	// System Health
	mux.HandleFunc("/health", routes.health.HealthCheck)

	// Realtime notifications. Every mode mounts the handshake and accepts any
	// authenticated role: which instance a party connects to is a deployment
	// detail, the broker bridge carries events across instances.
	mux.HandleFunc("GET /ws", routes.ws.Handle)

	setupSwaggerRoutes(mux, mode, log)
	setupMetricsRoute(mux)

	switch mode {
	case types.RiderService:
		setupRiderRoutes(mux, routes, m)
	case types.DriverService:
		setupDriverRoutes(mux, routes, m)
	case types.AdminService:
		setupAdminRoutes(mux, routes, m)
	}
}

// setupRiderRoutes setups routes for the rider service
func setupRiderRoutes(mux *http.ServeMux, routes *handlers, m *middleware.Middleware) {
	mux.Handle("POST /rides", m.RequireRoles(routes.rider.CreateRide, types.RoleRider))                  // Create a new ride request
	mux.Handle("POST /rides/{ride_id}/cancel", m.RequireRoles(routes.rider.CancelRide, types.RoleRider)) // Cancel a ride
	mux.Handle("POST /rides/{ride_id}/fare", m.RequireRoles(routes.rider.CalculateFare, types.RoleRider))
	mux.Handle("GET /rides/history", m.RequireRoles(routes.rider.History, types.RoleRider))
	mux.Handle("GET /rides/{ride_id}", m.RequireRoles(routes.rider.GetRide, types.RoleRider, types.RoleAdmin))
}

// setupDriverRoutes setups routes for the driver service
func setupDriverRoutes(mux *http.ServeMux, routes *handlers, m *middleware.Middleware) {
	mux.Handle("GET /rides/available", m.RequireRoles(routes.driver.AvailableRides, types.RoleDriver))
	mux.Handle("POST /rides/{ride_id}/accept", m.RequireRoles(routes.driver.AcceptRide, types.RoleDriver))
	mux.Handle("POST /rides/{ride_id}/start", m.RequireRoles(routes.driver.StartRide, types.RoleDriver))
	mux.Handle("POST /rides/{ride_id}/complete", m.RequireRoles(routes.driver.CompleteRide, types.RoleDriver))
	mux.Handle("GET /rides/history", m.RequireRoles(routes.driver.History, types.RoleDriver))
	mux.Handle("GET /rides/{ride_id}", m.RequireRoles(routes.driver.GetRide, types.RoleDriver, types.RoleAdmin))
}

// setupAdminRoutes setups routes for the admin service
func setupAdminRoutes(mux *http.ServeMux, routes *handlers, m *middleware.Middleware) {
	mux.Handle("GET /admin/overview", m.RequireRoles(routes.admin.GetOverview, types.RoleAdmin))        // Ride totals and connection counts
	mux.Handle("GET /admin/rides/active", m.RequireRoles(routes.admin.GetActiveRides, types.RoleAdmin)) // Get list of active rides
	mux.Handle("GET /admin/parties", m.RequireRoles(routes.admin.GetParties, types.RoleAdmin))          // Connected riders and drivers
}

// setupSwaggerRoutes configures Swagger UI endpoints based on service mode
func setupSwaggerRoutes(mux *http.ServeMux, mode types.ServiceMode, log logger.Logger) {
	var instanceName string

	switch mode {
	case types.RiderService:
		instanceName = "rider"
	case types.DriverService:
		instanceName = "driver"
	case types.AdminService:
		instanceName = "admin"
	default:
		log.Warn(wrap.WithAction(context.Background(), "setup swagger routes"), "unknown service mode for swagger setup", "mode", mode)
		return
	}

	// Swagger UI endpoint
	swaggerURL := httpSwagger.InstanceName(instanceName)
	mux.HandleFunc("/swagger/", httpSwagger.Handler(swaggerURL))
}

// setupMetricsRoute configures the Prometheus metrics endpoint
func setupMetricsRoute(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}
