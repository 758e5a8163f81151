package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/itsatony/devicehub/api/middleware"
	"github.com/itsatony/devicehub/api/resources"
	"github.com/itsatony/devicehub/internal/hubservice"
)

type Router struct {
	router    *mux.Router
	auth      *middleware.KeycloakMiddleware
	resources *resources.Resources
}

func NewRouter(svc *hubservice.HubService, keycloakConfig middleware.KeycloakConfig) *Router {
	r := &Router{
		router:    mux.NewRouter(),
		auth:      middleware.NewKeycloakMiddleware(keycloakConfig),
		resources: resources.NewResources(svc),
	}

	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	// API version prefix
	api := r.router.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/health", r.resources.HealthCheck).Methods(http.MethodGet)

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(r.auth.Authenticate)

	// Devices
	devices := protected.PathPrefix("/devices").Subrouter()
	devices.HandleFunc("", r.resources.Devices.ListDevices).Methods(http.MethodGet)
	devices.HandleFunc("/link", r.resources.Devices.LinkDevice).Methods(http.MethodPost)
	devices.HandleFunc("/{deviceId}", r.resources.Devices.GetDevice).Methods(http.MethodGet)
	devices.HandleFunc("/{deviceId}", r.resources.Devices.DeleteDevice).Methods(http.MethodDelete)

	// Device provisioning is admin-only
	admin := protected.PathPrefix("/devices").Subrouter()
	admin.Use(r.auth.RequireRoles([]string{"admin"}))
	admin.HandleFunc("", r.resources.Devices.RegisterDevice).Methods(http.MethodPost)

	// Readings and analytics
	data := protected.PathPrefix("/data").Subrouter()
	data.HandleFunc("/{deviceId}", r.resources.Readings.GetDeviceData).Methods(http.MethodGet)
	data.HandleFunc("/{deviceId}/analytics", r.resources.Readings.GetAnalytics).Methods(http.MethodGet)
	data.HandleFunc("/{deviceId}/trends", r.resources.Readings.GetTrends).Methods(http.MethodGet)
	data.HandleFunc("/{deviceId}/batch", r.resources.Readings.GetBatch).Methods(http.MethodGet)
	data.HandleFunc("/{deviceId}/graph", r.resources.Readings.GetGraph).Methods(http.MethodGet)
	data.HandleFunc("/{deviceId}/timeseries", r.resources.Readings.GetTimeSeries).Methods(http.MethodGet)

	// Edge ingestion
	edge := protected.PathPrefix("/edge").Subrouter()
	edge.HandleFunc("/readings", r.resources.Readings.RecordReadings).Methods(http.MethodPost)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}
