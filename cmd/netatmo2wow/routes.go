package main

import (
	"context"

	"github.com/flappah/netatmo2wow/pkg/models"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// ObservationStore reads archived observations
type ObservationStore interface {
	GetObservations(ctx context.Context, params models.ObservationQueryParams) (*models.ObservationsResponse, error)
}

// HealthReporter reports database connectivity
type HealthReporter interface {
	IsConnectionHealthy() bool
}

// Authorizer runs the OAuth code flow
type Authorizer interface {
	GetAuthorizationURL() (string, string, error)
	GetAccessTokenFromCode(ctx context.Context, code string, state string) error
}

// RouteManager handles all HTTP routes
type RouteManager struct {
	store    ObservationStore
	health   HealthReporter
	auth     Authorizer
	gatherer prometheus.Gatherer
	logger   *logrus.Logger
	Router   *mux.Router
}

// NewRouteManager creates a new RouteManager. store and health may be nil
// when the archive is disabled.
func NewRouteManager(store ObservationStore, health HealthReporter, auth Authorizer, gatherer prometheus.Gatherer, logger *logrus.Logger) *RouteManager {
	return &RouteManager{
		store:    store,
		health:   health,
		auth:     auth,
		gatherer: gatherer,
		logger:   logger,
		Router:   mux.NewRouter(),
	}
}

// Setup configures all routes
func (rm *RouteManager) Setup() {
	r := rm.Router
	r.Use(rm.loggingMiddleware)

	r.HandleFunc("/health", rm.healthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(rm.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/devices/{id}/observations", rm.getObservationsHandler).Methods("GET")

	r.HandleFunc("/netatmo/authorize", rm.netatmoAuthorizeHandler).Methods("GET")
	r.HandleFunc("/netatmo/callback", rm.netatmoCallbackHandler).Methods("GET")
}
