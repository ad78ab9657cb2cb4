package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/manslikestiffler/smart-granary/pkg/config"
	"github.com/manslikestiffler/smart-granary/pkg/dashboard"
	"github.com/manslikestiffler/smart-granary/pkg/database"
	"github.com/manslikestiffler/smart-granary/pkg/hub"
	"github.com/manslikestiffler/smart-granary/pkg/parser"
)

// RouteManager handles all API routes
type RouteManager struct {
	service   *dashboard.Service
	hub       *hub.Hub
	dbManager *database.DatabaseManager
	parsers   *parser.Registry
	server    config.ServerConfig
	Router    *mux.Router
}

// NewRouteManager creates a new RouteManager instance. dbManager may be nil.
func NewRouteManager(service *dashboard.Service, h *hub.Hub, dbManager *database.DatabaseManager, server config.ServerConfig) *RouteManager {
	return &RouteManager{
		service:   service,
		hub:       h,
		dbManager: dbManager,
		parsers:   parser.DefaultRegistry(),
		server:    server,
		Router:    mux.NewRouter(),
	}
}

// Setup configures all API routes
func (rm *RouteManager) Setup() {
	r := rm.Router
	r.Use(rm.corsMiddleware)

	// Global OPTIONS handler - catches all preflight requests
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.HandleFunc("/health", rm.healthHandler).Methods("GET")
	r.HandleFunc("/ws", rm.hub.ServeWS)

	// Dataset in the shape the dashboard client polls
	r.HandleFunc("/api/logs", rm.getLogsHandler).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	rm.setupAPIRoutes(api)
}

// setupAPIRoutes configures all API v1 routes
func (rm *RouteManager) setupAPIRoutes(api *mux.Router) {
	// Readings
	api.HandleFunc("/readings", rm.getReadingsHandler).Methods("GET")
	api.Handle("/readings", rm.apiKeyMiddleware(http.HandlerFunc(rm.postReadingsHandler))).Methods("POST")
	api.HandleFunc("/readings/history", rm.getReadingHistoryHandler).Methods("GET")
	api.HandleFunc("/readings/annotated", rm.getAnnotatedHandler).Methods("GET")

	// Pipeline views
	api.HandleFunc("/dashboard", rm.getDashboardHandler).Methods("GET")
	api.HandleFunc("/analytics", rm.getAnalyticsHandler).Methods("GET")
	api.HandleFunc("/aggregate", rm.getAggregateHandler).Methods("GET")
	api.HandleFunc("/stats/{sensor}", rm.getStatsHandler).Methods("GET")
	api.HandleFunc("/alerts", rm.getAlertsHandler).Methods("GET")
	api.HandleFunc("/export", rm.exportHandler).Methods("GET")

	// Configuration
	api.HandleFunc("/sensor-types", rm.getSensorTypesHandler).Methods("GET")
	api.HandleFunc("/settings", rm.getSettingsHandler).Methods("GET")
	api.Handle("/settings", rm.apiKeyMiddleware(http.HandlerFunc(rm.putSettingsHandler))).Methods("PUT")
	api.HandleFunc("/filters", rm.getFiltersHandler).Methods("GET")
	api.HandleFunc("/filters", rm.patchFiltersHandler).Methods("PATCH")
	api.HandleFunc("/filters", rm.resetFiltersHandler).Methods("DELETE")
}
