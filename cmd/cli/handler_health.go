package main

import (
	"net/http"
	"time"

	"github.com/manslikestiffler/smart-granary/pkg/api"
	"github.com/manslikestiffler/smart-granary/pkg/models"
)

// healthHandler returns server health status
func (rm *RouteManager) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := api.HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(models.ISOLayout),
		Database:  "disabled",
		Readings:  rm.service.Len(),
	}

	if rm.dbManager != nil {
		conn := rm.dbManager.ConnectionStatus()
		status.Database = "ok"
		status.Failures = conn.Failures
		if !conn.Healthy {
			status.Database = "unhealthy"
			status.Status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, status)
}
