package main

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/manslikestiffler/smart-granary/pkg/aggregate"
	"github.com/manslikestiffler/smart-granary/pkg/alerting"
	"github.com/relvacode/iso8601"
)

// getDashboardHandler returns the full view: filtered data, analytics,
// aggregated buckets, the alert log and the latest statuses
func (rm *RouteManager) getDashboardHandler(w http.ResponseWriter, r *http.Request) {
	q, err := parseDashboardQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := rm.service.View(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// getAnalyticsHandler returns the per-sensor summaries of the filtered window
func (rm *RouteManager) getAnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	q, err := parseDashboardQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := rm.service.View(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view.Analytics)
}

// getAggregateHandler returns the aggregated buckets of the filtered window.
// Buckets keep first-seen order unless sort=true.
func (rm *RouteManager) getAggregateHandler(w http.ResponseWriter, r *http.Request) {
	q, err := parseDashboardQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := rm.service.View(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	buckets := view.AggregatedBuckets
	if sorted, _ := strconv.ParseBool(r.URL.Query().Get("sort")); sorted {
		aggregate.SortBuckets(buckets)
	}
	writeJSON(w, http.StatusOK, buckets)
}

// getStatsHandler returns the quick statistics for one sensor
func (rm *RouteManager) getStatsHandler(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["sensor"]

	stats, err := rm.service.Stats(key)
	if errors.Is(err, alerting.ErrUnknownSensor) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// getAlertsHandler returns the alert log.
// Query params:
//   - since: only alerts raised after this ISO-8601 time
//   - source: "db" reads persisted alerts instead of the in-memory log
//   - limit: number of persisted alerts (default: 100)
func (rm *RouteManager) getAlertsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if query.Get("source") == "db" {
		if rm.dbManager == nil {
			writeError(w, http.StatusServiceUnavailable, "database is disabled")
			return
		}
		limit := 100
		if l, err := strconv.Atoi(query.Get("limit")); err == nil && l > 0 {
			limit = l
		}
		alerts, err := rm.dbManager.GetAlerts(r.Context(), limit)
		if err != nil {
			log.Printf("❌ Failed to query alerts: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to query alerts")
			return
		}
		writeJSON(w, http.StatusOK, alerts)
		return
	}

	var since time.Time
	if s := query.Get("since"); s != "" {
		t, err := iso8601.ParseString(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since time: "+s)
			return
		}
		since = t
	}
	writeJSON(w, http.StatusOK, rm.service.Alerts(since))
}
