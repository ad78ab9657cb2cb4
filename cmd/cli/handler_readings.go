package main

import (
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/manslikestiffler/smart-granary/pkg/models"
)

const maxPayloadBytes = 1 << 20

// getLogsHandler returns every buffered reading, oldest first
func (rm *RouteManager) getLogsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rm.service.Dataset())
}

// getReadingsHandler returns the filtered readings of the window
func (rm *RouteManager) getReadingsHandler(w http.ResponseWriter, r *http.Request) {
	q, err := parseDashboardQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings, err := rm.service.Readings(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

// postReadingsHandler ingests readings pushed by gateways. The body format
// follows the Content-Type (JSON by default, or form-encoded).
func (rm *RouteManager) postReadingsHandler(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}

	p, ok := rm.parsers.ForContentType(contentType)
	if !ok {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported content type: "+contentType)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	readings, err := p.Parse(body)
	if err != nil {
		log.Printf("❌ Failed to parse %s payload: %v", p.Format(), err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	accepted := rm.service.Ingest(r.Context(), readings)
	if accepted == 0 && len(readings) > 0 {
		writeError(w, http.StatusUnprocessableEntity, models.ErrMalformedReading.Error())
		return
	}

	log.Printf("✓ Pushed %d readings (%s)", accepted, p.Format())
	writeJSON(w, http.StatusAccepted, map[string]int{
		"accepted": accepted,
		"rejected": len(readings) - accepted,
	})
}

// getReadingHistoryHandler pages through stored readings.
// Query params:
//   - location: filter by zone
//   - start, end: ISO-8601 bounds
//   - limit: page size (default: 100, max: 10000)
//   - page: page number (default: 1)
//   - order: asc/desc (default: desc)
func (rm *RouteManager) getReadingHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if rm.dbManager == nil {
		writeError(w, http.StatusServiceUnavailable, "database is disabled")
		return
	}

	params := parseReadingQueryParams(r)
	if err := params.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := rm.dbManager.GetReadings(r.Context(), params)
	if err != nil {
		log.Printf("❌ Failed to query readings: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to query readings")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// getAnnotatedHandler returns the window's readings with per-sensor statuses
func (rm *RouteManager) getAnnotatedHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rm.service.Annotated())
}

func parseReadingQueryParams(r *http.Request) models.ReadingQueryParams {
	query := r.URL.Query()
	params := models.ReadingQueryParams{
		Location:  query.Get("location"),
		StartTime: query.Get("start"),
		EndTime:   query.Get("end"),
		Limit:     100,
		Page:      1,
		Order:     "desc",
	}

	if l, err := strconv.Atoi(query.Get("limit")); err == nil {
		params.Limit = l
	}
	if p, err := strconv.Atoi(query.Get("page")); err == nil {
		params.Page = p
	}
	if order := query.Get("order"); order != "" {
		params.Order = order
	}

	return params
}
