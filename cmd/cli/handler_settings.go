package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/manslikestiffler/smart-granary/pkg/models"
)

// getSensorTypesHandler returns the sensor registry with current overrides
func (rm *RouteManager) getSensorTypesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rm.service.Registry())
}

func (rm *RouteManager) getSettingsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rm.service.Settings())
}

// putSettingsHandler replaces the settings. Threshold overrides apply to
// later alert evaluations and threshold filters.
func (rm *RouteManager) putSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var settings models.Settings
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadBytes)).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := rm.service.UpdateSettings(settings)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// getFiltersHandler returns the stored filter state
func (rm *RouteManager) getFiltersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rm.service.Filters().State())
}

// patchFiltersHandler merges a partial update into the stored filter state
func (rm *RouteManager) patchFiltersHandler(w http.ResponseWriter, r *http.Request) {
	var patch models.FilterPatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadBytes)).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := rm.service.Filters().Update(patch)
	if errors.Is(err, models.ErrInvalidFilter) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// resetFiltersHandler restores the default filter state
func (rm *RouteManager) resetFiltersHandler(w http.ResponseWriter, r *http.Request) {
	rm.service.Filters().Reset()
	writeJSON(w, http.StatusOK, rm.service.Filters().State())
}
