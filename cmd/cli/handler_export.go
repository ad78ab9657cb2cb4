package main

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/klauspost/compress/gzip"
	"github.com/manslikestiffler/smart-granary/pkg/export"
)

// exportHandler downloads the filtered window as CSV. It accepts the same
// query params as the dashboard plus compress=gzip.
func (rm *RouteManager) exportHandler(w http.ResponseWriter, r *http.Request) {
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

	compress := r.URL.Query().Get("compress") == "gzip"

	var buf bytes.Buffer
	if compress {
		err = export.WriteGzipCSV(&buf, readings, gzip.DefaultCompression)
	} else {
		err = export.WriteCSV(&buf, readings)
	}
	if errors.Is(err, export.ErrNoData) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		log.Printf("❌ Failed to export readings: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to export readings")
		return
	}

	filename := export.DefaultFilename
	if compress {
		filename += ".gz"
		w.Header().Set("Content-Type", "application/gzip")
	} else {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
