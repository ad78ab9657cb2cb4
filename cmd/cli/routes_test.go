package main

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/manslikestiffler/smart-granary/pkg/api"
	"github.com/manslikestiffler/smart-granary/pkg/config"
	"github.com/manslikestiffler/smart-granary/pkg/dashboard"
	"github.com/manslikestiffler/smart-granary/pkg/hub"
	"github.com/manslikestiffler/smart-granary/pkg/models"
)

var testNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func setupTestRouter(t *testing.T, server config.ServerConfig) (*RouteManager, *dashboard.Service) {
	t.Helper()

	service, err := dashboard.NewService(models.DefaultSensorRegistry(), models.DefaultAlertBands(),
		dashboard.WithClock(func() time.Time { return testNow }),
	)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	rm := NewRouteManager(service, hub.NewHub(), nil, server)
	rm.Setup()
	return rm, service
}

func seedReadings(t *testing.T, service *dashboard.Service) {
	t.Helper()
	readings := []models.Reading{
		models.NewReading(testNow.Add(-2*time.Minute)).
			WithValue(models.SensorKeyTemperature, 21).
			WithValue(models.SensorKeyHumidity, 50),
		models.NewReading(testNow.Add(-time.Minute)).
			WithValue(models.SensorKeyTemperature, 22).
			WithValue(models.SensorKeyHumidity, 55),
	}
	readings[0].Location = "Zone 1"
	readings[1].Location = "Zone 2"
	if n := service.Restore(readings); n != 2 {
		t.Fatalf("Expected 2 restored readings, got %d", n)
	}
}

func doRequest(rm *RouteManager, method, target string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	rm.Router.ServeHTTP(rec, req)
	return rec
}

func TestHealthHandler(t *testing.T) {
	rm, service := setupTestRouter(t, config.ServerConfig{})
	seedReadings(t, service)

	rec := doRequest(rm, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var status api.HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if status.Database != "disabled" {
		t.Errorf("Expected database disabled, got %s", status.Database)
	}
	if status.Readings != 2 {
		t.Errorf("Expected 2 readings, got %d", status.Readings)
	}
}

func TestGetLogsHandler(t *testing.T) {
	rm, service := setupTestRouter(t, config.ServerConfig{})
	seedReadings(t, service)

	rec := doRequest(rm, http.MethodGet, "/api/logs", nil, nil)
	var readings []models.Reading
	if err := json.NewDecoder(rec.Body).Decode(&readings); err != nil {
		t.Fatalf("Failed to decode logs: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("Expected 2 readings, got %d", len(readings))
	}
	if !readings[0].Timestamp.Before(readings[1].Timestamp) {
		t.Error("Expected readings oldest first")
	}
}

func TestPostReadingsHandler(t *testing.T) {
	testCases := []struct {
		name         string
		contentType  string
		body         string
		apiKey       string
		expectStatus int
		expectLen    int
	}{
		{
			name:         "JSON reading",
			contentType:  "application/json",
			body:         `{"timestamp":"2024-01-15T09:59:30.000Z","temperature":23.1}`,
			expectStatus: http.StatusAccepted,
			expectLen:    1,
		},
		{
			name:         "JSON array",
			contentType:  "application/json",
			body:         `[{"timestamp":"2024-01-15T09:59:00Z","moisture":14},{"timestamp":"2024-01-15T09:59:30Z","moisture":15}]`,
			expectStatus: http.StatusAccepted,
			expectLen:    2,
		},
		{
			name:         "Form push",
			contentType:  "application/x-www-form-urlencoded",
			body:         url.Values{"temperature": {"21.5"}, "zone": {"Zone 3"}, "timestamp": {"2024-01-15T09:59:45Z"}}.Encode(),
			expectStatus: http.StatusAccepted,
			expectLen:    1,
		},
		{
			name:         "Missing timestamp",
			contentType:  "application/json",
			body:         `{"temperature":21.5}`,
			expectStatus: http.StatusUnprocessableEntity,
		},
		{
			name:         "Invalid JSON",
			contentType:  "application/json",
			body:         `{not json`,
			expectStatus: http.StatusBadRequest,
		},
		{
			name:         "Unsupported content type",
			contentType:  "text/plain",
			body:         "temperature=21",
			expectStatus: http.StatusUnsupportedMediaType,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rm, service := setupTestRouter(t, config.ServerConfig{})

			rec := doRequest(rm, http.MethodPost, "/api/v1/readings", strings.NewReader(tc.body),
				map[string]string{"Content-Type": tc.contentType})
			if rec.Code != tc.expectStatus {
				t.Fatalf("Expected status %d, got %d: %s", tc.expectStatus, rec.Code, rec.Body.String())
			}
			if service.Len() != tc.expectLen {
				t.Errorf("Expected %d buffered readings, got %d", tc.expectLen, service.Len())
			}
		})
	}
}

func TestPostReadingsHandler_APIKey(t *testing.T) {
	rm, _ := setupTestRouter(t, config.ServerConfig{APIKey: "secret"})
	body := `{"timestamp":"2024-01-15T09:59:30Z","temperature":23.1}`

	rec := doRequest(rm, http.MethodPost, "/api/v1/readings", strings.NewReader(body),
		map[string]string{"Content-Type": "application/json"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without key, got %d", rec.Code)
	}

	rec = doRequest(rm, http.MethodPost, "/api/v1/readings", strings.NewReader(body),
		map[string]string{"Content-Type": "application/json", "X-API-Key": "secret"})
	if rec.Code != http.StatusAccepted {
		t.Errorf("Expected status 202 with key, got %d", rec.Code)
	}
}

func TestGetDashboardHandler(t *testing.T) {
	rm, service := setupTestRouter(t, config.ServerConfig{})
	seedReadings(t, service)

	rec := doRequest(rm, http.MethodGet, "/api/v1/dashboard?zones=Zone+2&interval=minute", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var view struct {
		FilteredData      []models.Reading           `json:"filteredData"`
		Analytics         map[string]json.RawMessage `json:"analyticsSummary"`
		AggregatedBuckets []map[string]interface{}   `json:"aggregatedBuckets"`
		LastReading       *models.Reading            `json:"lastReading"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("Failed to decode view: %v", err)
	}

	if len(view.FilteredData) != 1 || view.FilteredData[0].Location != "Zone 2" {
		t.Errorf("Expected only the Zone 2 reading, got %+v", view.FilteredData)
	}
	if _, ok := view.Analytics[models.SensorKeyTemperature]; !ok {
		t.Error("Expected temperature analytics")
	}
	if len(view.AggregatedBuckets) != 1 {
		t.Errorf("Expected 1 minute bucket, got %d", len(view.AggregatedBuckets))
	}
	if view.LastReading == nil {
		t.Error("Expected last reading")
	}
}

func TestGetDashboardHandler_InvalidQuery(t *testing.T) {
	rm, _ := setupTestRouter(t, config.ServerConfig{})

	testCases := []struct {
		name  string
		query string
	}{
		{name: "Invalid window", query: "window=soon"},
		{name: "Invalid interval", query: "interval=week"},
		{name: "Unknown threshold class", query: "thresholds=extreme"},
		{name: "Start without end", query: "start=2024-01-15T09:00:00Z"},
		{name: "Inverted range", query: "start=2024-01-15T10:00:00Z&end=2024-01-15T09:00:00Z"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(rm, http.MethodGet, "/api/v1/dashboard?"+tc.query, nil, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestGetStatsHandler(t *testing.T) {
	rm, service := setupTestRouter(t, config.ServerConfig{})
	seedReadings(t, service)

	rec := doRequest(rm, http.MethodGet, "/api/v1/stats/temperature", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var stats models.SensorStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.Current != 22 || stats.Average != 21.5 {
		t.Errorf("Expected current 22 and average 21.5, got %v and %v", stats.Current, stats.Average)
	}

	rec = doRequest(rm, http.MethodGet, "/api/v1/stats/radiation", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown sensor, got %d", rec.Code)
	}
}

func TestExportHandler(t *testing.T) {
	rm, service := setupTestRouter(t, config.ServerConfig{})

	rec := doRequest(rm, http.MethodGet, "/api/v1/export", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 without data, got %d", rec.Code)
	}

	seedReadings(t, service)

	rec = doRequest(rm, http.MethodGet, "/api/v1/export", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Expected text/csv, got %s", ct)
	}
	lines := strings.Split(rec.Body.String(), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header and 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "id,timestamp,temperature,humidity,location" {
		t.Errorf("Unexpected header: %s", lines[0])
	}

	rec = doRequest(rm, http.MethodGet, "/api/v1/export?compress=gzip", nil, nil)
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "sensor-data.csv.gz") {
		t.Errorf("Expected gzip filename, got %s", rec.Header().Get("Content-Disposition"))
	}
	zr, err := gzip.NewReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("Failed to open gzip body: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("Failed to read gzip body: %v", err)
	}
	if strings.Count(string(data), "\n") != 2 {
		t.Errorf("Expected 2 rows in compressed export, got %q", data)
	}
}

func TestSettingsHandlers(t *testing.T) {
	rm, service := setupTestRouter(t, config.ServerConfig{})

	settings := service.Settings()
	settings.Thresholds[models.SensorKeyTemperature] = models.Range{Min: 10, Max: 40}
	body, _ := json.Marshal(settings)

	rec := doRequest(rm, http.MethodPut, "/api/v1/settings", bytes.NewReader(body), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := service.Registry()[models.SensorKeyTemperature].Ranges.Max; got != 40 {
		t.Errorf("Expected temperature max 40, got %v", got)
	}

	settings.Thresholds["radiation"] = models.Range{Min: 0, Max: 1}
	body, _ = json.Marshal(settings)
	rec = doRequest(rm, http.MethodPut, "/api/v1/settings", bytes.NewReader(body), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown sensor, got %d", rec.Code)
	}
}

func TestFilterHandlers(t *testing.T) {
	rm, service := setupTestRouter(t, config.ServerConfig{})
	seedReadings(t, service)

	rec := doRequest(rm, http.MethodPatch, "/api/v1/filters", strings.NewReader(`{"zones":["Zone 1"]}`), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	rec = doRequest(rm, http.MethodGet, "/api/v1/readings", nil, nil)
	var readings []models.Reading
	json.NewDecoder(rec.Body).Decode(&readings)
	if len(readings) != 1 || readings[0].Location != "Zone 1" {
		t.Errorf("Expected stored filter to apply, got %+v", readings)
	}

	rec = doRequest(rm, http.MethodPatch, "/api/v1/filters", strings.NewReader(`{"thresholds":"extreme"}`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid patch, got %d", rec.Code)
	}

	rec = doRequest(rm, http.MethodDelete, "/api/v1/filters", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !service.Filters().State().IsNoop() {
		t.Error("Expected filters to be reset")
	}
}

func TestGetReadingHistoryHandler_NoDatabase(t *testing.T) {
	rm, _ := setupTestRouter(t, config.ServerConfig{})

	rec := doRequest(rm, http.MethodGet, "/api/v1/readings/history", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	rm, _ := setupTestRouter(t, config.ServerConfig{AllowedOrigins: []string{"http://granary.local"}})

	rec := doRequest(rm, http.MethodOptions, "/api/v1/readings", nil, map[string]string{"Origin": "http://granary.local"})
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://granary.local" {
		t.Errorf("Expected allowed origin header, got %q", got)
	}
}
