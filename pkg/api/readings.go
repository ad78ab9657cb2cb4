package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/manslikestiffler/smart-granary/pkg/models"
)

// GetLogs retrieves the full reading log. Readings are returned in server order.
func (c *Client) GetLogs(ctx context.Context) ([]models.Reading, error) {
	var readings []models.Reading
	if err := c.getJSON(ctx, "/api/logs", &readings); err != nil {
		return nil, err
	}
	return readings, nil
}

// PostReading submits one reading for ingestion
func (c *Client) PostReading(ctx context.Context, r models.Reading) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/v1/readings", r)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// DashboardQuery selects the window and filters for a dashboard view
type DashboardQuery struct {
	Window   string
	Interval models.Interval
	Search   string
	Sensors  []string
	Zones    []string
	Status   models.ThresholdClass
}

func (q DashboardQuery) values() url.Values {
	params := url.Values{}
	if q.Window != "" {
		params.Set("window", q.Window)
	}
	if q.Interval != "" {
		params.Set("interval", string(q.Interval))
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if len(q.Sensors) > 0 {
		params.Set("sensors", strings.Join(q.Sensors, ","))
	}
	if len(q.Zones) > 0 {
		params.Set("zones", strings.Join(q.Zones, ","))
	}
	if q.Status != "" {
		params.Set("thresholds", string(q.Status))
	}
	return params
}

// GetDashboard retrieves the derived dashboard view
func (c *Client) GetDashboard(ctx context.Context, q DashboardQuery) (*models.DashboardView, error) {
	path := "/api/v1/dashboard"
	if params := q.values(); len(params) > 0 {
		path += "?" + params.Encode()
	}

	var view models.DashboardView
	if err := c.getJSON(ctx, path, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// GetAlerts retrieves every alert raised by the server's monitor
func (c *Client) GetAlerts(ctx context.Context) ([]models.Alert, error) {
	var alerts []models.Alert
	if err := c.getJSON(ctx, "/api/v1/alerts", &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// GetSensorTypes retrieves the sensor registry in effect on the server
func (c *Client) GetSensorTypes(ctx context.Context) (models.SensorRegistry, error) {
	var registry models.SensorRegistry
	if err := c.getJSON(ctx, "/api/v1/sensor-types", &registry); err != nil {
		return nil, err
	}
	return registry, nil
}

// GetSettings retrieves the current settings
func (c *Client) GetSettings(ctx context.Context) (*models.Settings, error) {
	var settings models.Settings
	if err := c.getJSON(ctx, "/api/v1/settings", &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpdateSettings replaces the server settings and returns what was stored
func (c *Client) UpdateSettings(ctx context.Context, settings models.Settings) (*models.Settings, error) {
	resp, err := c.doRequest(ctx, http.MethodPut, "/api/v1/settings", settings)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var stored models.Settings
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &stored, nil
}
