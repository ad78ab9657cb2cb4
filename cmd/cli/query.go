package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/manslikestiffler/smart-granary/pkg/dashboard"
	"github.com/manslikestiffler/smart-granary/pkg/models"
	"github.com/relvacode/iso8601"
)

// parseDashboardQuery reads the view query from the URL.
// Query params:
//   - window: snapshot window as a Go duration (e.g. 30m, 2h)
//   - interval: aggregation interval (minute, hour, day)
//   - search: free-text search over string fields
//   - sensors: comma-separated sensor keys
//   - zones: comma-separated zone names
//   - thresholds: threshold class (all, normal, warning, error)
//   - start, end: inclusive time range (ISO-8601, both required)
//
// Without any filter param the stored filter state applies.
func parseDashboardQuery(r *http.Request) (dashboard.Query, error) {
	params := r.URL.Query()
	var q dashboard.Query

	if window := params.Get("window"); window != "" {
		d, err := time.ParseDuration(window)
		if err != nil || d <= 0 {
			return q, fmt.Errorf("invalid window: %s", window)
		}
		q.Window = d
	}

	if interval := params.Get("interval"); interval != "" {
		q.Interval = models.Interval(interval)
		if !q.Interval.Valid() {
			return q, fmt.Errorf("invalid interval: %s (valid: minute, hour, day)", interval)
		}
	}

	filterKeys := []string{"search", "sensors", "zones", "thresholds", "start", "end"}
	hasFilter := false
	for _, key := range filterKeys {
		if _, ok := params[key]; ok {
			hasFilter = true
			break
		}
	}
	if !hasFilter {
		return q, nil
	}

	state := models.DefaultFilterState()
	state.Search = params.Get("search")
	state.SensorTypes = splitList(params.Get("sensors"))
	state.Zones = splitList(params.Get("zones"))
	if th := params.Get("thresholds"); th != "" {
		state.Thresholds = models.ThresholdClass(th)
	}

	start, end := params.Get("start"), params.Get("end")
	if start != "" || end != "" {
		if start == "" || end == "" {
			return q, fmt.Errorf("%w: start and end must be given together", models.ErrInvalidFilter)
		}
		s, err := iso8601.ParseString(start)
		if err != nil {
			return q, fmt.Errorf("invalid start time: %s", start)
		}
		e, err := iso8601.ParseString(end)
		if err != nil {
			return q, fmt.Errorf("invalid end time: %s", end)
		}
		state.TimeRange = &models.TimeRange{Start: s, End: e}
	}

	if err := state.Validate(); err != nil {
		return q, err
	}
	q.Filter = &state
	return q, nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
