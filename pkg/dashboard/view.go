package dashboard

import (
	"fmt"
	"time"

	"github.com/manslikestiffler/smart-granary/pkg/aggregate"
	"github.com/manslikestiffler/smart-granary/pkg/alerting"
	"github.com/manslikestiffler/smart-granary/pkg/analytics"
	"github.com/manslikestiffler/smart-granary/pkg/filter"
	"github.com/manslikestiffler/smart-granary/pkg/models"
)

// Query selects what a view is built from. Zero values fall back to the
// service defaults and the stored filter state.
type Query struct {
	Window   time.Duration
	Interval models.Interval
	Filter   *models.FilterState
}

// View builds the dashboard view: the windowed snapshot is filtered, then
// analyzed and aggregated. Alerts are the full log.
func (s *Service) View(q Query) (models.DashboardView, error) {
	readings, err := s.Readings(q)
	if err != nil {
		return models.DashboardView{}, err
	}

	interval := q.Interval
	if !interval.Valid() {
		interval = s.interval
	}

	registry := s.Registry()
	view := models.DashboardView{
		FilteredData:      readings,
		Analytics:         analytics.Analyze(readings, registry, s.analyticsOpts...),
		AggregatedBuckets: aggregate.Aggregate(readings, interval, s.aggregateOpts...),
		Alerts:            s.monitor.Alerts(),
	}

	if latest, ok := s.buffer.Latest(); ok {
		view.LastReading = &latest
		view.Statuses = s.classifier.Annotate(latest)
	}
	return view, nil
}

// Readings returns the filtered windowed snapshot for q
func (s *Service) Readings(q Query) ([]models.Reading, error) {
	window := q.Window
	if window <= 0 {
		window = s.window
	}
	snapshot := s.buffer.Snapshot(window)

	if q.Filter == nil {
		return s.filters.Apply(snapshot), nil
	}
	if err := q.Filter.Validate(); err != nil {
		return nil, err
	}
	return filter.Apply(snapshot, *q.Filter, s.Registry()), nil
}

// Dataset returns every buffered reading, oldest first
func (s *Service) Dataset() []models.Reading {
	return s.buffer.Snapshot(0)
}

// Stats returns the quick statistics for one sensor over the default window
func (s *Service) Stats(key string) (models.SensorStats, error) {
	if _, ok := s.Registry()[key]; !ok {
		return models.SensorStats{}, fmt.Errorf("%w: %s", alerting.ErrUnknownSensor, key)
	}
	stats, _ := analytics.Stats(s.buffer.Snapshot(s.window), key)
	return stats, nil
}

// AnnotatedReading pairs a reading with the status of each of its sensors
type AnnotatedReading struct {
	Reading  models.Reading           `json:"reading"`
	Statuses map[string]models.Status `json:"statuses"`
	Overall  models.Status            `json:"overall"`
}

// Annotated classifies every reading in the default window
func (s *Service) Annotated() []AnnotatedReading {
	snapshot := s.buffer.Snapshot(s.window)
	out := make([]AnnotatedReading, 0, len(snapshot))
	for _, r := range snapshot {
		statuses := s.classifier.Annotate(r)
		out = append(out, AnnotatedReading{Reading: r, Statuses: statuses, Overall: alerting.Worst(statuses)})
	}
	return out
}

// Alerts returns the alert log, or only the alerts raised after since when it is set
func (s *Service) Alerts(since time.Time) []models.Alert {
	if since.IsZero() {
		return s.monitor.Alerts()
	}
	return s.monitor.Since(since)
}

// Filters returns the filter engine holding the stored filter state
func (s *Service) Filters() *filter.Engine {
	return s.filters
}

// Classifier returns the status classifier
func (s *Service) Classifier() *alerting.Classifier {
	return s.classifier
}

// Registry returns the sensor registry with the current settings applied
func (s *Service) Registry() models.SensorRegistry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Clone()
}

// Settings returns a copy of the current settings
func (s *Service) Settings() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.settings
	out.Thresholds = make(map[string]models.Range, len(s.settings.Thresholds))
	for k, v := range s.settings.Thresholds {
		out.Thresholds[k] = v
	}
	out.Zones = append([]models.Zone{}, s.settings.Zones...)
	return out
}

// UpdateSettings validates and stores settings. Threshold overrides take effect
// for later alert evaluations and threshold filters.
func (s *Service) UpdateSettings(settings models.Settings) (models.Settings, error) {
	registry, err := settings.Apply(s.base)
	if err != nil {
		return models.Settings{}, fmt.Errorf("invalid settings: %w", err)
	}

	s.mu.Lock()
	s.settings = settings
	s.registry = registry
	s.mu.Unlock()

	s.monitor.SetRegistry(registry)
	s.filters.SetRegistry(registry)
	return settings, nil
}

// Len returns the number of buffered readings
func (s *Service) Len() int {
	return s.buffer.Len()
}

// Window returns the default snapshot window
func (s *Service) Window() time.Duration {
	return s.window
}
