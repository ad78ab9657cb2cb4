package alerting

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/manslikestiffler/smart-granary/pkg/models"
)

// DefaultSeverityFactor narrows the alert band inside the display range
const DefaultSeverityFactor = 0.8

// MonitorOption configures a Monitor
type MonitorOption func(*Monitor)

// WithSeverityFactor sets the factor in (0, 1] applied to the display range
func WithSeverityFactor(f float64) MonitorOption {
	return func(m *Monitor) {
		if f > 0 && f <= 1 {
			m.factor = f
		}
	}
}

// WithClock sets the clock used to stamp alerts for readings without a timestamp
func WithClock(clock func() time.Time) MonitorOption {
	return func(m *Monitor) {
		m.now = clock
	}
}

// Monitor evaluates readings against the sensor registry and keeps every alert
// it has raised. Alerts are never resolved or removed.
type Monitor struct {
	mu       sync.RWMutex
	registry models.SensorRegistry
	factor   float64
	now      func() time.Time
	alerts   []models.Alert
}

// NewMonitor creates a monitor over a copy of registry
func NewMonitor(registry models.SensorRegistry, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		registry: registry.Clone(),
		factor:   DefaultSeverityFactor,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Thresholds returns the alert edges derived from a display range
func Thresholds(rng models.Range, factor float64) (minThreshold, maxThreshold float64) {
	maxThreshold = rng.Max * factor
	minThreshold = rng.Min + (rng.Max-rng.Min)*(1-factor)
	return minThreshold, maxThreshold
}

// SeverityFactor returns the configured factor
func (m *Monitor) SeverityFactor() float64 {
	return m.factor
}

// SetRegistry replaces the ranges used for later evaluations
func (m *Monitor) SetRegistry(registry models.SensorRegistry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry = registry.Clone()
}

// Evaluate checks each registered sensor present in latest and returns the
// alerts raised, which are also appended to the log. Alerts carry the reading's
// timestamp. A value still beyond its threshold raises a new alert on every call.
func (m *Monitor) Evaluate(latest models.Reading) []models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	stamp := latest.Timestamp
	if stamp.IsZero() {
		stamp = m.now()
	}

	var raised []models.Alert
	for _, key := range m.registry.Keys() {
		value, ok := latest.Value(key)
		if !ok {
			continue
		}

		st := m.registry[key]
		minThreshold, maxThreshold := Thresholds(st.Ranges, m.factor)

		var alertType models.AlertType
		var direction string
		switch {
		case value > maxThreshold:
			alertType, direction = models.AlertTypeError, "too high"
		case value < minThreshold:
			alertType, direction = models.AlertTypeWarning, "too low"
		default:
			continue
		}

		raised = append(raised, models.Alert{
			ID:         m.newID(),
			Type:       alertType,
			SensorType: key,
			Value:      value,
			Timestamp:  stamp,
			Message:    fmt.Sprintf("%s %s: %s%s", st.Name, direction, formatValue(value), st.Unit),
		})
	}

	m.alerts = append(m.alerts, raised...)
	return raised
}

// EvaluateLatest evaluates the last reading of a chronological snapshot
func (m *Monitor) EvaluateLatest(readings []models.Reading) []models.Alert {
	if len(readings) == 0 {
		return nil
	}
	return m.Evaluate(readings[len(readings)-1])
}

// Alerts returns a copy of every alert raised so far, oldest first
func (m *Monitor) Alerts() []models.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// Since returns the alerts raised strictly after t
func (m *Monitor) Since(t time.Time) []models.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Alert
	for _, a := range m.alerts {
		if a.Timestamp.After(t) {
			out = append(out, a)
		}
	}
	return out
}

func (m *Monitor) newID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// formatValue renders a value the way the dashboard prints numbers
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
