package models

import (
	"fmt"
	"sort"
)

// Sensor keys for the granary sensors
const (
	SensorKeyTemperature  = "temperature"
	SensorKeyHumidity     = "humidity"
	SensorKeyMoisture     = "moisture"
	SensorKeyPestActivity = "pestActivity"
	SensorKeyCO2          = "co2"
	SensorKeyAirflow      = "airflow"
)

// SensorKeys is the fixed set of known sensor keys in canonical order.
var SensorKeys = []string{
	SensorKeyTemperature,
	SensorKeyHumidity,
	SensorKeyMoisture,
	SensorKeyPestActivity,
	SensorKeyCO2,
	SensorKeyAirflow,
}

// IsSensorKey reports whether key is one of the known sensor keys
func IsSensorKey(key string) bool {
	for _, k := range SensorKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Range holds the nominal display range of a sensor
type Range struct {
	Min      float64  `json:"min" mapstructure:"min"`
	Max      float64  `json:"max" mapstructure:"max"`
	Optimal  *float64 `json:"optimal,omitempty" mapstructure:"optimal"`
	Critical *float64 `json:"critical,omitempty" mapstructure:"critical"`
}

// Validate checks min < max and that optimal lies within the range
func (r Range) Validate() error {
	if r.Min >= r.Max {
		return fmt.Errorf("range min (%v) must be less than max (%v)", r.Min, r.Max)
	}
	if r.Optimal != nil && (*r.Optimal < r.Min || *r.Optimal > r.Max) {
		return fmt.Errorf("optimal value %v outside range [%v, %v]", *r.Optimal, r.Min, r.Max)
	}
	return nil
}

// Contains reports whether v lies within [Min, Max]
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Midpoint returns the optimal value, falling back to the middle of the range
func (r Range) Midpoint() float64 {
	if r.Optimal != nil {
		return *r.Optimal
	}
	return (r.Max + r.Min) / 2
}

// SensorType describes a sensor: its unit, presentation color and display ranges
type SensorType struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Unit        string `json:"unit"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
	Ranges      Range  `json:"ranges"`
}

// SensorRegistry maps sensor keys to their descriptors. It is the DisplayRanges table.
type SensorRegistry map[string]SensorType

// Keys returns the registered keys, known sensors first in canonical order, then the rest sorted.
func (r SensorRegistry) Keys() []string {
	keys := make([]string, 0, len(r))
	for _, k := range SensorKeys {
		if _, ok := r[k]; ok {
			keys = append(keys, k)
		}
	}

	var extra []string
	for k := range r {
		if !IsSensorKey(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)

	return append(keys, extra...)
}

// Validate checks every registered range
func (r SensorRegistry) Validate() error {
	for _, key := range r.Keys() {
		if err := r[key].Ranges.Validate(); err != nil {
			return fmt.Errorf("sensor %s: %w", key, err)
		}
	}
	return nil
}

// Clone returns a deep copy of the registry
func (r SensorRegistry) Clone() SensorRegistry {
	out := make(SensorRegistry, len(r))
	for k, st := range r {
		if st.Ranges.Optimal != nil {
			st.Ranges.Optimal = Float(*st.Ranges.Optimal)
		}
		if st.Ranges.Critical != nil {
			st.Ranges.Critical = Float(*st.Ranges.Critical)
		}
		out[k] = st
	}
	return out
}

// DefaultSensorRegistry returns a fresh copy of the granary sensor descriptors
func DefaultSensorRegistry() SensorRegistry {
	return SensorRegistry{
		SensorKeyTemperature: {
			Key:         SensorKeyTemperature,
			Name:        "Temperature",
			Unit:        "°C",
			Color:       "#dc2626",
			Description: "Monitors ambient temperature in the granary",
			Ranges:      Range{Min: 15, Max: 30, Optimal: Float(22)},
		},
		SensorKeyHumidity: {
			Key:         SensorKeyHumidity,
			Name:        "Humidity",
			Unit:        "%",
			Color:       "#22c55e",
			Description: "Tracks relative humidity levels",
			Ranges:      Range{Min: 30, Max: 70, Optimal: Float(45)},
		},
		SensorKeyMoisture: {
			Key:         SensorKeyMoisture,
			Name:        "Grain Moisture",
			Unit:        "%",
			Color:       "#eab308",
			Description: "Measures moisture content in stored grain",
			Ranges:      Range{Min: 12, Max: 18, Optimal: Float(14)},
		},
		SensorKeyPestActivity: {
			Key:         SensorKeyPestActivity,
			Name:        "Pest Activity",
			Unit:        "events/hr",
			Color:       "#f97316",
			Description: "Detects and monitors pest presence",
			Ranges:      Range{Min: 0, Max: 10, Critical: Float(5)},
		},
		SensorKeyCO2: {
			Key:         SensorKeyCO2,
			Name:        "CO2 Level",
			Unit:        "ppm",
			Color:       "#059669",
			Description: "Monitors carbon dioxide concentration",
			Ranges:      Range{Min: 350, Max: 1000, Optimal: Float(400)},
		},
		SensorKeyAirflow: {
			Key:         SensorKeyAirflow,
			Name:        "Air Flow",
			Unit:        "m³/h",
			Color:       "#2563eb",
			Description: "Measures ventilation rate",
			Ranges:      Range{Min: 100, Max: 500, Optimal: Float(300)},
		},
	}
}
