package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/relvacode/iso8601"
)

// ISOLayout renders timestamps the way the dashboard client does (millisecond precision, UTC).
const ISOLayout = "2006-01-02T15:04:05.000Z07:00"

// ErrMalformedReading is returned for readings without a timestamp.
var ErrMalformedReading = errors.New("malformed reading: missing timestamp")

// Reading represents a single point-in-time sample from the granary sensors.
// Sensor fields are optional; a nil pointer means the sensor did not report.
type Reading struct {
	ID           int64
	Timestamp    time.Time
	Temperature  *float64
	Humidity     *float64
	Moisture     *float64
	PestActivity *float64
	CO2          *float64
	Airflow      *float64
	Location     string
	// Zone is the payload's zone tag when it differs from Location
	Zone string
}

type readingJSON struct {
	ID           int64    `json:"id"`
	Timestamp    string   `json:"timestamp,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	Humidity     *float64 `json:"humidity,omitempty"`
	Moisture     *float64 `json:"moisture,omitempty"`
	PestActivity *float64 `json:"pestActivity,omitempty"`
	CO2          *float64 `json:"co2,omitempty"`
	Airflow      *float64 `json:"airflow,omitempty"`
	Location     string   `json:"location,omitempty"`
	Zone         string   `json:"zone,omitempty"`
}

// Float returns a pointer to v, for building readings in code.
func Float(v float64) *float64 {
	return &v
}

// NewReading creates a reading stamped at ts with a time-derived ID
func NewReading(ts time.Time) Reading {
	return Reading{
		ID:        ts.UnixMilli(),
		Timestamp: ts,
	}
}

// IsValid reports whether the reading can be ordered and bucketed
func (r Reading) IsValid() bool {
	return !r.Timestamp.IsZero()
}

// ISOTimestamp returns the timestamp in the client's ISO-8601 form, or "" when absent.
func (r Reading) ISOTimestamp() string {
	if r.Timestamp.IsZero() {
		return ""
	}
	return r.Timestamp.UTC().Format(ISOLayout)
}

// Value returns the value of the given sensor key and whether it is defined.
func (r Reading) Value(key string) (float64, bool) {
	var p *float64
	switch key {
	case SensorKeyTemperature:
		p = r.Temperature
	case SensorKeyHumidity:
		p = r.Humidity
	case SensorKeyMoisture:
		p = r.Moisture
	case SensorKeyPestActivity:
		p = r.PestActivity
	case SensorKeyCO2:
		p = r.CO2
	case SensorKeyAirflow:
		p = r.Airflow
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// WithValue returns a copy of the reading with key set to v. Unknown keys are ignored.
func (r Reading) WithValue(key string, v float64) Reading {
	switch key {
	case SensorKeyTemperature:
		r.Temperature = Float(v)
	case SensorKeyHumidity:
		r.Humidity = Float(v)
	case SensorKeyMoisture:
		r.Moisture = Float(v)
	case SensorKeyPestActivity:
		r.PestActivity = Float(v)
	case SensorKeyCO2:
		r.CO2 = Float(v)
	case SensorKeyAirflow:
		r.Airflow = Float(v)
	}
	return r
}

// Values returns every defined sensor value keyed by sensor key.
func (r Reading) Values() map[string]float64 {
	values := make(map[string]float64)
	for _, key := range SensorKeys {
		if v, ok := r.Value(key); ok {
			values[key] = v
		}
	}
	return values
}

// StringFields lists the string-valued fields as they appear on the wire.
func (r Reading) StringFields() []string {
	var fields []string
	if ts := r.ISOTimestamp(); ts != "" {
		fields = append(fields, ts)
	}
	if r.Location != "" {
		fields = append(fields, r.Location)
	}
	if r.Zone != "" && r.Zone != r.Location {
		fields = append(fields, r.Zone)
	}
	return fields
}

// MarshalJSON implements json.Marshaler
func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(readingJSON{
		ID:           r.ID,
		Timestamp:    r.ISOTimestamp(),
		Temperature:  r.Temperature,
		Humidity:     r.Humidity,
		Moisture:     r.Moisture,
		PestActivity: r.PestActivity,
		CO2:          r.CO2,
		Airflow:      r.Airflow,
		Location:     r.Location,
		Zone:         r.zoneTag(),
	})
}

func (r Reading) zoneTag() string {
	if r.Zone == r.Location {
		return ""
	}
	return r.Zone
}

// UnmarshalJSON implements json.Unmarshaler. A missing timestamp leaves the reading
// malformed rather than failing the decode; an unparsable one is an error.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var raw readingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var ts time.Time
	if raw.Timestamp != "" {
		parsed, err := iso8601.ParseString(raw.Timestamp)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", raw.Timestamp, err)
		}
		ts = parsed
	}

	location := raw.Location
	zone := raw.Zone
	if location == "" {
		location = zone
	}
	if zone == location {
		zone = ""
	}

	*r = Reading{
		ID:           raw.ID,
		Timestamp:    ts,
		Temperature:  raw.Temperature,
		Humidity:     raw.Humidity,
		Moisture:     raw.Moisture,
		PestActivity: raw.PestActivity,
		CO2:          raw.CO2,
		Airflow:      raw.Airflow,
		Location:     location,
		Zone:         zone,
	}
	return nil
}

// ReadingQueryParams holds all query parameters for stored reading queries
type ReadingQueryParams struct {
	Location  string
	StartTime string
	EndTime   string
	Limit     int
	Page      int
	Order     string
}

// Validate checks if the query parameters are valid
func (p *ReadingQueryParams) Validate() error {
	// Validate limit
	if p.Limit < 1 || p.Limit > 10000 {
		return fmt.Errorf("limit must be between 1 and 10000")
	}

	// Validate page
	if p.Page < 1 {
		return fmt.Errorf("page must be greater than 0")
	}

	if p.Order != "asc" && p.Order != "desc" {
		return fmt.Errorf("invalid order: %s (valid: asc, desc)", p.Order)
	}

	var start, end time.Time
	if p.StartTime != "" {
		t, err := iso8601.ParseString(p.StartTime)
		if err != nil {
			return fmt.Errorf("invalid start time: %s", p.StartTime)
		}
		start = t
	}
	if p.EndTime != "" {
		t, err := iso8601.ParseString(p.EndTime)
		if err != nil {
			return fmt.Errorf("invalid end time: %s", p.EndTime)
		}
		end = t
	}
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return fmt.Errorf("start time must not be after end time")
	}

	return nil
}

// ReadingsResponse wraps a page of stored readings
type ReadingsResponse struct {
	Data       []Reading `json:"data"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	TotalPages int       `json:"total_pages"`
	Limit      int       `json:"limit"`
	HasMore    bool      `json:"has_more"`
}
