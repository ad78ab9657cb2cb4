package models

import (
	"encoding/json"
	"time"
)

// Interval is the bucket width used for aggregation
type Interval string

const (
	IntervalMinute Interval = "minute"
	IntervalHour   Interval = "hour"
	IntervalDay    Interval = "day"
)

// ParseInterval maps a name to an Interval; anything unknown falls back to hourly buckets.
func ParseInterval(s string) Interval {
	switch Interval(s) {
	case IntervalMinute, IntervalHour, IntervalDay:
		return Interval(s)
	default:
		return IntervalHour
	}
}

// Valid reports whether i is one of the supported intervals
func (i Interval) Valid() bool {
	return i == IntervalMinute || i == IntervalHour || i == IntervalDay
}

// AggregatedBucket holds per-sensor means for one time bucket.
// Sensors without any contributing reading are absent from Means.
type AggregatedBucket struct {
	Timestamp time.Time
	Means     map[string]float64
	Readings  int
}

// MarshalJSON flattens the means next to the bucket timestamp and count
func (b AggregatedBucket) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(b.Means)+2)
	for k, v := range b.Means {
		out[k] = v
	}
	out["timestamp"] = b.Timestamp.UTC().Format(ISOLayout)
	out["readings"] = b.Readings
	return json.Marshal(out)
}
