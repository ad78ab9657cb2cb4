package models

import (
	"encoding/json"
	"math"
	"time"
)

// AnalyticsSummary holds descriptive statistics for one sensor over a dataset.
// Trend is NaN with fewer than two values and Stability is not clamped; both
// encode as null in JSON when they are not finite.
type AnalyticsSummary struct {
	Current              float64
	Min                  float64
	Max                  float64
	Mean                 float64
	Median               float64
	StdDev               float64
	Trend                float64
	OutOfRangePercentage float64
	Stability            float64
	Readings             int
	LastUpdate           time.Time
}

type analyticsSummaryJSON struct {
	Current              *float64 `json:"current"`
	Min                  *float64 `json:"min"`
	Max                  *float64 `json:"max"`
	Mean                 *float64 `json:"mean"`
	Median               *float64 `json:"median"`
	StdDev               *float64 `json:"stdDev"`
	Trend                *float64 `json:"trend"`
	OutOfRangePercentage *float64 `json:"outOfRangePercentage"`
	Stability            *float64 `json:"stability"`
	Readings             int      `json:"readings"`
	LastUpdate           string   `json:"lastUpdate,omitempty"`
}

// finite returns nil for NaN and infinities so they encode as JSON null
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// MarshalJSON implements json.Marshaler
func (s AnalyticsSummary) MarshalJSON() ([]byte, error) {
	out := analyticsSummaryJSON{
		Current:              finite(s.Current),
		Min:                  finite(s.Min),
		Max:                  finite(s.Max),
		Mean:                 finite(s.Mean),
		Median:               finite(s.Median),
		StdDev:               finite(s.StdDev),
		Trend:                finite(s.Trend),
		OutOfRangePercentage: finite(s.OutOfRangePercentage),
		Stability:            finite(s.Stability),
		Readings:             s.Readings,
	}
	if !s.LastUpdate.IsZero() {
		out.LastUpdate = s.LastUpdate.UTC().Format(ISOLayout)
	}
	return json.Marshal(out)
}

// SensorStats is the quick summary shown on a single sensor card
type SensorStats struct {
	Current float64 `json:"current"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Trend   float64 `json:"trend"`
}
