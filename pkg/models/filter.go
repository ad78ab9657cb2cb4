package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidFilter is returned when a filter state cannot be applied
var ErrInvalidFilter = errors.New("invalid filter")

// ThresholdClass selects readings by how their values sit against the display ranges
type ThresholdClass string

const (
	ThresholdAll     ThresholdClass = "all"
	ThresholdNormal  ThresholdClass = "normal"
	ThresholdWarning ThresholdClass = "warning"
	ThresholdError   ThresholdClass = "error"
)

// TimeRange is an inclusive time window
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether start <= t <= end
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// FilterState is a user query over readings. Zero values are inactive.
type FilterState struct {
	Search      string         `json:"search"`
	TimeRange   *TimeRange     `json:"timeRange"`
	SensorTypes []string       `json:"sensorTypes"`
	Thresholds  ThresholdClass `json:"thresholds"`
	Zones       []string       `json:"zones"`
}

// DefaultFilterState returns a filter state with every predicate inactive
func DefaultFilterState() FilterState {
	return FilterState{
		SensorTypes: []string{},
		Thresholds:  ThresholdAll,
		Zones:       []string{},
	}
}

// IsNoop reports whether no predicate is active
func (f FilterState) IsNoop() bool {
	return f.Search == "" &&
		f.TimeRange == nil &&
		len(f.SensorTypes) == 0 &&
		(f.Thresholds == "" || f.Thresholds == ThresholdAll) &&
		len(f.Zones) == 0
}

// Validate checks the threshold class and time range
func (f FilterState) Validate() error {
	switch f.Thresholds {
	case "", ThresholdAll, ThresholdNormal, ThresholdWarning, ThresholdError:
	default:
		return fmt.Errorf("%w: unknown threshold class %q", ErrInvalidFilter, f.Thresholds)
	}
	if f.TimeRange != nil && f.TimeRange.Start.After(f.TimeRange.End) {
		return fmt.Errorf("%w: time range start is after end", ErrInvalidFilter)
	}
	return nil
}

// FilterPatch is a partial update of a FilterState. Nil fields are left unchanged;
// ClearTimeRange removes the time range.
type FilterPatch struct {
	Search         *string         `json:"search,omitempty"`
	TimeRange      *TimeRange      `json:"timeRange,omitempty"`
	ClearTimeRange bool            `json:"clearTimeRange,omitempty"`
	SensorTypes    *[]string       `json:"sensorTypes,omitempty"`
	Thresholds     *ThresholdClass `json:"thresholds,omitempty"`
	Zones          *[]string       `json:"zones,omitempty"`
}

// Merge returns a new state with the patch applied
func (f FilterState) Merge(p FilterPatch) FilterState {
	out := f
	if p.Search != nil {
		out.Search = *p.Search
	}
	if p.ClearTimeRange {
		out.TimeRange = nil
	}
	if p.TimeRange != nil {
		tr := *p.TimeRange
		out.TimeRange = &tr
	}
	if p.SensorTypes != nil {
		out.SensorTypes = append([]string{}, (*p.SensorTypes)...)
	}
	if p.Thresholds != nil {
		out.Thresholds = *p.Thresholds
	}
	if p.Zones != nil {
		out.Zones = append([]string{}, (*p.Zones)...)
	}
	return out
}
