package models

import "fmt"

// Zone is a named storage area readings can be tagged with
type Zone struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// QuietHours suppresses notifications between Start and End (HH:MM)
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// NotificationSettings controls how alerts are delivered
type NotificationSettings struct {
	Email      bool       `json:"email"`
	Push       bool       `json:"push"`
	Frequency  string     `json:"frequency"`
	QuietHours QuietHours `json:"quietHours"`
}

// DisplaySettings holds presentation preferences
type DisplaySettings struct {
	Theme             string `json:"theme"`
	ChartPeriod       string `json:"chartPeriod"`
	RefreshIntervalMs int    `json:"refreshInterval"`
}

// Settings are the user-adjustable options. Thresholds override the display
// ranges of the sensor registry; the set of sensor keys cannot change.
type Settings struct {
	Thresholds    map[string]Range     `json:"thresholds"`
	Notifications NotificationSettings `json:"notifications"`
	Display       DisplaySettings      `json:"display"`
	Zones         []Zone               `json:"zones"`
}

// DefaultSettings builds the initial settings from a registry
func DefaultSettings(registry SensorRegistry) Settings {
	thresholds := make(map[string]Range, len(registry))
	for key, st := range registry.Clone() {
		thresholds[key] = Range{Min: st.Ranges.Min, Max: st.Ranges.Max, Optimal: st.Ranges.Optimal}
	}

	return Settings{
		Thresholds: thresholds,
		Notifications: NotificationSettings{
			Email:     true,
			Push:      true,
			Frequency: "immediate",
			QuietHours: QuietHours{
				Enabled: false,
				Start:   "22:00",
				End:     "06:00",
			},
		},
		Display: DisplaySettings{
			Theme:             "light",
			ChartPeriod:       "24h",
			RefreshIntervalMs: 5000,
		},
		Zones: []Zone{
			{ID: 1, Name: "Zone 1", Active: true},
			{ID: 2, Name: "Zone 2", Active: true},
			{ID: 3, Name: "Zone 3", Active: true},
			{ID: 4, Name: "Zone 4", Active: true},
		},
	}
}

// Apply returns a copy of registry with the threshold overrides applied
func (s Settings) Apply(registry SensorRegistry) (SensorRegistry, error) {
	out := registry.Clone()
	for key, r := range s.Thresholds {
		st, ok := out[key]
		if !ok {
			return nil, fmt.Errorf("unknown sensor key in thresholds: %s", key)
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("sensor %s: %w", key, err)
		}
		st.Ranges.Min = r.Min
		st.Ranges.Max = r.Max
		if r.Optimal != nil {
			st.Ranges.Optimal = Float(*r.Optimal)
		}
		out[key] = st
	}
	return out, nil
}

// ActiveZones returns the names of the active zones
func (s Settings) ActiveZones() []string {
	var names []string
	for _, z := range s.Zones {
		if z.Active {
			names = append(names, z.Name)
		}
	}
	return names
}
