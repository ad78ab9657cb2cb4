package models

// DashboardView is everything the presentation layer needs for one refresh
type DashboardView struct {
	FilteredData      []Reading                   `json:"filteredData"`
	Analytics         map[string]AnalyticsSummary `json:"analyticsSummary"`
	AggregatedBuckets []AggregatedBucket          `json:"aggregatedBuckets"`
	Alerts            []Alert                     `json:"alerts"`
	LastReading       *Reading                    `json:"lastReading,omitempty"`
	Statuses          map[string]Status           `json:"statuses,omitempty"`
}
