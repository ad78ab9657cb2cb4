package analytics

import (
	"math"
	"sort"

	"github.com/manslikestiffler/smart-granary/pkg/models"
)

// Option configures an analysis run
type Option func(*options)

type options struct {
	truthy bool
}

// WithTruthyFilter treats a value of exactly zero as absent, as the legacy
// dashboard did. By default zero is a valid data point.
func WithTruthyFilter() Option {
	return func(o *options) {
		o.truthy = true
	}
}

// Analyze computes a summary per registered sensor over readings, which the
// caller must pass in chronological order. Sensors with no values are omitted.
func Analyze(readings []models.Reading, registry models.SensorRegistry, opts ...Option) map[string]models.AnalyticsSummary {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	result := make(map[string]models.AnalyticsSummary)
	if len(readings) == 0 {
		return result
	}
	lastUpdate := readings[len(readings)-1].Timestamp

	for _, key := range registry.Keys() {
		values := collect(readings, key, o.truthy)
		if len(values) == 0 {
			continue
		}

		summary := Summarize(values, registry[key].Ranges)
		summary.LastUpdate = lastUpdate
		result[key] = summary
	}

	return result
}

func collect(readings []models.Reading, key string, truthy bool) []float64 {
	values := make([]float64, 0, len(readings))
	for _, r := range readings {
		v, ok := r.Value(key)
		if !ok || (truthy && (v == 0 || math.IsNaN(v))) {
			continue
		}
		values = append(values, v)
	}
	return values
}

// Summarize computes the descriptive statistics of a non-empty value series
func Summarize(values []float64, rng models.Range) models.AnalyticsSummary {
	n := len(values)
	if n == 0 {
		return models.AnalyticsSummary{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mean := Mean(values)
	stdDev := StdDev(values, mean)

	outOfRange := 0
	for _, v := range values {
		if !rng.Contains(v) {
			outOfRange++
		}
	}

	return models.AnalyticsSummary{
		Current:              values[n-1],
		Min:                  sorted[0],
		Max:                  sorted[n-1],
		Mean:                 mean,
		Median:               sorted[n/2],
		StdDev:               stdDev,
		Trend:                Trend(values),
		OutOfRangePercentage: float64(outOfRange) / float64(n) * 100,
		Stability:            100 - (stdDev/mean)*100,
		Readings:             n,
	}
}

// Mean returns the arithmetic mean, NaN for an empty series
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation around mean
func StdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sq := 0.0
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

// Trend returns the mean first difference, NaN with fewer than two values
func Trend(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	sum := 0.0
	for i := 1; i < len(values); i++ {
		sum += values[i] - values[i-1]
	}
	return sum / float64(len(values)-1)
}

// Stats computes the quick sensor card summary for one key. Trend is the last
// step change, zero with fewer than two values.
func Stats(readings []models.Reading, key string) (models.SensorStats, bool) {
	values := collect(readings, key, false)
	if len(values) == 0 {
		return models.SensorStats{}, false
	}

	stats := models.SensorStats{
		Current: values[len(values)-1],
		Average: Mean(values),
		Min:     values[0],
		Max:     values[0],
	}
	for _, v := range values[1:] {
		stats.Min = math.Min(stats.Min, v)
		stats.Max = math.Max(stats.Max, v)
	}
	if n := len(values); n >= 2 {
		stats.Trend = values[n-1] - values[n-2]
	}

	return stats, true
}
