package aggregate

import (
	"sort"
	"time"

	"github.com/manslikestiffler/smart-granary/pkg/models"
)

// Option configures an aggregation run
type Option func(*options)

type options struct {
	location *time.Location
}

// WithLocation truncates bucket keys in the given location instead of UTC.
// Day buckets follow local midnight in that location.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// Truncate zeroes the sub-interval components of t in loc
func Truncate(t time.Time, interval models.Interval, loc *time.Location) time.Time {
	t = t.In(loc)
	switch interval {
	case models.IntervalMinute:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)
	case models.IntervalDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
	}
}

type group struct {
	key    time.Time
	count  int
	sums   map[string]float64
	counts map[string]int
}

// Aggregate groups readings into buckets of the given interval and averages each
// sensor over the readings that define it. Buckets are returned in the order
// their first reading appeared. Readings without a timestamp are skipped.
func Aggregate(readings []models.Reading, interval models.Interval, opts ...Option) []models.AggregatedBucket {
	o := options{location: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}
	if !interval.Valid() {
		interval = models.IntervalHour
	}

	index := make(map[int64]*group)
	var order []*group

	for _, r := range readings {
		if !r.IsValid() {
			continue
		}

		key := Truncate(r.Timestamp, interval, o.location)
		g, ok := index[key.UnixNano()]
		if !ok {
			g = &group{
				key:    key,
				sums:   make(map[string]float64),
				counts: make(map[string]int),
			}
			index[key.UnixNano()] = g
			order = append(order, g)
		}

		g.count++
		for _, sensor := range models.SensorKeys {
			if v, ok := r.Value(sensor); ok {
				g.sums[sensor] += v
				g.counts[sensor]++
			}
		}
	}

	buckets := make([]models.AggregatedBucket, 0, len(order))
	for _, g := range order {
		means := make(map[string]float64, len(g.sums))
		for sensor, sum := range g.sums {
			means[sensor] = sum / float64(g.counts[sensor])
		}
		buckets = append(buckets, models.AggregatedBucket{
			Timestamp: g.key,
			Means:     means,
			Readings:  g.count,
		})
	}

	return buckets
}

// SortBuckets orders buckets by ascending timestamp in place
func SortBuckets(buckets []models.AggregatedBucket) {
	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].Timestamp.Before(buckets[j].Timestamp)
	})
}
