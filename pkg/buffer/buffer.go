package buffer

import (
	"sort"
	"sync"
	"time"

	"github.com/manslikestiffler/smart-granary/pkg/models"
)

// Clock returns the current time
type Clock func() time.Time

// Option configures a RollingBuffer
type Option func(*RollingBuffer)

// WithClock sets the clock used for windowing and eviction
func WithClock(clock Clock) Option {
	return func(b *RollingBuffer) {
		b.now = clock
	}
}

// RollingBuffer owns the live set of readings, kept in ascending timestamp
// order, and evicts readings older than its retention window.
type RollingBuffer struct {
	mu        sync.RWMutex
	readings  []models.Reading
	retention time.Duration
	now       Clock
}

// NewRollingBuffer creates a buffer retaining readings for the given duration.
// A non-positive retention keeps everything.
func NewRollingBuffer(retention time.Duration, opts ...Option) *RollingBuffer {
	b := &RollingBuffer{
		readings:  make([]models.Reading, 0, 64),
		retention: retention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Retention returns the configured retention window
func (b *RollingBuffer) Retention() time.Duration {
	return b.retention
}

// Ingest adds one reading. Readings arriving out of order are inserted at
// their sorted position; readings without a timestamp are rejected.
func (b *RollingBuffer) Ingest(reading models.Reading) error {
	if !reading.IsValid() {
		return models.ErrMalformedReading
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.insert(reading)
	b.evict()
	return nil
}

// IngestBatch adds readings in order, skipping malformed ones. It returns the
// number of readings accepted.
func (b *RollingBuffer) IngestBatch(readings []models.Reading) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	accepted := 0
	for _, r := range readings {
		if !r.IsValid() {
			continue
		}
		b.insert(r)
		accepted++
	}
	b.evict()
	return accepted
}

// Replace swaps the whole buffer content for the given readings, as delivered
// by a source that always returns the full dataset.
func (b *RollingBuffer) Replace(readings []models.Reading) int {
	valid := make([]models.Reading, 0, len(readings))
	for _, r := range readings {
		if r.IsValid() {
			valid = append(valid, r)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Timestamp.Before(valid[j].Timestamp)
	})

	b.mu.Lock()
	defer b.mu.Unlock()

	b.readings = valid
	b.evict()
	return len(b.readings)
}

// Snapshot returns, in ascending timestamp order, a copy of all readings newer
// than now - window. A non-positive window returns everything retained.
func (b *RollingBuffer) Snapshot(window time.Duration) []models.Reading {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := 0
	if window > 0 {
		cutoff := b.now().Add(-window)
		start = sort.Search(len(b.readings), func(i int) bool {
			return b.readings[i].Timestamp.After(cutoff)
		})
	}

	result := make([]models.Reading, len(b.readings)-start)
	copy(result, b.readings[start:])
	return result
}

// Latest returns the newest reading, if any
func (b *RollingBuffer) Latest() (models.Reading, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.readings) == 0 {
		return models.Reading{}, false
	}
	return b.readings[len(b.readings)-1], true
}

// Len returns the number of retained readings
func (b *RollingBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.readings)
}

// Prune evicts readings older than the retention window and returns how many were removed.
func (b *RollingBuffer) Prune() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evict()
}

// insert places r after any reading with an equal or earlier timestamp. Caller holds the lock.
func (b *RollingBuffer) insert(r models.Reading) {
	n := len(b.readings)
	if n == 0 || !r.Timestamp.Before(b.readings[n-1].Timestamp) {
		b.readings = append(b.readings, r)
		return
	}

	i := sort.Search(n, func(i int) bool {
		return b.readings[i].Timestamp.After(r.Timestamp)
	})
	b.readings = append(b.readings, models.Reading{})
	copy(b.readings[i+1:], b.readings[i:])
	b.readings[i] = r
}

// evict drops readings at or before now - retention. Caller holds the lock.
func (b *RollingBuffer) evict() int {
	if b.retention <= 0 || len(b.readings) == 0 {
		return 0
	}

	cutoff := b.now().Add(-b.retention)
	i := sort.Search(len(b.readings), func(i int) bool {
		return b.readings[i].Timestamp.After(cutoff)
	})
	if i == 0 {
		return 0
	}

	remaining := make([]models.Reading, len(b.readings)-i, cap(b.readings))
	copy(remaining, b.readings[i:])
	b.readings = remaining
	return i
}
