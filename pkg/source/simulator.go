package source

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/manslikestiffler/smart-granary/pkg/models"
)

// variationShare is the fraction of a sensor's range used as step size
const variationShare = 0.1

// Simulator generates a smooth random walk per registered sensor
type Simulator struct {
	mu       sync.Mutex
	registry models.SensorRegistry
	rand     *rand.Rand
	now      func() time.Time
	zones    []string
	zoneIdx  int
	last     *models.Reading
}

// SimulatorOption configures a Simulator
type SimulatorOption func(*Simulator)

// WithRand sets the random source
func WithRand(r *rand.Rand) SimulatorOption {
	return func(s *Simulator) {
		s.rand = r
	}
}

// WithSimulatorClock sets the clock used to stamp readings
func WithSimulatorClock(now func() time.Time) SimulatorOption {
	return func(s *Simulator) {
		s.now = now
	}
}

// WithZones tags successive readings with zones in round-robin order
func WithZones(zones ...string) SimulatorOption {
	return func(s *Simulator) {
		s.zones = append([]string{}, zones...)
	}
}

// NewSimulator creates a simulator over a copy of registry
func NewSimulator(registry models.SensorRegistry, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		registry: registry.Clone(),
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the source identifier
func (s *Simulator) Name() string {
	return "simulator"
}

// Pull generates the next reading
func (s *Simulator) Pull(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	return Batch{Source: s.Name(), Readings: []models.Reading{s.Next()}}, nil
}

// Next generates one reading. The first reading starts near each sensor's
// optimal value; later readings step by at most 5% of the range and stay in range.
func (s *Simulator) Next() models.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := models.NewReading(s.now())
	for _, key := range s.registry.Keys() {
		rng := s.registry[key].Ranges
		variation := (rng.Max - rng.Min) * variationShare
		delta := (s.rand.Float64() - 0.5) * variation

		var value float64
		prev, ok := s.previous(key)
		if ok {
			value = math.Max(rng.Min, math.Min(rng.Max, prev+delta))
		} else {
			value = rng.Midpoint() + delta
		}
		r = r.WithValue(key, round1(value))
	}

	if len(s.zones) > 0 {
		r.Location = s.zones[s.zoneIdx%len(s.zones)]
		s.zoneIdx++
	}

	s.last = &r
	return r
}

// Reset forgets the previous reading so the next one starts near optimal again
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = nil
}

func (s *Simulator) previous(key string) (float64, bool) {
	if s.last == nil {
		return 0, false
	}
	return s.last.Value(key)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
