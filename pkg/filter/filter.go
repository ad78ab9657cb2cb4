package filter

import (
	"strings"
	"sync"

	"github.com/manslikestiffler/smart-granary/pkg/models"
)

// Band widening applied to the display range for the error class
const (
	errorLowFactor  = 0.8
	errorHighFactor = 1.2
)

// Apply returns the readings that pass every active predicate of state, in
// input order. Readings without a timestamp are skipped.
func Apply(readings []models.Reading, state models.FilterState, registry models.SensorRegistry) []models.Reading {
	search := strings.ToLower(state.Search)
	zones := make(map[string]struct{}, len(state.Zones))
	for _, z := range state.Zones {
		zones[z] = struct{}{}
	}

	result := make([]models.Reading, 0, len(readings))
	for _, r := range readings {
		if !r.IsValid() {
			continue
		}
		if search != "" && !matchesSearch(r, search) {
			continue
		}
		if state.TimeRange != nil && !state.TimeRange.Contains(r.Timestamp) {
			continue
		}
		if len(state.SensorTypes) > 0 && !hasAnySensor(r, state.SensorTypes) {
			continue
		}
		if !matchesThreshold(r, state.Thresholds, registry) {
			continue
		}
		if len(zones) > 0 {
			if _, ok := zones[r.Location]; !ok {
				continue
			}
		}
		result = append(result, r)
	}

	return result
}

func matchesSearch(r models.Reading, term string) bool {
	for _, field := range r.StringFields() {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func hasAnySensor(r models.Reading, keys []string) bool {
	for _, key := range keys {
		if _, ok := r.Value(key); ok {
			return true
		}
	}
	return false
}

// matchesThreshold reports whether any registered sensor value of r falls in class
func matchesThreshold(r models.Reading, class models.ThresholdClass, registry models.SensorRegistry) bool {
	if class == "" || class == models.ThresholdAll {
		return true
	}

	for key, st := range registry {
		v, ok := r.Value(key)
		if !ok {
			continue
		}
		if InClass(v, st.Ranges, class) {
			return true
		}
	}
	return false
}

// InClass reports whether v falls into the threshold class for the given range
func InClass(v float64, rng models.Range, class models.ThresholdClass) bool {
	switch class {
	case models.ThresholdNormal:
		return rng.Contains(v)
	case models.ThresholdWarning:
		return !rng.Contains(v)
	case models.ThresholdError:
		return v < rng.Min*errorLowFactor || v > rng.Max*errorHighFactor
	default:
		return true
	}
}

// Engine holds a filter state that is updated by partial merges
type Engine struct {
	mu       sync.RWMutex
	state    models.FilterState
	registry models.SensorRegistry
}

// NewEngine creates an engine with every predicate inactive
func NewEngine(registry models.SensorRegistry) *Engine {
	return &Engine{
		state:    models.DefaultFilterState(),
		registry: registry.Clone(),
	}
}

// Update merges patch into the current state. The state is left unchanged when
// the merged result is invalid.
func (e *Engine) Update(patch models.FilterPatch) (models.FilterState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.state.Merge(patch)
	if err := next.Validate(); err != nil {
		return e.state, err
	}
	e.state = next
	return next, nil
}

// Reset clears every predicate
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = models.DefaultFilterState()
}

// State returns the current filter state
func (e *Engine) State() models.FilterState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := e.state
	out.SensorTypes = append([]string{}, e.state.SensorTypes...)
	out.Zones = append([]string{}, e.state.Zones...)
	return out
}

// SetRegistry replaces the ranges used by the threshold predicate
func (e *Engine) SetRegistry(registry models.SensorRegistry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registry = registry.Clone()
}

// Apply filters readings with the current state
func (e *Engine) Apply(readings []models.Reading) []models.Reading {
	e.mu.RLock()
	state, registry := e.state, e.registry
	e.mu.RUnlock()

	return Apply(readings, state, registry)
}
