package alerting

import (
	"errors"
	"fmt"

	"github.com/manslikestiffler/smart-granary/pkg/models"
)

// ErrUnknownSensor is returned when no status band is configured for a sensor
var ErrUnknownSensor = errors.New("unknown sensor")

// Classifier maps single values to a status using the alert bands table
type Classifier struct {
	bands models.AlertBands
}

// NewClassifier creates a classifier over a copy of bands
func NewClassifier(bands models.AlertBands) (*Classifier, error) {
	for key, band := range bands {
		if err := band.Validate(); err != nil {
			return nil, fmt.Errorf("alert band %s: %w", key, err)
		}
	}
	return &Classifier{bands: bands.Clone()}, nil
}

// Classify returns critical when value is at or beyond a critical edge,
// warning when at or beyond a warning edge, and normal otherwise.
func (c *Classifier) Classify(value float64, key string) (models.Status, error) {
	band, ok := c.bands[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSensor, key)
	}

	switch {
	case value <= band.CriticalLow || value >= band.CriticalHigh:
		return models.StatusCritical, nil
	case value <= band.WarningLow || value >= band.WarningHigh:
		return models.StatusWarning, nil
	default:
		return models.StatusNormal, nil
	}
}

// Annotate classifies every sensor of r that has a band
func (c *Classifier) Annotate(r models.Reading) map[string]models.Status {
	statuses := make(map[string]models.Status)
	for key, value := range r.Values() {
		if status, err := c.Classify(value, key); err == nil {
			statuses[key] = status
		}
	}
	return statuses
}

// Worst returns the most severe status among statuses
func Worst(statuses map[string]models.Status) models.Status {
	worst := models.StatusNormal
	for _, s := range statuses {
		switch s {
		case models.StatusCritical:
			return models.StatusCritical
		case models.StatusWarning:
			worst = models.StatusWarning
		}
	}
	return worst
}

// Bands returns a copy of the configured bands
func (c *Classifier) Bands() models.AlertBands {
	return c.bands.Clone()
}
